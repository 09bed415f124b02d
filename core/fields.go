package core

// FieldMap names the backend fields the reconciliation reads. Process
// templates differ between projects, so every custom field is configurable.
type FieldMap struct {
	RequirementID string `mapstructure:"requirement_id" json:"requirementId" validate:"required"`
	SubSystem     string `mapstructure:"sub_system" json:"subSystem"`
	SAPWBS        string `mapstructure:"sap_wbs" json:"sapWbs"`
	Steps         string `mapstructure:"steps" json:"steps" validate:"required"`
	AreaPath      string `mapstructure:"area_path" json:"areaPath" validate:"required"`
	Title         string `mapstructure:"title" json:"title" validate:"required"`
	WorkItemType  string `mapstructure:"work_item_type" json:"workItemType" validate:"required"`
	State         string `mapstructure:"state" json:"state" validate:"required"`
	Severity      string `mapstructure:"severity" json:"severity"`
}

// DefaultFieldMap returns the field names of the stock process template plus
// the custom requirement fields used by the requirements project.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		RequirementID: "Custom.RequirementID",
		SubSystem:     "Custom.SubSystem",
		SAPWBS:        "Custom.SAPWBS",
		Steps:         FieldSteps,
		AreaPath:      FieldAreaPath,
		Title:         FieldTitle,
		WorkItemType:  FieldWorkItemType,
		State:         FieldState,
		Severity:      FieldSeverity,
	}
}

// WithDefaults fills empty names from DefaultFieldMap.
func (m FieldMap) WithDefaults() FieldMap {
	d := DefaultFieldMap()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&m.RequirementID, d.RequirementID)
	fill(&m.SubSystem, d.SubSystem)
	fill(&m.SAPWBS, d.SAPWBS)
	fill(&m.Steps, d.Steps)
	fill(&m.AreaPath, d.AreaPath)
	fill(&m.Title, d.Title)
	fill(&m.WorkItemType, d.WorkItemType)
	fill(&m.State, d.State)
	fill(&m.Severity, d.Severity)
	return m
}
