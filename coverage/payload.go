package coverage

import (
	"strconv"
	"strings"

	"reqtrace/core"
)

// Default sheet names
const (
	DefaultCoverageSheet   = "Coverage"
	DefaultValidationSheet = "Internal Validation"
)

// CoverageColumns is the column order of the coverage sheet.
var CoverageColumns = []string{
	"Requirement ID",
	"Base Key",
	"Requirement Title",
	"Sub System",
	"Responsibility",
	"Test Case ID",
	"Test Case Title",
	"Source",
	"Passed",
	"Failed",
	"Not Run",
	"Run Status",
	"Bug ID",
	"Bug Title",
	"Bug State",
	"Bug Responsibility",
	"L3 ID",
	"L3 Title",
	"L4 ID",
	"L4 Title",
	"L3/L4 Responsibility",
}

// ValidationColumns is the column order of the internal validation sheet.
var ValidationColumns = []string{
	"Test Case ID",
	"Test Case Title",
	"Mentioned Not Linked",
	"Linked Not Mentioned",
	"Validation Status",
}

// CoverageFlatPayload is the coverage sheet handed to a renderer.
type CoverageFlatPayload struct {
	SheetName   string             `json:"sheetName" yaml:"sheetName"`
	ColumnOrder []string           `json:"columnOrder" yaml:"columnOrder"`
	Rows        []core.CoverageRow `json:"rows" yaml:"rows"`
}

// NewCoveragePayload wraps rows with the coverage column order.
func NewCoveragePayload(sheetName string, rows []core.CoverageRow) CoverageFlatPayload {
	if sheetName == "" {
		sheetName = DefaultCoverageSheet
	}
	if rows == nil {
		rows = []core.CoverageRow{}
	}
	return CoverageFlatPayload{
		SheetName:   sheetName,
		ColumnOrder: append([]string(nil), CoverageColumns...),
		Rows:        rows,
	}
}

// Records returns the rows keyed by column label. Zero ids render as "".
func (p CoverageFlatPayload) Records() []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(p.Rows))
	for _, r := range p.Rows {
		out = append(out, map[string]interface{}{
			"Requirement ID":       r.RequirementID,
			"Base Key":             r.BaseKey,
			"Requirement Title":    r.RequirementTitle,
			"Sub System":           r.SubSystem,
			"Responsibility":       r.Responsibility,
			"Test Case ID":         idString(r.TestCaseID),
			"Test Case Title":      r.TestCaseTitle,
			"Source":               r.Source,
			"Passed":               r.Passed,
			"Failed":               r.Failed,
			"Not Run":              r.NotRun,
			"Run Status":           string(r.RunStatus),
			"Bug ID":               idString(r.BugID),
			"Bug Title":            r.BugTitle,
			"Bug State":            r.BugState,
			"Bug Responsibility":   r.BugResponsibility,
			"L3 ID":                r.L3ID,
			"L3 Title":             r.L3Title,
			"L4 ID":                r.L4ID,
			"L4 Title":             r.L4Title,
			"L3/L4 Responsibility": r.L3L4Responsibility,
		})
	}
	return out
}

// InternalValidationFlatPayload is the validation sheet handed to a renderer.
type InternalValidationFlatPayload struct {
	SheetName   string               `json:"sheetName" yaml:"sheetName"`
	ColumnOrder []string             `json:"columnOrder" yaml:"columnOrder"`
	Rows        []core.ValidationRow `json:"rows" yaml:"rows"`
}

// NewValidationPayload wraps rows with the validation column order.
func NewValidationPayload(sheetName string, rows []core.ValidationRow) InternalValidationFlatPayload {
	if sheetName == "" {
		sheetName = DefaultValidationSheet
	}
	if rows == nil {
		rows = []core.ValidationRow{}
	}
	return InternalValidationFlatPayload{
		SheetName:   sheetName,
		ColumnOrder: append([]string(nil), ValidationColumns...),
		Rows:        rows,
	}
}

// Records returns the rows keyed by column label. Discrepancy lists are newline separated.
func (p InternalValidationFlatPayload) Records() []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(p.Rows))
	for _, r := range p.Rows {
		out = append(out, map[string]interface{}{
			"Test Case ID":         idString(r.TestCaseID),
			"Test Case Title":      r.TestCaseTitle,
			"Mentioned Not Linked": strings.Join(r.MentionedNotLinked, "\n"),
			"Linked Not Mentioned": strings.Join(r.LinkedNotMentioned, "\n"),
			"Validation Status":    string(r.ValidationStatus),
		})
	}
	return out
}

func idString(id int) string {
	if id <= 0 {
		return ""
	}
	return strconv.Itoa(id)
}
