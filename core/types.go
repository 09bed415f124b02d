package core

import "sort"

// StringSet is a set of strings.
type StringSet map[string]struct{}

// NewStringSet creates a set holding values.
func NewStringSet(values ...string) StringSet {
	s := make(StringSet, len(values))
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add inserts v, ignoring empty strings.
func (s StringSet) Add(v string) {
	if v == "" {
		return
	}
	s[v] = struct{}{}
}

// Has reports membership.
func (s StringSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Slice returns the members in lexical order.
func (s StringSet) Slice() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// IntSet is a set of ints.
type IntSet map[int]struct{}

// NewIntSet creates a set holding values.
func NewIntSet(values ...int) IntSet {
	s := make(IntSet, len(values))
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add inserts v, ignoring non-positive ids.
func (s IntSet) Add(v int) {
	if v <= 0 {
		return
	}
	s[v] = struct{}{}
}

// Has reports membership.
func (s IntSet) Has(v int) bool {
	_, ok := s[v]
	return ok
}

// Sorted returns the members ascending.
func (s IntSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// RequirementWorkItem is a requirement work item reduced to what coverage needs.
type RequirementWorkItem struct {
	WorkItemID        int    `json:"workItemId"`
	RequirementID     string `json:"requirementId"`
	BaseKey           string `json:"baseKey"`
	Title             string `json:"title"`
	SubSystem         string `json:"subSystem,omitempty"`
	Responsibility    string `json:"responsibility"`
	LinkedTestCaseIDs []int  `json:"linkedTestCaseIds,omitempty"`
	AreaPath          string `json:"areaPath,omitempty"`
	State             string `json:"state,omitempty"`
}

// IsBase reports whether the requirement is the parentless member of its family.
func (r RequirementWorkItem) IsBase() bool {
	return r.RequirementID == r.BaseKey
}

// LinkedRequirementEntry is the formally linked side of one test case.
type LinkedRequirementEntry struct {
	BaseKeys         StringSet `json:"baseKeys"`
	FullCodes        StringSet `json:"fullCodes"`
	BugIDs           IntSet    `json:"bugIds"`
	ChangeRequestIDs IntSet    `json:"changeRequestIds"`
}

// NewLinkedRequirementEntry returns an entry with all sets allocated.
func NewLinkedRequirementEntry() *LinkedRequirementEntry {
	return &LinkedRequirementEntry{
		BaseKeys:         make(StringSet),
		FullCodes:        make(StringSet),
		BugIDs:           make(IntSet),
		ChangeRequestIDs: make(IntSet),
	}
}

// Empty reports whether nothing is linked.
func (e *LinkedRequirementEntry) Empty() bool {
	return e == nil || (len(e.FullCodes) == 0 && len(e.BugIDs) == 0 && len(e.ChangeRequestIDs) == 0)
}

// SharedStepModel identifies a shared step work item at a revision.
type SharedStepModel struct {
	ID       int `json:"id"`
	Revision int `json:"revision"`
}

// ActionResult is one dynamic per-step outcome recorded for a run iteration.
type ActionResult struct {
	ActionPath      string           `json:"actionPath,omitempty"`
	IterationID     int              `json:"iterationId,omitempty"`
	StepIdentifier  string           `json:"stepIdentifier"`
	StepPosition    string           `json:"stepPosition,omitempty"`
	Outcome         Outcome          `json:"outcome,omitempty"`
	Action          string           `json:"action,omitempty"`
	Expected        string           `json:"expected,omitempty"`
	SharedStepModel *SharedStepModel `json:"sharedStepModel,omitempty"`
}

// AlignedStep is one logical test step with its definition text and outcome.
type AlignedStep struct {
	StepID            string  `json:"stepId"`
	StepPosition      string  `json:"stepPosition"`
	Action            string  `json:"action"`
	Expected          string  `json:"expected"`
	IsSharedStepTitle bool    `json:"isSharedStepTitle"`
	Outcome           Outcome `json:"outcome"`
}

// StepsPayload is the static step definition of a test case or shared step.
type StepsPayload struct {
	WorkItemID int    `json:"workItemId"`
	Revision   int    `json:"revision"`
	Title      string `json:"title"`
	StepsXML   string `json:"stepsXml"`
}

// Suite is one node of a test plan's suite tree.
type Suite struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	ParentID int    `json:"parentId,omitempty"`
}

// TestPoint is a test case's assignment in a suite with its latest result pointer.
type TestPoint struct {
	SuiteID       int     `json:"suiteId"`
	TestCaseID    int     `json:"testCaseId"`
	TestCaseTitle string  `json:"testCaseTitle"`
	LastRunID     int     `json:"lastRunId,omitempty"`
	LastResultID  int     `json:"lastResultId,omitempty"`
	Outcome       Outcome `json:"outcome,omitempty"`
}

// BugLink is a bug attached to a test case.
type BugLink struct {
	TestCaseID     int    `json:"testCaseId"`
	BugID          int    `json:"bugId"`
	Title          string `json:"title"`
	State          string `json:"state,omitempty"`
	Severity       string `json:"severity,omitempty"`
	Responsibility string `json:"responsibility"`
	SortIndex      string `json:"sortIndex,omitempty"`
}

// SubRequirementLink is one L3 (optionally with an L4 child) beneath an L2 base key.
type SubRequirementLink struct {
	BaseKey        string `json:"baseKey"`
	L3ID           string `json:"l3Id"`
	L3Title        string `json:"l3Title,omitempty"`
	L4ID           string `json:"l4Id,omitempty"`
	L4Title        string `json:"l4Title,omitempty"`
	Responsibility string `json:"responsibility"`
}

// CoverageCell holds step counts for one (full code, test case) pair.
type CoverageCell struct {
	Code       string `json:"code"`
	TestCaseID int    `json:"testCaseId"`
	Passed     int    `json:"passed"`
	Failed     int    `json:"failed"`
	NotRun     int    `json:"notRun"`
}

// Count adds one step outcome. Empty outcomes are not counted.
func (c *CoverageCell) Count(o Outcome) {
	switch o {
	case OutcomeNone:
	case OutcomePassed:
		c.Passed++
	case OutcomeFailed:
		c.Failed++
	default:
		c.NotRun++
	}
}

// Status derives the single run status of the cell.
func (c CoverageCell) Status() RunStatus {
	switch {
	case c.Failed > 0:
		return RunStatusFail
	case c.Passed > 0:
		return RunStatusPass
	default:
		return RunStatusNotRun
	}
}

// CoverageRow is one flattened row of the coverage report.
type CoverageRow struct {
	RequirementID      string    `json:"requirementId" yaml:"requirementId"`
	BaseKey            string    `json:"baseKey" yaml:"baseKey"`
	RequirementTitle   string    `json:"requirementTitle" yaml:"requirementTitle"`
	SubSystem          string    `json:"subSystem" yaml:"subSystem"`
	Responsibility     string    `json:"responsibility" yaml:"responsibility"`
	TestCaseID         int       `json:"testCaseId,omitempty" yaml:"testCaseId,omitempty"`
	TestCaseTitle      string    `json:"testCaseTitle" yaml:"testCaseTitle"`
	Source             string    `json:"source" yaml:"source"`
	Passed             int       `json:"passed" yaml:"passed"`
	Failed             int       `json:"failed" yaml:"failed"`
	NotRun             int       `json:"notRun" yaml:"notRun"`
	RunStatus          RunStatus `json:"runStatus" yaml:"runStatus"`
	BugID              int       `json:"bugId,omitempty" yaml:"bugId,omitempty"`
	BugTitle           string    `json:"bugTitle" yaml:"bugTitle"`
	BugState           string    `json:"bugState" yaml:"bugState"`
	BugResponsibility  string    `json:"bugResponsibility" yaml:"bugResponsibility"`
	L3ID               string    `json:"l3Id" yaml:"l3Id"`
	L3Title            string    `json:"l3Title" yaml:"l3Title"`
	L4ID               string    `json:"l4Id" yaml:"l4Id"`
	L4Title            string    `json:"l4Title" yaml:"l4Title"`
	L3L4Responsibility string    `json:"l3l4Responsibility" yaml:"l3l4Responsibility"`
}

// ValidationRow is one test case's bidirectional validation outcome.
type ValidationRow struct {
	TestCaseID         int              `json:"testCaseId" yaml:"testCaseId"`
	TestCaseTitle      string           `json:"testCaseTitle" yaml:"testCaseTitle"`
	MentionedNotLinked []string         `json:"mentionedNotLinked" yaml:"mentionedNotLinked"`
	LinkedNotMentioned []string         `json:"linkedNotMentioned" yaml:"linkedNotMentioned"`
	ValidationStatus   ValidationStatus `json:"validationStatus" yaml:"validationStatus"`
}
