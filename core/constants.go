package core

// Outcome is a step or test outcome as recorded by the test-management backend.
type Outcome string

const (
	OutcomePassed        Outcome = "Passed"
	OutcomeFailed        Outcome = "Failed"
	OutcomeBlocked       Outcome = "Blocked"
	OutcomeNotApplicable Outcome = "NotApplicable"
	OutcomeInProgress    Outcome = "InProgress"
	OutcomePaused        Outcome = "Paused"
	// OutcomeUnspecified is what the backend records for steps that never ran
	OutcomeUnspecified Outcome = "Unspecified"
	// OutcomeNotRun is the normalized form of Unspecified for countable steps
	OutcomeNotRun Outcome = "Not Run"
	// OutcomeNone marks rows that are not counted (shared step titles)
	OutcomeNone Outcome = ""
)

// String returns the string representation
func (o Outcome) String() string {
	return string(o)
}

// RunStatus is the single status derived for a coverage cell.
type RunStatus string

const (
	RunStatusPass   RunStatus = "Pass"
	RunStatusFail   RunStatus = "Fail"
	RunStatusNotRun RunStatus = "Not Run"
)

// ValidationStatus is the outcome of the bidirectional validation of one test case.
type ValidationStatus string

const (
	ValidationPass ValidationStatus = "Pass"
	ValidationFail ValidationStatus = "Fail"
)

// Responsibility labels
const (
	ResponsibilityESUK    = "ESUK"
	ResponsibilityIL      = "IL"
	ResponsibilityElisra  = "Elisra"
	ResponsibilityUnknown = "Unknown"
)

// Work item types the reconciliation cares about
const (
	WorkItemTypeRequirement   = "Requirement"
	WorkItemTypeBug           = "Bug"
	WorkItemTypeChangeRequest = "Change Request"
	WorkItemTypeTestCase      = "Test Case"
	WorkItemTypeSharedSteps   = "Shared Steps"
)

// Standard backend field reference names
const (
	FieldID           = "System.Id"
	FieldTitle        = "System.Title"
	FieldWorkItemType = "System.WorkItemType"
	FieldState        = "System.State"
	FieldAreaPath     = "System.AreaPath"
	FieldSteps        = "Microsoft.VSTS.TCM.Steps"
	FieldSeverity     = "Microsoft.VSTS.Common.Severity"
)

// Coverage link sources
const (
	SourceLinked          = "Linked"
	SourceMentioned       = "Mentioned"
	SourceLinkedMentioned = "Linked+Mentioned"
)
