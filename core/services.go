package core

import "context"

// ============================================================================
// Upstream Collaborators
// ============================================================================
//
// The reconciliation engine consumes already-fetched data. These interfaces
// are what the report service fans out over; the backend package implements
// them over HTTP and over an offline snapshot file.

// WorkItemFetcher batch-fetches work items.
// Consumers: relation resolver, report service
type WorkItemFetcher interface {
	// FetchWorkItemsByIDs returns the work items for ids, optionally with relation edges.
	// Ids the backend does not know are omitted from the result, not reported as errors.
	FetchWorkItemsByIDs(ctx context.Context, ids []int, includeRelations bool) ([]WorkItem, error)
}

// StepsFetcher fetches static step definitions.
// Consumers: report service (shared step library)
type StepsFetcher interface {
	// FetchTestCaseSteps returns the steps of a test case or shared step work item.
	// revision 0 means the latest revision.
	FetchTestCaseSteps(ctx context.Context, workItemID, revision int) (*StepsPayload, error)
}

// RunResultFetcher fetches dynamic per-run step outcomes.
// Consumers: report service
type RunResultFetcher interface {
	// FetchRunActionResults returns the action results of the latest iteration of a result.
	FetchRunActionResults(ctx context.Context, runID, resultID int) ([]ActionResult, error)
}

// SuiteSource lists the suite tree of a test plan.
type SuiteSource interface {
	ListPlanSuites(ctx context.Context, planID int) ([]Suite, error)
}

// TestPointSource lists test points of one suite.
type TestPointSource interface {
	ListSuiteTestPoints(ctx context.Context, planID, suiteID int) ([]TestPoint, error)
}

// RequirementSource resolves the requirement work item ids in scope of a report.
type RequirementSource interface {
	QueryRequirementIDs(ctx context.Context, query string) ([]int, error)
}

// Backend is every upstream collaborator a report run needs.
type Backend interface {
	WorkItemFetcher
	StepsFetcher
	RunResultFetcher
	SuiteSource
	TestPointSource
	RequirementSource
}
