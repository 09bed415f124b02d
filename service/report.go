// Package service orchestrates one report run: it pulls everything a report
// needs from the upstream collaborators with bounded fan-out, then runs the
// reconciliation synchronously.
package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"reqtrace/align"
	"reqtrace/coverage"
	"reqtrace/core"
	"reqtrace/extract"
	"reqtrace/family"
	"reqtrace/metrics"
	"reqtrace/relation"
	"reqtrace/tables"
	"reqtrace/validate"
)

// DefaultRequirementsQuery selects every requirement of the project.
const DefaultRequirementsQuery = "SELECT [System.Id] FROM WorkItems WHERE [System.WorkItemType] = 'Requirement' AND [System.TeamProject] = @project AND [System.State] <> 'Removed'"

// Defaults
const (
	DefaultMaxConcurrency = 10
	DefaultFetchTimeout   = 60 * time.Second
)

// TableLoader loads external tables. tables.Loader implements it.
type TableLoader interface {
	Load(ctx context.Context, ref string, kind tables.Kind) (*tables.Table, error)
}

// Options configures a ReportService.
type Options struct {
	MaxConcurrency    int
	FetchTimeout      time.Duration
	BatchSize         int
	RequirementsQuery string
	// TestedBy lists the requirement edge kinds pointing at test cases
	TestedBy        []string
	Relations       relation.Options
	Fields          core.FieldMap
	Extract         extract.Options
	CoverageSheet   string
	ValidationSheet string
}

// Request selects what one report covers.
type Request struct {
	PlanID            int    `json:"planId" validate:"required,min=1"`
	SuiteIDs          []int  `json:"suiteIds,omitempty" validate:"omitempty,dive,min=1"`
	RequirementsQuery string `json:"requirementsQuery,omitempty"`
	BugsTable         string `json:"bugsTable,omitempty"`
	L3L4Table         string `json:"l3l4Table,omitempty"`
}

// Stats summarizes what a report run saw.
type Stats struct {
	Suites       int `json:"suites"`
	TestCases    int `json:"testCases"`
	Requirements int `json:"requirements"`
	Families     int `json:"families"`
	// Degraded counts upstream fetches that failed and were skipped
	Degraded int `json:"degraded"`
}

// Report is the outcome of one run.
type Report struct {
	RunID       string                                 `json:"runId" yaml:"runId"`
	GeneratedAt time.Time                              `json:"generatedAt" yaml:"generatedAt"`
	PlanID      int                                    `json:"planId" yaml:"planId"`
	Stats       Stats                                  `json:"stats" yaml:"stats"`
	Coverage    coverage.CoverageFlatPayload           `json:"coverage" yaml:"coverage"`
	Validation  coverage.InternalValidationFlatPayload `json:"validation" yaml:"validation"`
}

// ReportService builds reports.
type ReportService struct {
	backend   core.Backend
	tables    TableLoader
	opts      Options
	extractor *extract.Extractor
	aligner   *align.Aligner
	resolver  *relation.Resolver
	validator *validate.Validator
	builder   *coverage.Builder
	logger    *zap.SugaredLogger
}

// NewReportService creates a ReportService. tables may be nil when no
// external tables are ever requested.
func NewReportService(backend core.Backend, tables TableLoader, opts Options, logger *zap.SugaredLogger) *ReportService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = relation.DefaultBatchSize
	}
	if len(opts.TestedBy) == 0 {
		opts.TestedBy = []string{relation.DefaultTestedByRelation}
	}
	if opts.Extract.Timeout <= 0 {
		opts.Extract = extract.DefaultOptions()
	}
	opts.Fields = opts.Fields.WithDefaults()

	relOpts := opts.Relations
	relOpts.Fields = opts.Fields
	if relOpts.BatchSize <= 0 {
		relOpts.BatchSize = opts.BatchSize
	}
	if relOpts.MaxConcurrency <= 0 {
		relOpts.MaxConcurrency = opts.MaxConcurrency
	}

	extractor := extract.New(opts.Extract, logger)
	return &ReportService{
		backend:   backend,
		tables:    tables,
		opts:      opts,
		extractor: extractor,
		aligner:   align.New(logger),
		resolver:  relation.NewResolver(backend, relOpts, logger),
		validator: validate.New(extractor, logger),
		builder:   coverage.NewBuilder(extractor, logger),
		logger:    logger,
	}
}

// Generate runs one report. Only an invalid request, a failed required pull
// (suite list, requirement list), a rejected external table or a cancelled
// context fail the run; every other upstream failure degrades the items it
// touches.
func (s *ReportService) Generate(ctx context.Context, req Request) (*Report, error) {
	start := time.Now()
	if req.PlanID <= 0 {
		return nil, fmt.Errorf("%w: plan id is required", core.ErrInvalidRequest)
	}

	runID := uuid.New().String()
	logger := s.logger.With("run_id", runID, "plan_id", req.PlanID)
	run := &reportRun{svc: s, logger: logger}

	suites, reqIDs, err := run.requiredPulls(ctx, req)
	if err != nil {
		return nil, err
	}

	selected, err := NewSuiteTree(suites).Select(req.SuiteIDs...)
	if err != nil {
		return nil, err
	}

	points := run.testPoints(ctx, req.PlanID, selected)
	testCases := run.workItems(ctx, sortedKeys(points), true, metrics.StageWorkItems)
	reqItems := run.workItems(ctx, reqIDs, true, metrics.StageRequirements)
	results := run.runResults(ctx, points)
	library := run.sharedSteps(ctx, testCases, results)

	linked, err := s.resolver.Resolve(ctx, testCases)
	if err != nil {
		return nil, err
	}

	subReqs, tableBugs, err := run.externalTables(ctx, req)
	if err != nil {
		return nil, err
	}
	bugs := run.bugLinks(ctx, linked, tableBugs)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Reconciliation
	inScope := make(core.IntSet, len(testCases))
	titles := make(map[int]string, len(testCases))
	steps := make(map[int][]core.AlignedStep, len(testCases))
	for _, tc := range testCases {
		inScope.Add(tc.ID)
		titles[tc.ID] = tc.Title()
		if t := points[tc.ID].TestCaseTitle; t != "" {
			titles[tc.ID] = t
		}
		steps[tc.ID] = s.aligner.AlignXML(tc.ID, tc.Fields.String(s.opts.Fields.Steps), results[tc.ID], library)
		metrics.AlignedSteps.Observe(float64(len(steps[tc.ID])))
	}

	requirements := make([]core.RequirementWorkItem, 0, len(reqItems))
	for _, item := range reqItems {
		r, ok := family.FromWorkItem(item, s.opts.Fields, s.opts.TestedBy)
		if !ok {
			logger.Warnw("Requirement has no requirement code, skipping",
				"work_item_id", item.ID)
			continue
		}
		r.LinkedTestCaseIDs = filterIDs(r.LinkedTestCaseIDs, inScope)
		requirements = append(requirements, r)
	}
	index := family.Build(requirements)

	validationRows := make([]core.ValidationRow, 0, len(testCases))
	for _, id := range inScope.Sorted() {
		result := s.validator.Validate(id, steps[id], linked[id], index)
		validationRows = append(validationRows, result.Row(titles[id]))
	}

	rows := s.builder.Build(coverage.Input{
		Index:           index,
		Linked:          linked,
		Steps:           steps,
		TestCaseTitles:  titles,
		Bugs:            bugs,
		SubRequirements: subReqs,
	})

	report := &Report{
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
		PlanID:      req.PlanID,
		Stats: Stats{
			Suites:       len(selected),
			TestCases:    len(testCases),
			Requirements: len(requirements),
			Families:     index.Len(),
			Degraded:     run.degradedCount(),
		},
		Coverage:   coverage.NewCoveragePayload(s.opts.CoverageSheet, rows),
		Validation: coverage.NewValidationPayload(s.opts.ValidationSheet, validationRows),
	}

	metrics.ReportDuration.Observe(time.Since(start).Seconds())
	metrics.CoverageRows.Set(float64(len(rows)))
	logger.Infow("Report generated",
		"suites", report.Stats.Suites,
		"test_cases", report.Stats.TestCases,
		"requirements", report.Stats.Requirements,
		"coverage_rows", len(rows),
		"degraded", report.Stats.Degraded,
		"duration", time.Since(start))
	return report, nil
}

// ValidateTable loads and validates one external table without building a report.
func (s *ReportService) ValidateTable(ctx context.Context, ref string, kind tables.Kind) (*tables.Table, error) {
	if s.tables == nil {
		return nil, fmt.Errorf("%w: external tables are not configured", core.ErrInvalidRequest)
	}
	return s.tables.Load(ctx, ref, kind)
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func filterIDs(ids []int, keep core.IntSet) []int {
	out := ids[:0:0]
	for _, id := range ids {
		if keep.Has(id) {
			out = append(out, id)
		}
	}
	return out
}
