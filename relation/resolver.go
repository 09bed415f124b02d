// Package relation turns work item relation edges into typed links.
package relation

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"reqtrace/core"
	"reqtrace/family"
	"reqtrace/metrics"
	"reqtrace/util/goroutine"
)

// Default relation kinds
const (
	DefaultRequirementRelation = "Microsoft.VSTS.Common.TestedBy-Reverse"
	DefaultTestedByRelation    = "Microsoft.VSTS.Common.TestedBy-Forward"
	DefaultDefectRelation      = "System.LinkTypes.Related"
	DefaultExcludedState       = "Removed"
	DefaultBatchSize           = 200
	DefaultMaxConcurrency      = 10
)

// Options configures a Resolver.
type Options struct {
	// Requirement lists the edge kinds meaning "this test case verifies that requirement"
	Requirement []string
	// Defect lists the edge kinds used for bug and change request links
	Defect []string
	// ExcludedStates are target states ignored entirely
	ExcludedStates []string
	BatchSize      int
	MaxConcurrency int
	Fields         core.FieldMap
}

// DefaultOptions returns the stock relation kinds.
func DefaultOptions() Options {
	return Options{
		Requirement:    []string{DefaultRequirementRelation},
		Defect:         []string{DefaultDefectRelation},
		ExcludedStates: []string{DefaultExcludedState},
		BatchSize:      DefaultBatchSize,
		MaxConcurrency: DefaultMaxConcurrency,
		Fields:         core.DefaultFieldMap(),
	}
}

// Resolver classifies the relation targets of test cases.
type Resolver struct {
	fetcher  core.WorkItemFetcher
	opts     Options
	excluded map[string]bool
	logger   *zap.SugaredLogger
}

// NewResolver creates a Resolver. Zero-valued options fall back to DefaultOptions.
func NewResolver(fetcher core.WorkItemFetcher, opts Options, logger *zap.SugaredLogger) *Resolver {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	def := DefaultOptions()
	if len(opts.Requirement) == 0 {
		opts.Requirement = def.Requirement
	}
	if len(opts.Defect) == 0 {
		opts.Defect = def.Defect
	}
	if opts.ExcludedStates == nil {
		opts.ExcludedStates = def.ExcludedStates
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = def.MaxConcurrency
	}
	opts.Fields = opts.Fields.WithDefaults()

	excluded := make(map[string]bool, len(opts.ExcludedStates))
	for _, s := range opts.ExcludedStates {
		excluded[strings.ToLower(strings.TrimSpace(s))] = true
	}
	return &Resolver{fetcher: fetcher, opts: opts, excluded: excluded, logger: logger}
}

// Resolve returns one entry per test case, keyed by test case id. Relation
// targets are fetched once per unique id, in batches. A failed batch is logged
// and its targets are treated as unknown. Only a cancelled context is an error.
func (r *Resolver) Resolve(ctx context.Context, testCases []core.WorkItem) (map[int]*core.LinkedRequirementEntry, error) {
	unique := make(core.IntSet)
	for _, tc := range testCases {
		for _, id := range tc.RelatedIDs(r.opts.Requirement...) {
			unique.Add(id)
		}
		for _, id := range tc.RelatedIDs(r.opts.Defect...) {
			unique.Add(id)
		}
	}

	targets, err := r.fetchTargets(ctx, unique.Sorted())
	if err != nil {
		return nil, err
	}

	out := make(map[int]*core.LinkedRequirementEntry, len(testCases))
	for _, tc := range testCases {
		out[tc.ID] = r.classify(tc, targets)
	}
	return out, nil
}

func (r *Resolver) classify(tc core.WorkItem, targets map[int]core.WorkItem) *core.LinkedRequirementEntry {
	entry := core.NewLinkedRequirementEntry()
	fields := r.opts.Fields

	for _, id := range tc.RelatedIDs(r.opts.Requirement...) {
		target, ok := r.usable(targets, id)
		if !ok {
			continue
		}
		switch typ := target.Fields.String(fields.WorkItemType); {
		case strings.EqualFold(typ, core.WorkItemTypeRequirement):
			req, ok := family.FromWorkItem(target, fields, nil)
			if !ok {
				r.logger.Warnw("Linked requirement has no requirement code",
					"test_case_id", tc.ID,
					"work_item_id", id)
				continue
			}
			entry.FullCodes.Add(req.RequirementID)
			entry.BaseKeys.Add(req.BaseKey)
		case strings.EqualFold(typ, core.WorkItemTypeBug):
			entry.BugIDs.Add(id)
		}
	}

	for _, id := range tc.RelatedIDs(r.opts.Defect...) {
		target, ok := r.usable(targets, id)
		if !ok {
			continue
		}
		switch typ := target.Fields.String(fields.WorkItemType); {
		case strings.EqualFold(typ, core.WorkItemTypeBug):
			entry.BugIDs.Add(id)
		case strings.EqualFold(typ, core.WorkItemTypeChangeRequest):
			entry.ChangeRequestIDs.Add(id)
		}
	}
	return entry
}

func (r *Resolver) usable(targets map[int]core.WorkItem, id int) (core.WorkItem, bool) {
	target, ok := targets[id]
	if !ok {
		return core.WorkItem{}, false
	}
	if r.excluded[strings.ToLower(target.Fields.String(r.opts.Fields.State))] {
		return core.WorkItem{}, false
	}
	return target, true
}

// fetchTargets batch-fetches ids through a bounded group. Each batch owns one
// result slot; slots are merged after every batch settled.
func (r *Resolver) fetchTargets(ctx context.Context, ids []int) (map[int]core.WorkItem, error) {
	batches := Batches(ids, r.opts.BatchSize)
	slots := make([][]core.WorkItem, len(batches))

	g := goroutine.NewGroup(ctx, r.opts.MaxConcurrency, r.logger)
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(fmt.Sprintf("relation-batch-%d", i), func(ctx context.Context) {
			items, err := r.fetcher.FetchWorkItemsByIDs(ctx, batch, false)
			if err != nil {
				metrics.UpstreamFailures.WithLabelValues(metrics.StageWorkItems).Inc()
				r.logger.Warnw("Failed to resolve relation targets, skipping batch",
					"batch", i,
					"size", len(batch),
					"error", err)
				return
			}
			slots[i] = items
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to resolve relation targets: %w", err)
	}

	targets := make(map[int]core.WorkItem, len(ids))
	for _, items := range slots {
		for _, it := range items {
			targets[it.ID] = it
		}
	}
	return targets, nil
}

// Batches splits ids into consecutive chunks of at most size.
func Batches(ids []int, size int) [][]int {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][]int
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}
