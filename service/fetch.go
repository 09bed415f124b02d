package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"reqtrace/align"
	"reqtrace/core"
	"reqtrace/metrics"
	"reqtrace/relation"
	"reqtrace/tables"
	"reqtrace/util/goroutine"
)

// reportRun holds the per-invocation state of one Generate call.
type reportRun struct {
	svc      *ReportService
	logger   *zap.SugaredLogger
	degraded atomic.Int64

	mu     sync.Mutex
	groups []*goroutine.Group
}

func (r *reportRun) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.svc.opts.FetchTimeout)
}

func (r *reportRun) degrade(stage string, msg string, keysAndValues ...interface{}) {
	r.degraded.Add(1)
	metrics.UpstreamFailures.WithLabelValues(stage).Inc()
	r.logger.Warnw(msg, keysAndValues...)
}

// degradedCount includes fetch tasks that panicked.
func (r *reportRun) degradedCount() int {
	n := int(r.degraded.Load())
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.groups {
		n += g.Panics()
	}
	return n
}

func (r *reportRun) group(ctx context.Context) *goroutine.Group {
	g := goroutine.NewGroup(ctx, r.svc.opts.MaxConcurrency, r.logger)
	r.mu.Lock()
	r.groups = append(r.groups, g)
	r.mu.Unlock()
	return g
}

// requiredPulls lists the plan's suites and the requirement ids in scope.
// Either failure fails the run.
func (r *reportRun) requiredPulls(ctx context.Context, req Request) ([]core.Suite, []int, error) {
	query := strings.TrimSpace(req.RequirementsQuery)
	if query == "" {
		query = strings.TrimSpace(r.svc.opts.RequirementsQuery)
	}
	if query == "" {
		query = DefaultRequirementsQuery
	}

	var suites []core.Suite
	var reqIDs []int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fctx, cancel := r.fetchContext(gctx)
		defer cancel()
		var err error
		if suites, err = r.svc.backend.ListPlanSuites(fctx, req.PlanID); err != nil {
			metrics.UpstreamFailures.WithLabelValues(metrics.StageSuites).Inc()
			return fmt.Errorf("%w: failed to list suites: %w", core.ErrRequiredPullFailed, err)
		}
		return nil
	})
	g.Go(func() error {
		fctx, cancel := r.fetchContext(gctx)
		defer cancel()
		var err error
		if reqIDs, err = r.svc.backend.QueryRequirementIDs(fctx, query); err != nil {
			metrics.UpstreamFailures.WithLabelValues(metrics.StageRequirements).Inc()
			return fmt.Errorf("%w: failed to list requirements: %w", core.ErrRequiredPullFailed, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return suites, reqIDs, nil
}

// testPoints lists the points of every selected suite. A test case present in
// several suites keeps the point with the newest result.
func (r *reportRun) testPoints(ctx context.Context, planID int, suites []core.Suite) map[int]core.TestPoint {
	slots := make([][]core.TestPoint, len(suites))
	g := r.group(ctx)
	for i, suite := range suites {
		i, suite := i, suite
		g.Go(fmt.Sprintf("test-points-%d", suite.ID), func(ctx context.Context) {
			fctx, cancel := r.fetchContext(ctx)
			defer cancel()
			points, err := r.svc.backend.ListSuiteTestPoints(fctx, planID, suite.ID)
			if err != nil {
				r.degrade(metrics.StageTestPoints, "Failed to list test points, skipping suite",
					"suite_id", suite.ID,
					"error", err)
				return
			}
			slots[i] = points
		})
	}
	_ = g.Wait()

	out := make(map[int]core.TestPoint)
	for _, points := range slots {
		for _, p := range points {
			if p.TestCaseID <= 0 {
				continue
			}
			if cur, ok := out[p.TestCaseID]; ok && !newerResult(p, cur) {
				continue
			}
			out[p.TestCaseID] = p
		}
	}
	return out
}

func newerResult(a, b core.TestPoint) bool {
	if a.LastRunID != b.LastRunID {
		return a.LastRunID > b.LastRunID
	}
	return a.LastResultID > b.LastResultID
}

// workItems batch-fetches ids. Failed batches are skipped. The result is ordered by id.
func (r *reportRun) workItems(ctx context.Context, ids []int, relations bool, stage string) []core.WorkItem {
	batches := relation.Batches(ids, r.svc.opts.BatchSize)
	slots := make([][]core.WorkItem, len(batches))

	g := r.group(ctx)
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(fmt.Sprintf("%s-batch-%d", stage, i), func(ctx context.Context) {
			fctx, cancel := r.fetchContext(ctx)
			defer cancel()
			items, err := r.svc.backend.FetchWorkItemsByIDs(fctx, batch, relations)
			if err != nil {
				r.degrade(stage, "Failed to fetch work items, skipping batch",
					"batch", i,
					"size", len(batch),
					"error", err)
				return
			}
			slots[i] = items
		})
	}
	_ = g.Wait()

	seen := make(map[int]bool, len(ids))
	var out []core.WorkItem
	for _, items := range slots {
		for _, it := range items {
			if it.ID <= 0 || seen[it.ID] {
				continue
			}
			seen[it.ID] = true
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// runResults fetches the latest iteration of each point's last result.
func (r *reportRun) runResults(ctx context.Context, points map[int]core.TestPoint) map[int][]core.ActionResult {
	ids := sortedKeys(points)
	slots := make([][]core.ActionResult, len(ids))

	g := r.group(ctx)
	for i, tc := range ids {
		p := points[tc]
		if p.LastRunID <= 0 || p.LastResultID <= 0 {
			continue
		}
		i := i
		g.Go(fmt.Sprintf("run-result-%d", tc), func(ctx context.Context) {
			fctx, cancel := r.fetchContext(ctx)
			defer cancel()
			results, err := r.svc.backend.FetchRunActionResults(fctx, p.LastRunID, p.LastResultID)
			if err != nil {
				r.degrade(metrics.StageRunResults, "Failed to fetch run results, using static steps",
					"test_case_id", p.TestCaseID,
					"run_id", p.LastRunID,
					"result_id", p.LastResultID,
					"error", err)
				return
			}
			slots[i] = results
		})
	}
	_ = g.Wait()

	out := make(map[int][]core.ActionResult, len(ids))
	for i, tc := range ids {
		if slots[i] != nil {
			out[tc] = slots[i]
		}
	}
	return out
}

// sharedSteps prefetches every shared step referenced statically (latest
// revision) or by a run result (recorded revision).
func (r *reportRun) sharedSteps(ctx context.Context, testCases []core.WorkItem, results map[int][]core.ActionResult) align.Library {
	wanted := make(map[align.SharedStepKey]bool)
	for _, tc := range testCases {
		def, err := align.ParseSteps(tc.Fields.String(r.svc.opts.Fields.Steps))
		if err != nil {
			continue
		}
		for _, id := range def.SharedStepRefs() {
			wanted[align.SharedStepKey{ID: id}] = true
		}
	}
	for _, list := range results {
		for _, a := range list {
			if a.SharedStepModel != nil && a.SharedStepModel.ID > 0 {
				wanted[align.SharedStepKey{ID: a.SharedStepModel.ID, Revision: a.SharedStepModel.Revision}] = true
			}
		}
	}

	keys := make([]align.SharedStepKey, 0, len(wanted))
	for k := range wanted {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ID != keys[j].ID {
			return keys[i].ID < keys[j].ID
		}
		return keys[i].Revision < keys[j].Revision
	})

	type fetched struct {
		payload *core.StepsPayload
		def     align.Definition
	}
	slots := make([]*fetched, len(keys))

	g := r.group(ctx)
	for i, key := range keys {
		i, key := i, key
		g.Go(fmt.Sprintf("shared-step-%d-%d", key.ID, key.Revision), func(ctx context.Context) {
			fctx, cancel := r.fetchContext(ctx)
			defer cancel()
			payload, err := r.svc.backend.FetchTestCaseSteps(fctx, key.ID, key.Revision)
			if err != nil {
				r.degrade(metrics.StageSharedSteps, "Failed to fetch shared step, references stay unresolved",
					"shared_step_id", key.ID,
					"revision", key.Revision,
					"error", err)
				return
			}
			def, err := align.ParseSteps(payload.StepsXML)
			if err != nil {
				r.logger.Warnw("Ignoring unparsable shared step definition",
					"shared_step_id", key.ID,
					"revision", key.Revision,
					"error", err)
			}
			slots[i] = &fetched{payload: payload, def: def}
		})
	}
	_ = g.Wait()

	library := make(align.Library, len(keys))
	for i, key := range keys {
		f := slots[i]
		if f == nil {
			continue
		}
		shared := align.SharedStep{Title: f.payload.Title, Definition: f.def}
		library[key] = shared
		if f.payload.Revision > 0 {
			exact := align.SharedStepKey{ID: key.ID, Revision: f.payload.Revision}
			if _, ok := library[exact]; !ok {
				library[exact] = shared
			}
		}
	}
	return library
}

// externalTables loads the optional bugs and L3/L4 tables of a request.
// A rejected table fails the run.
func (r *reportRun) externalTables(ctx context.Context, req Request) (map[string][]core.SubRequirementLink, []core.BugLink, error) {
	var subReqs map[string][]core.SubRequirementLink
	var bugs []core.BugLink

	load := func(ref string, kind tables.Kind) (*tables.Table, error) {
		if r.svc.tables == nil {
			return nil, fmt.Errorf("%w: external tables are not configured", core.ErrInvalidRequest)
		}
		fctx, cancel := r.fetchContext(ctx)
		defer cancel()
		t, err := r.svc.tables.Load(fctx, ref, kind)
		if err != nil {
			metrics.UpstreamFailures.WithLabelValues(metrics.StageTables).Inc()
			return nil, fmt.Errorf("%s table: %w", kind, err)
		}
		r.logger.Infow("External table loaded",
			"kind", kind,
			"source", t.Source,
			"header_row", t.HeaderRow,
			"rows", len(t.Records),
			"discarded", t.Discarded)
		return t, nil
	}

	if ref := strings.TrimSpace(req.BugsTable); ref != "" {
		t, err := load(ref, tables.KindBugs)
		if err != nil {
			return nil, nil, err
		}
		bugs = tables.BugLinks(t)
	}
	if ref := strings.TrimSpace(req.L3L4Table); ref != "" {
		t, err := load(ref, tables.KindL3L4)
		if err != nil {
			return nil, nil, err
		}
		subReqs = tables.GroupByBaseKey(tables.SubRequirementLinks(t, r.svc.extractor))
	}
	return subReqs, bugs, nil
}

// bugLinks merges table bugs (sort index order) with the bugs linked on the
// backend (id order) per test case. A bug listed in both keeps its table row.
func (r *reportRun) bugLinks(ctx context.Context, linked map[int]*core.LinkedRequirementEntry, tableBugs []core.BugLink) map[int][]core.BugLink {
	out := tables.GroupBugsByTestCase(tableBugs)

	ids := make(core.IntSet)
	for _, e := range linked {
		if e == nil {
			continue
		}
		for id := range e.BugIDs {
			ids.Add(id)
		}
	}
	if len(ids) == 0 {
		return out
	}

	fields := r.svc.opts.Fields
	items := make(map[int]core.WorkItem, len(ids))
	for _, it := range r.workItems(ctx, ids.Sorted(), false, metrics.StageWorkItems) {
		items[it.ID] = it
	}

	for _, tc := range sortedKeys(linked) {
		e := linked[tc]
		if e == nil || len(e.BugIDs) == 0 {
			continue
		}
		present := make(core.IntSet)
		for _, b := range out[tc] {
			present.Add(b.BugID)
		}
		for _, id := range e.BugIDs.Sorted() {
			item, ok := items[id]
			if !ok || present.Has(id) {
				continue
			}
			out[tc] = append(out[tc], core.BugLink{
				TestCaseID:     tc,
				BugID:          id,
				Title:          item.Fields.String(fields.Title),
				State:          item.Fields.String(fields.State),
				Severity:       item.Fields.String(fields.Severity),
				Responsibility: core.ResolveResponsibility(item.Fields.String(fields.SAPWBS), item.Fields.String(fields.AreaPath), core.ResponsibilityElisra),
			})
		}
	}
	return out
}
