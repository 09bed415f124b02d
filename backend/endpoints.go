package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"reqtrace/core"
)

// FetchWorkItemsByIDs returns the work items for ids in request order.
// Unknown ids are omitted.
func (c *Client) FetchWorkItemsByIDs(ctx context.Context, ids []int, includeRelations bool) ([]core.WorkItem, error) {
	found := make(map[int]core.WorkItem, len(ids))
	var missing []int
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		if item, ok := c.items.Get(itemKey{id, includeRelations}); ok {
			found[id] = item
			continue
		}
		missing = append(missing, id)
	}

	for start := 0; start < len(missing); start += maxIDsPerRequest {
		end := start + maxIDsPerRequest
		if end > len(missing) {
			end = len(missing)
		}
		batch, err := c.fetchWorkItemBatch(ctx, missing[start:end], includeRelations)
		if err != nil {
			return nil, err
		}
		for _, item := range batch {
			found[item.ID] = item
			c.items.Put(itemKey{item.ID, includeRelations}, item)
		}
	}

	out := make([]core.WorkItem, 0, len(found))
	for _, id := range ids {
		if item, ok := found[id]; ok {
			out = append(out, item)
			delete(found, id)
		}
	}
	return out, nil
}

func (c *Client) fetchWorkItemBatch(ctx context.Context, ids []int, includeRelations bool) ([]core.WorkItem, error) {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	q := url.Values{}
	q.Set("ids", strings.Join(parts, ","))
	q.Set("errorPolicy", "omit")
	if includeRelations {
		q.Set("$expand", "relations")
	}

	resp, err := c.do(ctx, http.MethodGet, EndpointWorkItems, "wit/workitems", q, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %d work items: %w", len(ids), err)
	}
	return NormalizeWorkItems(resp.body)
}

// FetchTestCaseSteps returns the steps XML and title of a work item at
// revision, or at its latest revision when revision is 0.
func (c *Client) FetchTestCaseSteps(ctx context.Context, workItemID, revision int) (*core.StepsPayload, error) {
	key := stepsKey{workItemID, revision}
	if p, ok := c.steps.Get(key); ok {
		return &p, nil
	}

	path := "wit/workitems/" + strconv.Itoa(workItemID)
	if revision > 0 {
		path += "/revisions/" + strconv.Itoa(revision)
	}
	resp, err := c.do(ctx, http.MethodGet, EndpointRevision, path, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch steps of work item %d rev %d: %w", workItemID, revision, err)
	}

	item, err := NormalizeWorkItem(resp.body)
	if err != nil {
		return nil, err
	}
	p := core.StepsPayload{
		WorkItemID: workItemID,
		Revision:   item.Rev,
		Title:      item.Title(),
		StepsXML:   item.Fields.String(c.opts.StepsField),
	}
	if p.Revision == 0 {
		p.Revision = revision
	}
	c.steps.Put(key, p)
	return &p, nil
}

// FetchRunActionResults returns the action results of the latest iteration of a result.
func (c *Client) FetchRunActionResults(ctx context.Context, runID, resultID int) ([]core.ActionResult, error) {
	path := fmt.Sprintf("test/Runs/%d/Results/%d", runID, resultID)
	q := url.Values{}
	q.Set("detailsToInclude", "Iterations")

	resp, err := c.do(ctx, http.MethodGet, EndpointRunResult, path, q, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch run %d result %d: %w", runID, resultID, err)
	}
	return LatestIterationResults(resp.body)
}

// ListPlanSuites lists every suite of a plan as a flat list with parent ids.
func (c *Client) ListPlanSuites(ctx context.Context, planID int) ([]core.Suite, error) {
	path := fmt.Sprintf("testplan/Plans/%d/suites", planID)
	q := url.Values{}
	q.Set("asTreeView", "false")

	var suites []core.Suite
	err := c.pages(ctx, EndpointSuites, path, q, func(raw json.RawMessage) error {
		var s wireSuite
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("%w: suite: %v", core.ErrMalformedPayload, err)
		}
		if s.ID > 0 {
			suites = append(suites, s.normalize())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list suites of plan %d: %w", planID, err)
	}
	return suites, nil
}

// ListSuiteTestPoints lists the test points of one suite with their last result pointers.
func (c *Client) ListSuiteTestPoints(ctx context.Context, planID, suiteID int) ([]core.TestPoint, error) {
	path := fmt.Sprintf("testplan/Plans/%d/Suites/%d/TestPoint", planID, suiteID)
	q := url.Values{}
	q.Set("includePointDetails", "true")

	var points []core.TestPoint
	err := c.pages(ctx, EndpointTestPoints, path, q, func(raw json.RawMessage) error {
		var p wireTestPoint
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("%w: test point: %v", core.ErrMalformedPayload, err)
		}
		if p.TestCaseReference.ID > 0 {
			points = append(points, p.normalize(suiteID))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list test points of suite %d: %w", suiteID, err)
	}
	return points, nil
}

// QueryRequirementIDs runs a WIQL query and returns the matching work item ids.
func (c *Client) QueryRequirementIDs(ctx context.Context, query string) ([]int, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty requirements query", core.ErrInvalidRequest)
	}
	resp, err := c.do(ctx, http.MethodPost, EndpointWIQL, "wit/wiql", nil, map[string]string{"query": query})
	if err != nil {
		return nil, fmt.Errorf("requirements query failed: %w", err)
	}

	var r wiqlResponse
	if err := json.Unmarshal(resp.body, &r); err != nil {
		return nil, fmt.Errorf("%w: wiql: %v", core.ErrMalformedPayload, err)
	}
	ids := make([]int, 0, len(r.WorkItems))
	for _, w := range r.WorkItems {
		if w.ID > 0 {
			ids = append(ids, w.ID)
		}
	}
	return ids, nil
}
