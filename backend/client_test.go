package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reqtrace/core"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Options{
		BaseURL:           srv.URL,
		Organization:      "org",
		Project:           "proj",
		Token:             "pat",
		RequestsPerSecond: 1000,
		Burst:             1000,
		MaxRetries:        2,
	}, nil)
	require.NoError(t, err)
	c.retry = fastRetry(2)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Options{}, nil)
	assert.Error(t, err)
	_, err = NewClient(Options{BaseURL: "not a url"}, nil)
	assert.Error(t, err)
}

func TestFetchWorkItemsByIDs(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/org/proj/_apis/wit/workitems", r.URL.Path)
		assert.Equal(t, "7.1", r.URL.Query().Get("api-version"))
		assert.Equal(t, "relations", r.URL.Query().Get("$expand"))
		assert.Equal(t, "omit", r.URL.Query().Get("errorPolicy"))
		_, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "pat", pass)

		assert.Equal(t, "3,1", r.URL.Query().Get("ids"))
		_, _ = io.WriteString(w, `{"count": 2, "value": [
			{"id": 1, "rev": 2, "fields": {"System.Title": "one"}},
			null,
			{"id": 3, "rev": 1, "workItemFields": [{"System.Title": "three"}],
			 "relations": [{"rel": "Microsoft.VSTS.Common.TestedBy-Forward", "url": "https://x/_apis/wit/workItems/40"}]}
		]}`)
	})

	items, err := c.FetchWorkItemsByIDs(context.Background(), []int{3, 1, 3, 0}, true)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 3, items[0].ID)
	assert.Equal(t, "three", items[0].Title())
	assert.Equal(t, []int{40}, items[0].RelatedIDs("Microsoft.VSTS.Common.TestedBy-Forward"))
	assert.Equal(t, 1, items[1].ID)

	items, err = c.FetchWorkItemsByIDs(context.Background(), []int{1, 3}, true)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "second lookup is served from cache")
}

func TestFetchWorkItemsByIDs_Batches(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		ids := strings.Split(r.URL.Query().Get("ids"), ",")
		assert.LessOrEqual(t, len(ids), maxIDsPerRequest)
		_, _ = io.WriteString(w, `{"value": []}`)
	})

	ids := make([]int, maxIDsPerRequest+5)
	for i := range ids {
		ids[i] = i + 1
	}
	items, err := c.FetchWorkItemsByIDs(context.Background(), ids, false)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchTestCaseSteps(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/org/proj/_apis/wit/workitems/900/revisions/4":
			_, _ = io.WriteString(w, `{"id": 900, "rev": 4, "fields": {"System.Title": "Login v4", "Microsoft.VSTS.TCM.Steps": "<steps/>"}}`)
		case "/org/proj/_apis/wit/workitems/900":
			_, _ = io.WriteString(w, `{"id": 900, "rev": 6, "fields": {"System.Title": "Login"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"message": "work item does not exist"}`)
		}
	})

	p, err := c.FetchTestCaseSteps(context.Background(), 900, 4)
	require.NoError(t, err)
	assert.Equal(t, core.StepsPayload{WorkItemID: 900, Revision: 4, Title: "Login v4", StepsXML: "<steps/>"}, *p)

	p, err = c.FetchTestCaseSteps(context.Background(), 900, 0)
	require.NoError(t, err)
	assert.Equal(t, 6, p.Revision)
	assert.Empty(t, p.StepsXML)

	_, err = c.FetchTestCaseSteps(context.Background(), 901, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestFetchRunActionResults(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/org/proj/_apis/test/Runs/77/Results/100001", r.URL.Path)
		assert.Equal(t, "Iterations", r.URL.Query().Get("detailsToInclude"))
		_, _ = io.WriteString(w, `{"id": 100001, "iterationDetails": [{"id": 1, "actionResults": [{"stepIdentifier": "2", "outcome": "Passed"}]}]}`)
	})

	results, err := c.FetchRunActionResults(context.Background(), 77, 100001)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "2", results[0].StepIdentifier)
}

func TestRetriesTransientFailures(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"id": 1, "iterationDetails": []}`)
	})

	results, err := c.FetchRunActionResults(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestListPlanSuites_Pagination(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/org/proj/_apis/testplan/Plans/5/suites", r.URL.Path)
		if r.URL.Query().Get("continuationToken") == "" {
			w.Header().Set(continuationHeader, "page2")
			_, _ = io.WriteString(w, `{"value": [{"id": 1, "name": "root"}, {"id": 2, "name": "a", "parentSuite": {"id": 1}}]}`)
			return
		}
		assert.Equal(t, "page2", r.URL.Query().Get("continuationToken"))
		_, _ = io.WriteString(w, `{"value": [{"id": 3, "name": "b", "parentSuite": {"id": 2}}]}`)
	})

	suites, err := c.ListPlanSuites(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, []core.Suite{
		{ID: 1, Name: "root"},
		{ID: 2, Name: "a", ParentID: 1},
		{ID: 3, Name: "b", ParentID: 2},
	}, suites)
}

func TestListSuiteTestPoints(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/org/proj/_apis/testplan/Plans/5/Suites/2/TestPoint", r.URL.Path)
		_, _ = io.WriteString(w, `{"value": [
			{"testCaseReference": {"id": 12, "name": "Boot"}, "results": {"lastTestRunId": "77", "lastResultId": "100001", "outcome": "failed"}},
			{"testCaseReference": {"id": 0}}
		]}`)
	})

	points, err := c.ListSuiteTestPoints(context.Background(), 5, 2)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, 2, points[0].SuiteID)
	assert.Equal(t, 77, points[0].LastRunID)
	assert.Equal(t, 100001, points[0].LastResultID)
}

func TestQueryRequirementIDs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/org/proj/_apis/wit/wiql", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body["query"], "Requirement")
		_, _ = io.WriteString(w, `{"workItems": [{"id": 1}, {"id": 2}]}`)
	})

	ids, err := c.QueryRequirementIDs(context.Background(), "SELECT [System.Id] FROM WorkItems WHERE [System.WorkItemType] = 'Requirement'")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, ids)

	_, err = c.QueryRequirementIDs(context.Background(), " ")
	assert.ErrorIs(t, err, core.ErrInvalidRequest)
}

func TestContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FetchRunActionResults(ctx, 1, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
