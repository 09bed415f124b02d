package relation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reqtrace/core"
)

type fakeFetcher struct {
	mu      sync.Mutex
	items   map[int]core.WorkItem
	calls   [][]int
	failFor int
}

func (f *fakeFetcher) FetchWorkItemsByIDs(ctx context.Context, ids []int, includeRelations bool) ([]core.WorkItem, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]int(nil), ids...))
	f.mu.Unlock()

	var out []core.WorkItem
	for _, id := range ids {
		if id == f.failFor {
			return nil, errors.New("upstream 503")
		}
		if it, ok := f.items[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func target(id int, typ, state, code, title string) core.WorkItem {
	return core.WorkItem{ID: id, Fields: core.NewFields(map[string]interface{}{
		"System.WorkItemType":  typ,
		"System.State":         state,
		"Custom.RequirementID": code,
		"System.Title":         title,
	})}
}

func testCase(id int, edges map[string][]int) core.WorkItem {
	tc := core.WorkItem{ID: id}
	for rel, ids := range edges {
		for _, t := range ids {
			tc.Relations = append(tc.Relations, core.Relation{Rel: rel, TargetID: t})
		}
	}
	return tc
}

func TestResolve(t *testing.T) {
	fetcher := &fakeFetcher{items: map[int]core.WorkItem{
		100: target(100, "Requirement", "Active", "SR0054-1", ""),
		101: target(101, "Requirement", "Active", "", "SR0060 Title code"),
		102: target(102, "Requirement", "Removed", "SR0070", ""),
		103: target(103, "Requirement", "Active", "", "no code"),
		200: target(200, "Bug", "Active", "", ""),
		201: target(201, "Bug", "Closed", "", ""),
		300: target(300, "Change Request", "Active", "", ""),
		400: target(400, "Requirement", "Active", "SR0099", ""),
	}}

	r := NewResolver(fetcher, Options{}, nil)
	links, err := r.Resolve(context.Background(), []core.WorkItem{
		testCase(1, map[string][]int{
			DefaultRequirementRelation: {100, 101, 102, 103, 200},
			DefaultDefectRelation:      {201, 300, 400},
		}),
		testCase(2, map[string][]int{
			"microsoft.vsts.common.testedby-reverse": {100},
		}),
		testCase(3, nil),
	})
	require.NoError(t, err)
	require.Len(t, links, 3)

	e := links[1]
	assert.Equal(t, []string{"SR0054", "SR0060"}, e.BaseKeys.Slice())
	assert.Equal(t, []string{"SR0054-1", "SR0060"}, e.FullCodes.Slice())
	assert.Equal(t, []int{200, 201}, e.BugIDs.Sorted())
	assert.Equal(t, []int{300}, e.ChangeRequestIDs.Sorted())

	assert.Equal(t, []string{"SR0054-1"}, links[2].FullCodes.Slice())
	assert.True(t, links[3].Empty())

	// 100 is shared by two test cases but fetched once
	require.Len(t, fetcher.calls, 1)
	assert.Equal(t, []int{100, 101, 102, 103, 200, 201, 300, 400}, fetcher.calls[0])
}

func TestResolve_FailedBatchDegrades(t *testing.T) {
	fetcher := &fakeFetcher{
		items: map[int]core.WorkItem{
			1: target(1, "Requirement", "Active", "SR0001", ""),
			2: target(2, "Requirement", "Active", "SR0002", ""),
			3: target(3, "Requirement", "Active", "SR0003", ""),
		},
		failFor: 3,
	}

	r := NewResolver(fetcher, Options{BatchSize: 2, MaxConcurrency: 2}, nil)
	links, err := r.Resolve(context.Background(), []core.WorkItem{
		testCase(10, map[string][]int{DefaultRequirementRelation: {1, 2, 3}}),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"SR0001", "SR0002"}, links[10].FullCodes.Slice())
	assert.Len(t, fetcher.calls, 2)
}

func TestResolve_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewResolver(&fakeFetcher{}, Options{}, nil)
	_, err := r.Resolve(ctx, []core.WorkItem{testCase(1, map[string][]int{DefaultRequirementRelation: {1}})})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBatches(t *testing.T) {
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, Batches([]int{1, 2, 3, 4, 5}, 2))
	assert.Empty(t, Batches(nil, 2))
}
