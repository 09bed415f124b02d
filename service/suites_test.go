package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reqtrace/core"
)

func suiteIDs(suites []core.Suite) []int {
	ids := make([]int, 0, len(suites))
	for _, s := range suites {
		ids = append(ids, s.ID)
	}
	return ids
}

func TestSuiteTree_Select(t *testing.T) {
	tree := NewSuiteTree([]core.Suite{
		{ID: 1, Name: "root"},
		{ID: 2, ParentID: 1},
		{ID: 3, ParentID: 1},
		{ID: 4, ParentID: 2},
		{ID: 5, ParentID: 99},
		{ID: 2, ParentID: 3},
	})
	assert.Equal(t, 5, tree.Len())

	all, err := tree.Select()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 4, 3, 5}, suiteIDs(all))

	sub, err := tree.Select(2)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4}, suiteIDs(sub))

	overlap, err := tree.Select(4, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 1, 2, 3}, suiteIDs(overlap))

	_, err = tree.Select(42)
	assert.ErrorIs(t, err, core.ErrInvalidRequest)

	s, ok := tree.Suite(1)
	assert.True(t, ok)
	assert.Equal(t, "root", s.Name)
}

func TestSuiteTree_Cycle(t *testing.T) {
	tree := NewSuiteTree([]core.Suite{
		{ID: 1, ParentID: 2},
		{ID: 2, ParentID: 1},
		{ID: 3, ParentID: 3},
	})

	all, err := tree.Select()
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2, 3}, suiteIDs(all))

	sub, err := tree.Select(1)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, suiteIDs(sub))
}
