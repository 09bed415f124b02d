package service

import (
	"fmt"

	"reqtrace/core"
)

// SuiteTree is a plan's suite hierarchy stored as an arena: nodes live in one
// slice and refer to each other by index.
type SuiteTree struct {
	nodes []suiteNode
	index map[int]int // suite id -> node index
	roots []int
}

type suiteNode struct {
	suite    core.Suite
	children []int
}

// NewSuiteTree builds the tree from a flat suite list. A suite whose parent is
// unknown becomes a root. Duplicate ids keep the first occurrence.
func NewSuiteTree(suites []core.Suite) *SuiteTree {
	t := &SuiteTree{index: make(map[int]int, len(suites))}
	for _, s := range suites {
		if s.ID <= 0 {
			continue
		}
		if _, dup := t.index[s.ID]; dup {
			continue
		}
		t.index[s.ID] = len(t.nodes)
		t.nodes = append(t.nodes, suiteNode{suite: s})
	}
	for i, n := range t.nodes {
		parent, ok := t.index[n.suite.ParentID]
		if !ok || n.suite.ParentID == n.suite.ID {
			t.roots = append(t.roots, i)
			continue
		}
		t.nodes[parent].children = append(t.nodes[parent].children, i)
	}
	return t
}

// Len returns the number of suites.
func (t *SuiteTree) Len() int {
	return len(t.nodes)
}

// Suite returns the suite with id.
func (t *SuiteTree) Suite(id int) (core.Suite, bool) {
	i, ok := t.index[id]
	if !ok {
		return core.Suite{}, false
	}
	return t.nodes[i].suite, true
}

// Select returns the suites of the subtrees rooted at ids, depth first in
// input order, each suite once. No ids selects the whole plan.
func (t *SuiteTree) Select(ids ...int) ([]core.Suite, error) {
	// Nodes caught in a parent cycle are not reachable from a root; they
	// follow the roots when the whole plan is selected.
	starts := append([]int(nil), t.roots...)
	for i := range t.nodes {
		starts = append(starts, i)
	}
	if len(ids) > 0 {
		starts = make([]int, 0, len(ids))
		for _, id := range ids {
			i, ok := t.index[id]
			if !ok {
				return nil, fmt.Errorf("%w: suite %d is not part of the plan", core.ErrInvalidRequest, id)
			}
			starts = append(starts, i)
		}
	}

	visited := make([]bool, len(t.nodes))
	var out []core.Suite
	stack := make([]int, 0, len(t.nodes))
	for _, start := range starts {
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if visited[i] {
				continue
			}
			visited[i] = true
			out = append(out, t.nodes[i].suite)
			children := t.nodes[i].children
			for c := len(children) - 1; c >= 0; c-- {
				stack = append(stack, children[c])
			}
		}
	}
	return out, nil
}
