package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reqtrace/core"
)

const snapshotYAML = `
suites:
  - {planId: 5, id: 1, name: root}
  - {planId: 5, id: 2, name: child, parentId: 1}
testPoints:
  - {planId: 5, suiteId: 2, testCaseId: 12, testCaseTitle: Boot test, lastRunId: 77, lastResultId: 100001}
workItems:
  - id: 12
    rev: 3
    fields:
      System.Title: Boot test
      System.WorkItemType: Test Case
      Microsoft.VSTS.TCM.Steps: <steps id="0" last="2"/>
    relations:
      - rel: Microsoft.VSTS.Common.TestedBy-Forward
        url: https://host/_apis/wit/workItems/1
  - id: 1
    workItemFields:
      - System.Title: Boot
      - Custom.RequirementID: SR0001
revisions:
  - id: 900
    rev: 4
    fields: {System.Title: Login v4}
  - id: 900
    rev: 2
    fields: {System.Title: Login v2}
runResults:
  - runId: 77
    resultId: 100001
    actionResults:
      - {stepIdentifier: "2", outcome: Passed}
requirementIds: [1]
queries:
  only-none: []
`

func writeSnapshot(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadSnapshot_YAML(t *testing.T) {
	s, err := LoadSnapshot(writeSnapshot(t, "snap.yaml", snapshotYAML), nil)
	require.NoError(t, err)
	ctx := context.Background()

	suites, err := s.ListPlanSuites(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []core.Suite{{ID: 1, Name: "root"}, {ID: 2, Name: "child", ParentID: 1}}, suites)

	_, err = s.ListPlanSuites(ctx, 6)
	assert.ErrorIs(t, err, core.ErrNotFound)

	points, err := s.ListSuiteTestPoints(ctx, 5, 2)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, 77, points[0].LastRunID)

	items, err := s.FetchWorkItemsByIDs(ctx, []int{1, 12, 99}, false)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "SR0001", items[0].Fields.String("Custom.RequirementID"))
	assert.Empty(t, items[1].Relations)

	items, err = s.FetchWorkItemsByIDs(ctx, []int{12}, true)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, items[0].RelatedIDs("Microsoft.VSTS.Common.TestedBy-Forward"))

	steps, err := s.FetchTestCaseSteps(ctx, 12, 0)
	require.NoError(t, err)
	assert.Equal(t, `<steps id="0" last="2"/>`, steps.StepsXML)

	shared, err := s.FetchTestCaseSteps(ctx, 900, 2)
	require.NoError(t, err)
	assert.Equal(t, "Login v2", shared.Title)
	latest, err := s.FetchTestCaseSteps(ctx, 900, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, latest.Revision)
	_, err = s.FetchTestCaseSteps(ctx, 900, 3)
	assert.ErrorIs(t, err, core.ErrNotFound)

	results, err := s.FetchRunActionResults(ctx, 77, 100001)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, core.OutcomePassed, results[0].Outcome)

	ids, err := s.QueryRequirementIDs(ctx, "anything")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, ids)
	ids, err = s.QueryRequirementIDs(ctx, "only-none")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestParseSnapshot_SchemaViolation(t *testing.T) {
	_, err := ParseSnapshot([]byte(`{"suites": [{"id": 1}]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "snapshot validation failed")

	_, err = ParseSnapshot([]byte(`{"runResults": [{"runId": "x", "resultId": 1}]}`))
	assert.Error(t, err)
}

func TestSnapshot_CancelledContext(t *testing.T) {
	s, err := ParseSnapshot([]byte(`{}`))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.FetchWorkItemsByIDs(ctx, []int{1}, false)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadSnapshot_MissingFile(t *testing.T) {
	_, err := LoadSnapshot(filepath.Join(t.TempDir(), "missing.json"), nil)
	assert.Error(t, err)
}
