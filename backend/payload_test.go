package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reqtrace/core"
)

func TestNormalizeWorkItem_Shapes(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{
			name:    "fields object",
			payload: `{"id": 7, "rev": 3, "fields": {"System.Title": "Boot", "Custom.RequirementID": "SR0001"}}`,
		},
		{
			name:    "workItemFields single-entry objects",
			payload: `{"id": 7, "rev": 3, "workItemFields": [{"System.Title": "Boot"}, {"Custom.RequirementID": "SR0001"}]}`,
		},
		{
			name:    "workItemFields key value pairs",
			payload: `{"id": 7, "rev": 3, "workItemFields": [{"key": "System.Title", "value": "Boot"}, {"referenceName": "Custom.RequirementID", "value": "SR0001"}]}`,
		},
		{
			name:    "id from System.Id",
			payload: `{"rev": 3, "fields": {"System.Id": 7, "system.title": "Boot", "CUSTOM.REQUIREMENTID": "SR0001"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, err := NormalizeWorkItem([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, 7, item.ID)
			assert.Equal(t, 3, item.Rev)
			assert.Equal(t, "Boot", item.Title())
			assert.Equal(t, "SR0001", item.Fields.String("Custom.RequirementID"))
		})
	}
}

func TestNormalizeWorkItem_Relations(t *testing.T) {
	item, err := NormalizeWorkItem([]byte(`{
		"id": 10,
		"fields": {},
		"relations": [
			{"rel": "Microsoft.VSTS.Common.TestedBy-Reverse", "url": "https://host/_apis/wit/workItems/55"},
			{"rel": "AttachedFile", "url": "https://host/_apis/wit/attachments/abc"}
		]
	}`))
	require.NoError(t, err)
	require.Len(t, item.Relations, 2)
	assert.Equal(t, 55, item.Relations[0].TargetID)
	assert.Zero(t, item.Relations[1].TargetID)
	assert.Equal(t, []int{55}, item.RelatedIDs("microsoft.vsts.common.testedby-reverse"))
}

func TestNormalizeWorkItem_Malformed(t *testing.T) {
	_, err := NormalizeWorkItem([]byte(`{"id": "x"`))
	assert.ErrorIs(t, err, core.ErrMalformedPayload)
}

func TestNormalizeWorkItems(t *testing.T) {
	items, err := NormalizeWorkItems([]byte(`{"count": 3, "value": [{"id": 1, "fields": {}}, null, {"id": 2, "fields": {}}]}`))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 1, items[0].ID)
	assert.Equal(t, 2, items[1].ID)

	items, err = NormalizeWorkItems([]byte(`[{"id": 4}]`))
	require.NoError(t, err)
	require.Len(t, items, 1)

	items, err = NormalizeWorkItems([]byte(`{"id": 9, "fields": {"System.Title": "single"}}`))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "single", items[0].Title())

	items, err = NormalizeWorkItems(nil)
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = NormalizeWorkItems([]byte(`"nope"`))
	assert.ErrorIs(t, err, core.ErrMalformedPayload)
}

func TestLatestIterationResults(t *testing.T) {
	results, err := LatestIterationResults([]byte(`{
		"id": 100000,
		"outcome": "Failed",
		"iterationDetails": [
			{"id": 2, "actionResults": [
				{"actionPath": "00000002", "stepIdentifier": "2", "outcome": "Failed"},
				{"actionPath": "00000003", "stepIdentifier": "3", "outcome": "Passed", "sharedStepModel": {"id": 900, "revision": 4}}
			]},
			{"id": 1, "actionResults": [
				{"stepIdentifier": "2", "outcome": "Passed"}
			]}
		]
	}`))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, core.OutcomeFailed, results[0].Outcome)
	require.NotNil(t, results[1].SharedStepModel)
	assert.Equal(t, core.SharedStepModel{ID: 900, Revision: 4}, *results[1].SharedStepModel)

	results, err = LatestIterationResults([]byte(`{"id": 1}`))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestTestPointNormalize(t *testing.T) {
	var p wireTestPoint
	p.TestCaseReference.ID = 12
	p.TestCaseReference.Name = "Boot test"
	p.Results.LastTestRunID = "77"
	p.Results.LastResultID = float64(100001)
	p.Results.Outcome = "passed"

	tp := p.normalize(5)
	assert.Equal(t, core.TestPoint{
		SuiteID:       5,
		TestCaseID:    12,
		TestCaseTitle: "Boot test",
		LastRunID:     77,
		LastResultID:  100001,
		Outcome:       "passed",
	}, tp)
}
