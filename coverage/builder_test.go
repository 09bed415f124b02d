package coverage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reqtrace/core"
	"reqtrace/family"
)

func step(pos, expected string, outcome core.Outcome) core.AlignedStep {
	return core.AlignedStep{StepID: pos, StepPosition: pos, Expected: expected, Outcome: outcome}
}

func linkedEntry(codes ...string) *core.LinkedRequirementEntry {
	e := core.NewLinkedRequirementEntry()
	for _, c := range codes {
		e.FullCodes.Add(c)
	}
	return e
}

func rowsFor(rows []core.CoverageRow, code string) []core.CoverageRow {
	var out []core.CoverageRow
	for _, r := range rows {
		if r.RequirementID == code {
			out = append(out, r)
		}
	}
	return out
}

func TestBuild_ZippedJoin(t *testing.T) {
	in := Input{
		Index: family.Build([]core.RequirementWorkItem{
			{WorkItemID: 1, RequirementID: "SR0001", BaseKey: "SR0001", Title: "Boot", LinkedTestCaseIDs: []int{10}},
			{WorkItemID: 2, RequirementID: "SR0002", BaseKey: "SR0002", LinkedTestCaseIDs: []int{11}},
			{WorkItemID: 3, RequirementID: "SR0003", BaseKey: "SR0003"},
		}),
		Steps: map[int][]core.AlignedStep{
			10: {step("1", "boots", core.OutcomePassed)},
			11: {step("1", "runs", core.OutcomeFailed)},
		},
		TestCaseTitles: map[int]string{10: "Boot test", 11: "Run test"},
		Bugs: map[int][]core.BugLink{
			10: {
				{TestCaseID: 10, BugID: 500, Title: "Crash", Responsibility: "Elisra"},
				{TestCaseID: 10, BugID: 501, Title: "Hang", Responsibility: "ESUK"},
			},
		},
		SubRequirements: map[string][]core.SubRequirementLink{
			"SR0001": {{BaseKey: "SR0001", L3ID: "L3-1", L4ID: "L4-1", Responsibility: "Elisra"}},
		},
	}

	rows := NewBuilder(nil, nil).Build(in)

	sr1 := rowsFor(rows, "SR0001")
	require.Len(t, sr1, 2)
	assert.Equal(t, 500, sr1[0].BugID)
	assert.Equal(t, "L3-1", sr1[0].L3ID)
	assert.Equal(t, "L4-1", sr1[0].L4ID)
	assert.Equal(t, 501, sr1[1].BugID)
	assert.Empty(t, sr1[1].L3ID)
	assert.Empty(t, sr1[1].L4ID)
	assert.Empty(t, sr1[1].L3L4Responsibility)
	for _, r := range sr1 {
		assert.Equal(t, 10, r.TestCaseID)
		assert.Equal(t, "Boot test", r.TestCaseTitle)
		assert.Equal(t, core.SourceLinked, r.Source)
		assert.Equal(t, core.RunStatusPass, r.RunStatus)
	}

	sr2 := rowsFor(rows, "SR0002")
	require.Len(t, sr2, 1)
	assert.Zero(t, sr2[0].BugID)
	assert.Empty(t, sr2[0].BugTitle)
	assert.Empty(t, sr2[0].L3ID)
	assert.Equal(t, core.RunStatusFail, sr2[0].RunStatus)

	sr3 := rowsFor(rows, "SR0003")
	require.Len(t, sr3, 1)
	assert.Zero(t, sr3[0].TestCaseID)
	assert.Equal(t, core.RunStatusNotRun, sr3[0].RunStatus)
}

func TestBuild_CountsAndSources(t *testing.T) {
	in := Input{
		Index: family.Build([]core.RequirementWorkItem{
			{WorkItemID: 1, RequirementID: "SR0005"},
			{WorkItemID: 2, RequirementID: "SR0005-1"},
			{WorkItemID: 3, RequirementID: "SR0009"},
		}),
		Linked: map[int]*core.LinkedRequirementEntry{
			20: linkedEntry("SR0005-1"),
			30: linkedEntry("SR0009"),
		},
		Steps: map[int][]core.AlignedStep{
			20: {
				step("1", "SR0005 holds", core.OutcomePassed),
				step("2", "<b>SR0005-1</b> holds", core.OutcomeFailed),
				step("3", "unrelated", core.OutcomeNotRun),
				{StepID: "4", StepPosition: "4", IsSharedStepTitle: true, Outcome: core.OutcomeNone},
			},
			30: {
				step("1", "a", core.OutcomePassed),
				step("2", "b", core.OutcomePassed),
				step("3", "c", core.OutcomeNotRun),
				{StepID: "4", StepPosition: "4", IsSharedStepTitle: true, Outcome: core.OutcomeNone},
			},
		},
	}

	rows := NewBuilder(nil, nil).Build(in)
	require.Len(t, rows, 3)

	base := rows[0]
	assert.Equal(t, "SR0005", base.RequirementID)
	assert.Equal(t, 20, base.TestCaseID)
	assert.Equal(t, core.SourceMentioned, base.Source)
	assert.Equal(t, 1, base.Passed)
	assert.Equal(t, 1, base.Failed)
	assert.Equal(t, 0, base.NotRun)
	assert.Equal(t, core.RunStatusFail, base.RunStatus)

	child := rows[1]
	assert.Equal(t, "SR0005-1", child.RequirementID)
	assert.Equal(t, core.SourceLinkedMentioned, child.Source)
	assert.Equal(t, 0, child.Passed)
	assert.Equal(t, 1, child.Failed)

	linkedOnly := rows[2]
	assert.Equal(t, "SR0009", linkedOnly.RequirementID)
	assert.Equal(t, 30, linkedOnly.TestCaseID)
	assert.Equal(t, core.SourceLinked, linkedOnly.Source)
	assert.Equal(t, 2, linkedOnly.Passed)
	assert.Equal(t, 1, linkedOnly.NotRun)
	assert.Equal(t, core.RunStatusPass, linkedOnly.RunStatus)
}

func TestBuild_RowOrder(t *testing.T) {
	in := Input{
		Index: family.Build([]core.RequirementWorkItem{
			{WorkItemID: 1, RequirementID: "SR0010-10", LinkedTestCaseIDs: []int{2, 1}},
			{WorkItemID: 2, RequirementID: "SR0010-2"},
			{WorkItemID: 3, RequirementID: "SR0009"},
		}),
	}

	var got []string
	for _, r := range NewBuilder(nil, nil).Build(in) {
		got = append(got, r.RequirementID)
	}
	assert.Equal(t, []string{"SR0009", "SR0010-2", "SR0010-10", "SR0010-10"}, got)
}

func TestDedupeSubRequirements(t *testing.T) {
	got := DedupeSubRequirements([]core.SubRequirementLink{
		{L3ID: "A"},
		{L3ID: "A", L4ID: "X"},
		{L3ID: "A", L4ID: "X"},
		{L3ID: "B"},
		{L3ID: "B"},
		{L3ID: "A", L4ID: "Y"},
		{L4ID: "orphan"},
	})

	assert.Equal(t, []core.SubRequirementLink{
		{L3ID: "A", L4ID: "X"},
		{L3ID: "B"},
		{L3ID: "A", L4ID: "Y"},
	}, got)
}

func TestPayloadRecords(t *testing.T) {
	p := NewCoveragePayload("", []core.CoverageRow{{RequirementID: "SR0001", TestCaseID: 12, RunStatus: core.RunStatusPass}})
	assert.Equal(t, DefaultCoverageSheet, p.SheetName)
	assert.Equal(t, CoverageColumns, p.ColumnOrder)

	rec := p.Records()
	require.Len(t, rec, 1)
	assert.Len(t, rec[0], len(CoverageColumns))
	assert.Equal(t, "12", rec[0]["Test Case ID"])
	assert.Equal(t, "", rec[0]["Bug ID"])
	assert.Equal(t, "Pass", rec[0]["Run Status"])

	v := NewValidationPayload("QA", []core.ValidationRow{{
		TestCaseID:         4,
		MentionedNotLinked: []string{"Step 1: SR0001", "Step 2: SR0002"},
		ValidationStatus:   core.ValidationFail,
	}})
	assert.Equal(t, "QA", v.SheetName)
	vrec := v.Records()
	require.Len(t, vrec, 1)
	assert.Len(t, vrec[0], len(ValidationColumns))
	assert.Equal(t, "Step 1: SR0001\nStep 2: SR0002", vrec[0]["Mentioned Not Linked"])
	assert.Equal(t, "", vrec[0]["Linked Not Mentioned"])

	assert.NotNil(t, NewCoveragePayload("x", nil).Rows)
}
