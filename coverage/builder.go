// Package coverage builds the requirement by test case coverage matrix and
// flattens it into report rows.
package coverage

import (
	"sort"

	"go.uber.org/zap"

	"reqtrace/core"
	"reqtrace/extract"
	"reqtrace/family"
)

// Input is everything a coverage build consumes. All maps are keyed by
// stable ids: test case id, or base key for SubRequirements.
type Input struct {
	Index           *family.Index
	Linked          map[int]*core.LinkedRequirementEntry
	Steps           map[int][]core.AlignedStep
	TestCaseTitles  map[int]string
	Bugs            map[int][]core.BugLink
	SubRequirements map[string][]core.SubRequirementLink
}

// Builder builds coverage rows.
type Builder struct {
	extractor *extract.Extractor
	logger    *zap.SugaredLogger
}

// NewBuilder creates a Builder. A nil extractor uses the default options.
func NewBuilder(extractor *extract.Extractor, logger *zap.SugaredLogger) *Builder {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if extractor == nil {
		extractor = extract.New(extract.DefaultOptions(), logger)
	}
	return &Builder{extractor: extractor, logger: logger}
}

// mentionIndex holds the codes mentioned by each step of each test case.
type mentionIndex struct {
	perStep map[int][]extract.CodeSet
	all     map[int]extract.CodeSet
}

func (b *Builder) mentions(steps map[int][]core.AlignedStep) mentionIndex {
	m := mentionIndex{
		perStep: make(map[int][]extract.CodeSet, len(steps)),
		all:     make(map[int]extract.CodeSet, len(steps)),
	}
	for tc, list := range steps {
		union := make(extract.CodeSet)
		sets := make([]extract.CodeSet, len(list))
		for i, s := range list {
			sets[i] = b.extractor.Codes(s.Expected)
			union.Union(sets[i])
		}
		m.perStep[tc] = sets
		m.all[tc] = union
	}
	return m
}

// matches reports whether set mentions code. A base member also matches
// mentions of its children.
func matches(set extract.CodeSet, code string, isBase bool) bool {
	if set.Has(code) {
		return true
	}
	if !isBase {
		return false
	}
	for c := range set {
		if extract.BaseKey(c) == code {
			return true
		}
	}
	return false
}

// Build returns one row per (member, test case, zipped bug / L3-L4 pair),
// ordered by requirement code then test case.
func (b *Builder) Build(in Input) []core.CoverageRow {
	mentioned := b.mentions(in.Steps)
	subReqs := make(map[string][]core.SubRequirementLink, len(in.SubRequirements))
	for base, links := range in.SubRequirements {
		subReqs[extract.BaseKey(base)] = DedupeSubRequirements(links)
	}

	var rows []core.CoverageRow
	for _, f := range in.Index.Families() {
		for _, member := range f.Members() {
			rows = append(rows, b.memberRows(member, in, mentioned, subReqs[member.BaseKey])...)
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if c := extract.Compare(rows[i].RequirementID, rows[j].RequirementID); c != 0 {
			return c < 0
		}
		return rows[i].TestCaseID < rows[j].TestCaseID
	})
	return rows
}

func (b *Builder) memberRows(member core.RequirementWorkItem, in Input, mentioned mentionIndex, l3l4 []core.SubRequirementLink) []core.CoverageRow {
	code := member.RequirementID
	isBase := member.IsBase()

	linked := core.NewIntSet(member.LinkedTestCaseIDs...)
	for tc, entry := range in.Linked {
		if entry != nil && entry.FullCodes.Has(code) {
			linked.Add(tc)
		}
	}
	inferred := make(core.IntSet)
	for tc, set := range mentioned.all {
		if matches(set, code, isBase) {
			inferred.Add(tc)
		}
	}

	all := make(core.IntSet, len(linked)+len(inferred))
	for tc := range linked {
		all.Add(tc)
	}
	for tc := range inferred {
		all.Add(tc)
	}

	template := core.CoverageRow{
		RequirementID:    code,
		BaseKey:          member.BaseKey,
		RequirementTitle: member.Title,
		SubSystem:        member.SubSystem,
		Responsibility:   member.Responsibility,
	}

	if len(all) == 0 {
		template.RunStatus = core.RunStatusNotRun
		return join(template, nil, l3l4)
	}

	var rows []core.CoverageRow
	for _, tc := range all.Sorted() {
		cell := b.cell(code, isBase, tc, in.Steps[tc], mentioned.perStep[tc], linked.Has(tc))

		row := template
		row.TestCaseID = tc
		row.TestCaseTitle = in.TestCaseTitles[tc]
		row.Source = source(linked.Has(tc), inferred.Has(tc))
		row.Passed, row.Failed, row.NotRun = cell.Passed, cell.Failed, cell.NotRun
		row.RunStatus = cell.Status()

		rows = append(rows, join(row, in.Bugs[tc], l3l4)...)
	}
	return rows
}

// cell counts the steps of one test case that mention code. A formally
// linked test case whose steps never mention it counts every step.
func (b *Builder) cell(code string, isBase bool, tc int, steps []core.AlignedStep, perStep []extract.CodeSet, isLinked bool) core.CoverageCell {
	cell := core.CoverageCell{Code: code, TestCaseID: tc}

	matched := 0
	for i, s := range steps {
		if i < len(perStep) && matches(perStep[i], code, isBase) {
			cell.Count(s.Outcome)
			matched++
		}
	}
	if matched == 0 && isLinked {
		for _, s := range steps {
			cell.Count(s.Outcome)
		}
	}
	return cell
}

func source(linked, mentioned bool) string {
	switch {
	case linked && mentioned:
		return core.SourceLinkedMentioned
	case linked:
		return core.SourceLinked
	case mentioned:
		return core.SourceMentioned
	}
	return ""
}

// join zips bugs with L3/L4 pairs onto copies of row: max(len(bugs), len(l3l4), 1) rows.
func join(row core.CoverageRow, bugs []core.BugLink, l3l4 []core.SubRequirementLink) []core.CoverageRow {
	pairs := core.Zip(bugs, l3l4)
	out := make([]core.CoverageRow, 0, len(pairs))
	for _, p := range pairs {
		r := row
		if p.HasLeft {
			r.BugID = p.Left.BugID
			r.BugTitle = p.Left.Title
			r.BugState = p.Left.State
			r.BugResponsibility = p.Left.Responsibility
		}
		if p.HasRight {
			r.L3ID = p.Right.L3ID
			r.L3Title = p.Right.L3Title
			r.L4ID = p.Right.L4ID
			r.L4Title = p.Right.L4Title
			r.L3L4Responsibility = p.Right.Responsibility
		}
		out = append(out, r)
	}
	return out
}

// DedupeSubRequirements collapses duplicate (L3, L4) pairs and drops a
// standalone L3 when the same L3 also appears with an L4. Order of first
// appearance is kept.
func DedupeSubRequirements(links []core.SubRequirementLink) []core.SubRequirementLink {
	hasL4 := make(map[string]bool)
	for _, l := range links {
		if l.L4ID != "" {
			hasL4[l.L3ID] = true
		}
	}

	type pairKey struct{ l3, l4 string }
	seen := make(map[pairKey]bool, len(links))
	out := make([]core.SubRequirementLink, 0, len(links))
	for _, l := range links {
		if l.L3ID == "" {
			continue
		}
		if l.L4ID == "" && hasL4[l.L3ID] {
			continue
		}
		k := pairKey{l.L3ID, l.L4ID}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, l)
	}
	return out
}
