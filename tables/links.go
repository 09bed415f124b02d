package tables

import (
	"sort"
	"strconv"
	"strings"

	"reqtrace/core"
	"reqtrace/extract"
)

// BugLinks converts a bugs table into bug links ordered by sort index.
// Rows whose test case or bug id is not numeric are skipped.
func BugLinks(t *Table) []core.BugLink {
	if t == nil {
		return nil
	}
	links := make([]core.BugLink, 0, len(t.Records))
	for _, r := range t.Records {
		tc, ok1 := parseID(r.Get(ColTestCaseID))
		bug, ok2 := parseID(r.Get(ColBugID))
		if !ok1 || !ok2 {
			continue
		}
		links = append(links, core.BugLink{
			TestCaseID:     tc,
			BugID:          bug,
			Title:          r.Get(ColBugTitle),
			State:          r.Get(ColState),
			Severity:       r.Get(ColSeverity),
			Responsibility: core.ResolveResponsibility(r.Get(ColSAPWBS), r.Get(ColAreaPath), core.ResponsibilityElisra),
			SortIndex:      r.Get(ColSortIndex),
		})
	}
	sort.SliceStable(links, func(i, j int) bool {
		return lessSortIndex(links[i].SortIndex, links[j].SortIndex)
	})
	return links
}

// SubRequirementLinks converts an L3/L4 table into links keyed by the base
// key found in the L2 column. Rows without a recognizable code are skipped.
func SubRequirementLinks(t *Table, extractor *extract.Extractor) []core.SubRequirementLink {
	if t == nil {
		return nil
	}
	if extractor == nil {
		extractor = extract.New(extract.DefaultOptions(), nil)
	}
	links := make([]core.SubRequirementLink, 0, len(t.Records))
	for _, r := range t.Records {
		l2 := r.Get(ColL2Requirement)
		base := ""
		if c, ok := extract.Canonical(l2); ok {
			base = extract.BaseKey(c)
		} else if codes := extractor.Codes(l2).Sorted(); len(codes) > 0 {
			base = extract.BaseKey(codes[0])
		}
		if base == "" || r.Get(ColL3ID) == "" {
			continue
		}
		links = append(links, core.SubRequirementLink{
			BaseKey:        base,
			L3ID:           r.Get(ColL3ID),
			L3Title:        r.Get(ColL3Title),
			L4ID:           r.Get(ColL4ID),
			L4Title:        r.Get(ColL4Title),
			Responsibility: core.ResolveResponsibility(r.Get(ColSAPWBS), r.Get(ColAreaPath), core.ResponsibilityElisra),
		})
	}
	return links
}

// GroupBugsByTestCase groups bug links by test case, keeping order.
func GroupBugsByTestCase(links []core.BugLink) map[int][]core.BugLink {
	out := make(map[int][]core.BugLink)
	for _, l := range links {
		out[l.TestCaseID] = append(out[l.TestCaseID], l)
	}
	return out
}

// GroupByBaseKey groups sub-requirement links by base key, keeping order.
func GroupByBaseKey(links []core.SubRequirementLink) map[string][]core.SubRequirementLink {
	out := make(map[string][]core.SubRequirementLink)
	for _, l := range links {
		out[l.BaseKey] = append(out[l.BaseKey], l)
	}
	return out
}

// parseID accepts "123" and spreadsheet renderings such as "123.0".
func parseID(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, n > 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

func lessSortIndex(a, b string) bool {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		return fa < fb
	}
	return a < b
}
