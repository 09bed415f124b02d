// Package family groups requirement work items into base-key families.
package family

import (
	"sort"

	"reqtrace/core"
	"reqtrace/extract"
)

// FromWorkItem reduces a requirement work item. The full code comes from the
// configured requirement id field, falling back to the first code in the
// title. Tested-by edges of the requirement become LinkedTestCaseIDs.
// ok is false when no valid code can be found.
func FromWorkItem(item core.WorkItem, fields core.FieldMap, testedBy []string) (core.RequirementWorkItem, bool) {
	code, ok := extract.Canonical(item.Fields.String(fields.RequirementID))
	if !ok {
		codes := extract.Codes(item.Fields.String(fields.Title)).Sorted()
		if len(codes) == 0 {
			return core.RequirementWorkItem{}, false
		}
		code = codes[0]
	}

	areaPath := item.Fields.String(fields.AreaPath)
	return core.RequirementWorkItem{
		WorkItemID:        item.ID,
		RequirementID:     code,
		BaseKey:           extract.BaseKey(code),
		Title:             item.Fields.String(fields.Title),
		SubSystem:         item.Fields.String(fields.SubSystem),
		Responsibility:    core.ResolveResponsibility(item.Fields.String(fields.SAPWBS), areaPath, core.ResponsibilityIL),
		LinkedTestCaseIDs: core.NewIntSet(item.RelatedIDs(testedBy...)...).Sorted(),
		AreaPath:          areaPath,
		State:             item.Fields.String(fields.State),
	}, true
}

// Family is every requirement sharing one base key.
type Family struct {
	BaseKey string
	// Base is the parentless member, nil when only children exist
	Base *core.RequirementWorkItem
	// Children sorted by code
	Children []core.RequirementWorkItem
	// TestCaseIDs is the union of linked test cases across members, ascending
	TestCaseIDs []int
}

// HasBase reports whether the family has a parentless member.
func (f *Family) HasBase() bool {
	return f.Base != nil
}

// ChildCodes returns the full codes of the children in natural order.
func (f *Family) ChildCodes() []string {
	codes := make([]string, 0, len(f.Children))
	for _, c := range f.Children {
		codes = append(codes, c.RequirementID)
	}
	return codes
}

// Members returns the base (if any) followed by the children.
func (f *Family) Members() []core.RequirementWorkItem {
	members := make([]core.RequirementWorkItem, 0, len(f.Children)+1)
	if f.Base != nil {
		members = append(members, *f.Base)
	}
	return append(members, f.Children...)
}

// Index looks up families by base key and members by full code.
// A nil Index behaves as empty.
type Index struct {
	families map[string]*Family
	members  map[string]core.RequirementWorkItem
}

// Build groups requirements into families. Requirements sharing a full code
// are merged: the lowest work item id is kept and linked test cases are unioned.
func Build(requirements []core.RequirementWorkItem) *Index {
	members := make(map[string]core.RequirementWorkItem, len(requirements))
	linked := make(map[string]core.IntSet, len(requirements))

	for _, r := range requirements {
		code, ok := extract.Canonical(r.RequirementID)
		if !ok {
			continue
		}
		r.RequirementID = code
		r.BaseKey = extract.BaseKey(code)

		if linked[code] == nil {
			linked[code] = make(core.IntSet)
		}
		for _, id := range r.LinkedTestCaseIDs {
			linked[code].Add(id)
		}
		if existing, ok := members[code]; ok && existing.WorkItemID <= r.WorkItemID {
			continue
		}
		members[code] = r
	}

	ix := &Index{
		families: make(map[string]*Family),
		members:  members,
	}
	for code, r := range members {
		r.LinkedTestCaseIDs = linked[code].Sorted()
		members[code] = r

		f := ix.families[r.BaseKey]
		if f == nil {
			f = &Family{BaseKey: r.BaseKey}
			ix.families[r.BaseKey] = f
		}
		if r.IsBase() {
			base := r
			f.Base = &base
		} else {
			f.Children = append(f.Children, r)
		}
	}

	for _, f := range ix.families {
		sort.Slice(f.Children, func(i, j int) bool {
			return extract.Compare(f.Children[i].RequirementID, f.Children[j].RequirementID) < 0
		})
		ids := make(core.IntSet)
		for _, m := range f.Members() {
			for _, id := range m.LinkedTestCaseIDs {
				ids.Add(id)
			}
		}
		f.TestCaseIDs = ids.Sorted()
	}
	return ix
}

// Family returns the family of a base key. Any full code of the family is accepted.
func (ix *Index) Family(baseKey string) (*Family, bool) {
	if ix == nil {
		return nil, false
	}
	f, ok := ix.families[extract.BaseKey(baseKey)]
	return f, ok
}

// Member returns the requirement with the given full code.
func (ix *Index) Member(code string) (core.RequirementWorkItem, bool) {
	if ix == nil {
		return core.RequirementWorkItem{}, false
	}
	c, ok := extract.Canonical(code)
	if !ok {
		return core.RequirementWorkItem{}, false
	}
	r, ok := ix.members[c]
	return r, ok
}

// Families returns every family ordered by base key.
func (ix *Index) Families() []*Family {
	if ix == nil {
		return nil
	}
	out := make([]*Family, 0, len(ix.families))
	for _, f := range ix.families {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		return extract.Compare(out[i].BaseKey, out[j].BaseKey) < 0
	})
	return out
}

// Len returns the number of distinct full codes indexed.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.members)
}
