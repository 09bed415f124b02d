// Package validate compares, per test case, the requirement codes its steps
// mention with the requirements formally linked to it.
package validate

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"reqtrace/core"
	"reqtrace/extract"
	"reqtrace/family"
	"reqtrace/metrics"
)

// Result is the outcome for one test case.
type Result struct {
	TestCaseID int
	// MentionedNotLinked holds "Step <position>: <codes>" entries
	MentionedNotLinked []string
	// LinkedNotMentioned holds full codes, or a base key for a wholly unmentioned family
	LinkedNotMentioned []string
	Status             core.ValidationStatus
}

// Row converts the result to a validation payload row.
func (r Result) Row(title string) core.ValidationRow {
	return core.ValidationRow{
		TestCaseID:         r.TestCaseID,
		TestCaseTitle:      title,
		MentionedNotLinked: nonNil(r.MentionedNotLinked),
		LinkedNotMentioned: nonNil(r.LinkedNotMentioned),
		ValidationStatus:   r.Status,
	}
}

// Validator runs the two validation directions.
type Validator struct {
	extractor *extract.Extractor
	logger    *zap.SugaredLogger
}

// New creates a Validator. A nil extractor uses the default options.
func New(extractor *extract.Extractor, logger *zap.SugaredLogger) *Validator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if extractor == nil {
		extractor = extract.New(extract.DefaultOptions(), logger)
	}
	return &Validator{extractor: extractor, logger: logger}
}

// Validate checks one test case. Only expected-result text counts as a mention.
func (v *Validator) Validate(testCaseID int, steps []core.AlignedStep, linked *core.LinkedRequirementEntry, index *family.Index) Result {
	if linked == nil {
		linked = core.NewLinkedRequirementEntry()
	}

	mentioned := make(extract.CodeSet)
	var discrepancies []string
	seen := make(map[string]bool)

	for _, step := range steps {
		codes := v.extractor.Codes(step.Expected)
		mentioned.Union(codes)

		var missing []string
		for _, code := range codes.Sorted() {
			if !mentionSatisfied(code, linked, index) {
				missing = append(missing, code)
			}
			if index != nil {
				if _, ok := index.Member(code); !ok {
					v.logger.Debugw("Mentioned code is not a requirement in scope",
						"test_case_id", testCaseID,
						"step", step.StepPosition,
						"code", code)
				}
			}
		}
		if len(missing) == 0 {
			continue
		}
		entry := fmt.Sprintf("Step %s: %s", step.StepPosition, strings.Join(missing, ", "))
		if !seen[entry] {
			seen[entry] = true
			discrepancies = append(discrepancies, entry)
		}
	}

	r := Result{
		TestCaseID:         testCaseID,
		MentionedNotLinked: discrepancies,
		LinkedNotMentioned: unmentioned(linked, mentioned),
		Status:             core.ValidationPass,
	}
	if len(r.MentionedNotLinked) > 0 || len(r.LinkedNotMentioned) > 0 {
		r.Status = core.ValidationFail
		metrics.ValidationFailures.Inc()
		metrics.DiscrepanciesTotal.WithLabelValues("mentioned_not_linked").Add(float64(len(r.MentionedNotLinked)))
		metrics.DiscrepanciesTotal.WithLabelValues("linked_not_mentioned").Add(float64(len(r.LinkedNotMentioned)))
	}
	return r
}

// mentionSatisfied: a child needs the exact child linked. A bare base key
// needs the base linked when its family has no children, otherwise at least
// one linked child. Codes outside the index accept any linked family member.
func mentionSatisfied(code string, linked *core.LinkedRequirementEntry, index *family.Index) bool {
	if extract.IsChild(code) {
		return linked.FullCodes.Has(code)
	}

	f, ok := index.Family(code)
	if !ok {
		return linked.BaseKeys.Has(code) || linked.FullCodes.Has(code)
	}
	if len(f.Children) == 0 {
		return linked.FullCodes.Has(code)
	}
	for c := range linked.FullCodes {
		if extract.IsChild(c) && extract.BaseKey(c) == code {
			return true
		}
	}
	return false
}

// unmentioned lists linked requirements never mentioned. A family with no
// mention at all collapses to its base key. A bare base mention covers every
// linked member; a linked base member is covered by any mention in its family.
func unmentioned(linked *core.LinkedRequirementEntry, mentioned extract.CodeSet) []string {
	byFamily := make(map[string][]string)
	for code := range linked.FullCodes {
		base := extract.BaseKey(code)
		byFamily[base] = append(byFamily[base], code)
	}
	for base := range linked.BaseKeys {
		if _, ok := byFamily[base]; !ok {
			byFamily[base] = []string{base}
		}
	}

	familyMentioned := make(map[string]bool)
	for code := range mentioned {
		familyMentioned[extract.BaseKey(code)] = true
	}

	bases := make([]string, 0, len(byFamily))
	for base := range byFamily {
		bases = append(bases, base)
	}
	extract.SortCodes(bases)

	var out []string
	for _, base := range bases {
		if !familyMentioned[base] {
			out = append(out, base)
			continue
		}
		if mentioned.Has(base) {
			continue
		}
		members := byFamily[base]
		extract.SortCodes(members)
		for _, code := range members {
			if code == base || mentioned.Has(code) {
				continue
			}
			out = append(out, code)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
