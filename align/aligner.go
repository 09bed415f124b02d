// Package align merges a test case's static step definitions with the
// per-step outcomes recorded for its latest run.
package align

import (
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"reqtrace/core"
)

// Aligner produces ordered AlignedStep sequences. It holds no state besides its
// logger, so aligning the same input twice yields the same output.
type Aligner struct {
	logger *zap.SugaredLogger
}

// New creates an Aligner.
func New(logger *zap.SugaredLogger) *Aligner {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Aligner{logger: logger}
}

// Align aligns with a no-op logger.
func Align(def Definition, results []core.ActionResult, library Library) []core.AlignedStep {
	return New(nil).Align(def, results, library)
}

// staticEntry is one addressable row of the expanded static definition.
type staticEntry struct {
	identifier  string
	position    string
	action      string
	expected    string
	sharedTitle bool
}

// AlignXML parses stepsXML and aligns it. An unparsable definition is logged
// and treated as empty; dynamic results still contribute.
func (a *Aligner) AlignXML(testCaseID int, stepsXML string, results []core.ActionResult, library Library) []core.AlignedStep {
	def, err := ParseSteps(stepsXML)
	if err != nil {
		a.logger.Warnw("Ignoring unparsable steps definition",
			"test_case_id", testCaseID,
			"error", err)
	}
	return a.Align(def, results, library)
}

// Align merges def with results.
//
// Dynamic results are preferred: each is keyed by its step identifier ("3", or
// "3;2" for step 2 of the shared step referenced by compref 3) and its text is
// taken from the result itself, the shared step library at the recorded
// revision, or the static definition, in that order. Static steps the run did
// not record are added with an Unspecified outcome. When results are empty or
// carry no outcome at all, the static definition alone is emitted.
// Steps without a position are dropped.
func (a *Aligner) Align(def Definition, results []core.ActionResult, library Library) []core.AlignedStep {
	entries := a.expand(def, library)
	byIdentifier := make(map[string]staticEntry, len(entries))
	for _, e := range entries {
		byIdentifier[e.identifier] = e
	}

	steps := make(map[string]core.AlignedStep, len(entries))

	if hasOutcomes(results) {
		for _, r := range results {
			id := strings.TrimSpace(r.StepIdentifier)
			if id == "" {
				continue
			}
			steps[id] = a.fromResult(id, r, byIdentifier[id], library)
		}
	}

	for _, e := range entries {
		if _, ok := steps[e.identifier]; ok {
			continue
		}
		steps[e.identifier] = core.AlignedStep{
			StepID:            e.identifier,
			StepPosition:      e.position,
			Action:            e.action,
			Expected:          e.expected,
			IsSharedStepTitle: e.sharedTitle,
			Outcome:           core.OutcomeUnspecified,
		}
	}

	out := make([]core.AlignedStep, 0, len(steps))
	for _, s := range steps {
		if strings.TrimSpace(s.StepPosition) == "" {
			continue
		}
		s.Outcome = NormalizeOutcome(s.Outcome, s.IsSharedStepTitle)
		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool {
		if c := ComparePositions(out[i].StepPosition, out[j].StepPosition); c != 0 {
			return c < 0
		}
		return out[i].StepID < out[j].StepID
	})
	return out
}

func (a *Aligner) fromResult(id string, r core.ActionResult, static staticEntry, library Library) core.AlignedStep {
	step := core.AlignedStep{
		StepID:       id,
		StepPosition: strings.TrimSpace(r.StepPosition),
		Action:       r.Action,
		Expected:     r.Expected,
		Outcome:      r.Outcome,
	}
	if step.StepPosition == "" {
		step.StepPosition = static.position
	}

	parent, child, isChild := splitIdentifier(id)
	step.IsSharedStepTitle = static.sharedTitle || (r.SharedStepModel != nil && !isChild)

	if step.Action != "" || step.Expected != "" {
		return step
	}

	if r.SharedStepModel != nil {
		shared, ok := library.Lookup(r.SharedStepModel.ID, r.SharedStepModel.Revision)
		if !ok {
			a.logger.Warnw("Unknown shared step reference",
				"step_identifier", id,
				"shared_step_id", r.SharedStepModel.ID,
				"revision", r.SharedStepModel.Revision)
			return step
		}
		if !isChild {
			step.Action = shared.Title
			return step
		}
		if s, ok := shared.Definition.Step(child); ok {
			step.Action, step.Expected = s.Action, s.Expected
			return step
		}
		a.logger.Warnw("Shared step revision has no such step",
			"step_identifier", id,
			"compref_id", parent,
			"shared_step_id", r.SharedStepModel.ID,
			"revision", r.SharedStepModel.Revision)
		return step
	}

	step.Action, step.Expected = static.action, static.expected
	return step
}

// expand turns def into addressable rows, inlining shared step children from library.
func (a *Aligner) expand(def Definition, library Library) []staticEntry {
	entries := make([]staticEntry, 0, len(def.Steps))
	for i, s := range def.Steps {
		pos := strconv.Itoa(i + 1)
		id := strconv.Itoa(s.ID)

		if !s.IsSharedReference() {
			entries = append(entries, staticEntry{
				identifier: id,
				position:   pos,
				action:     s.Action,
				expected:   s.Expected,
			})
			continue
		}

		title := staticEntry{identifier: id, position: pos, sharedTitle: true}
		shared, ok := library.Lookup(s.SharedStepID, 0)
		if !ok {
			a.logger.Warnw("Unknown shared step reference",
				"step_identifier", id,
				"shared_step_id", s.SharedStepID)
			entries = append(entries, title)
			continue
		}
		title.action = shared.Title
		entries = append(entries, title)

		n := 0
		for _, child := range shared.Definition.Steps {
			if child.IsSharedReference() {
				continue
			}
			n++
			entries = append(entries, staticEntry{
				identifier: id + ";" + strconv.Itoa(child.ID),
				position:   pos + "." + strconv.Itoa(n),
				action:     child.Action,
				expected:   child.Expected,
			})
		}
	}
	return entries
}

// NormalizeOutcome maps an unspecified or absent outcome to "" for shared
// step title rows and to Not Run otherwise. Other outcomes pass through.
func NormalizeOutcome(o core.Outcome, sharedTitle bool) core.Outcome {
	if o != core.OutcomeNone && !strings.EqualFold(string(o), string(core.OutcomeUnspecified)) {
		return o
	}
	if sharedTitle {
		return core.OutcomeNone
	}
	return core.OutcomeNotRun
}

func hasOutcomes(results []core.ActionResult) bool {
	for _, r := range results {
		if r.Outcome != core.OutcomeNone {
			return true
		}
	}
	return false
}

func splitIdentifier(id string) (parent, child int, isChild bool) {
	head, tail, found := strings.Cut(id, ";")
	parent, _ = strconv.Atoi(head)
	if !found {
		return parent, 0, false
	}
	child, _ = strconv.Atoi(tail)
	return parent, child, true
}
