package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"reqtrace/core"
)

// snapshotSchema checks the document shape before it is decoded.
const snapshotSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "suites": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["planId", "id"],
        "properties": {
          "planId": {"type": "integer", "minimum": 1},
          "id": {"type": "integer", "minimum": 1},
          "name": {"type": "string"},
          "parentId": {"type": "integer", "minimum": 0}
        }
      }
    },
    "testPoints": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["planId", "suiteId", "testCaseId"],
        "properties": {
          "planId": {"type": "integer", "minimum": 1},
          "suiteId": {"type": "integer", "minimum": 1},
          "testCaseId": {"type": "integer", "minimum": 1},
          "testCaseTitle": {"type": "string"},
          "lastRunId": {"type": "integer", "minimum": 0},
          "lastResultId": {"type": "integer", "minimum": 0},
          "outcome": {"type": "string"}
        }
      }
    },
    "workItems": {"type": "array", "items": {"type": "object"}},
    "revisions": {"type": "array", "items": {"type": "object"}},
    "runResults": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["runId", "resultId"],
        "properties": {
          "runId": {"type": "integer", "minimum": 1},
          "resultId": {"type": "integer", "minimum": 1},
          "actionResults": {"type": "array", "items": {"type": "object"}}
        }
      }
    },
    "requirementIds": {"type": "array", "items": {"type": "integer", "minimum": 1}},
    "queries": {
      "type": "object",
      "additionalProperties": {"type": "array", "items": {"type": "integer", "minimum": 1}}
    }
  }
}`

// SnapshotSuite is a suite of one plan.
type SnapshotSuite struct {
	PlanID   int    `json:"planId"`
	ID       int    `json:"id"`
	Name     string `json:"name"`
	ParentID int    `json:"parentId,omitempty"`
}

// SnapshotTestPoint is a test point of one plan and suite.
type SnapshotTestPoint struct {
	PlanID int `json:"planId"`
	core.TestPoint
}

// SnapshotRunResult holds the latest iteration's action results of one result.
type SnapshotRunResult struct {
	RunID         int                 `json:"runId"`
	ResultID      int                 `json:"resultId"`
	ActionResults []core.ActionResult `json:"actionResults"`
}

// SnapshotDocument is the on-disk layout of an offline backend.
// Work items and revisions accept either upstream field shape.
type SnapshotDocument struct {
	Suites         []SnapshotSuite     `json:"suites"`
	TestPoints     []SnapshotTestPoint `json:"testPoints"`
	WorkItems      []json.RawMessage   `json:"workItems"`
	Revisions      []json.RawMessage   `json:"revisions"`
	RunResults     []SnapshotRunResult `json:"runResults"`
	RequirementIDs []int               `json:"requirementIds"`
	Queries        map[string][]int    `json:"queries"`
}

type runKey struct{ run, result int }

// Snapshot is an offline backend read from a JSON or YAML file.
// It is immutable after load and implements core.Backend.
type Snapshot struct {
	suites     map[int][]core.Suite
	points     map[[2]int][]core.TestPoint
	items      map[int]core.WorkItem
	revisions  map[int][]core.WorkItem // sorted by rev
	runResults map[runKey][]core.ActionResult
	reqIDs     []int
	queries    map[string][]int
	stepsField string
}

var _ core.Backend = (*Snapshot)(nil)

// LoadSnapshot reads and validates a snapshot file. Files ending in .yaml or
// .yml are decoded as YAML, everything else as JSON.
func LoadSnapshot(path string, logger *zap.SugaredLogger) (*Snapshot, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		if data, err = yamlToJSON(data); err != nil {
			return nil, fmt.Errorf("failed to parse snapshot YAML: %w", err)
		}
	}

	s, err := ParseSnapshot(data)
	if err != nil {
		return nil, err
	}
	logger.Infow("Snapshot backend loaded",
		"path", path,
		"work_items", len(s.items),
		"plans", len(s.suites),
		"run_results", len(s.runResults))
	return s, nil
}

// ParseSnapshot validates and decodes a JSON snapshot document.
func ParseSnapshot(data []byte) (*Snapshot, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(snapshotSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to validate snapshot against schema: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("snapshot validation failed: %s", strings.Join(msgs, "; "))
	}

	var doc SnapshotDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return NewSnapshot(doc)
}

// NewSnapshot indexes a decoded document.
func NewSnapshot(doc SnapshotDocument) (*Snapshot, error) {
	s := &Snapshot{
		suites:     make(map[int][]core.Suite),
		points:     make(map[[2]int][]core.TestPoint),
		items:      make(map[int]core.WorkItem, len(doc.WorkItems)),
		revisions:  make(map[int][]core.WorkItem),
		runResults: make(map[runKey][]core.ActionResult, len(doc.RunResults)),
		reqIDs:     append([]int(nil), doc.RequirementIDs...),
		queries:    doc.Queries,
		stepsField: core.FieldSteps,
	}

	for _, suite := range doc.Suites {
		s.suites[suite.PlanID] = append(s.suites[suite.PlanID], core.Suite{
			ID:       suite.ID,
			Name:     suite.Name,
			ParentID: suite.ParentID,
		})
	}
	for _, p := range doc.TestPoints {
		tp := p.TestPoint
		k := [2]int{p.PlanID, tp.SuiteID}
		s.points[k] = append(s.points[k], tp)
	}
	for i, raw := range doc.WorkItems {
		item, err := NormalizeWorkItem(raw)
		if err != nil {
			return nil, fmt.Errorf("work item %d: %w", i, err)
		}
		if item.ID > 0 {
			s.items[item.ID] = item
		}
	}
	for i, raw := range doc.Revisions {
		item, err := NormalizeWorkItem(raw)
		if err != nil {
			return nil, fmt.Errorf("revision %d: %w", i, err)
		}
		if item.ID > 0 {
			s.revisions[item.ID] = append(s.revisions[item.ID], item)
		}
	}
	for id := range s.revisions {
		revs := s.revisions[id]
		sort.SliceStable(revs, func(i, j int) bool { return revs[i].Rev < revs[j].Rev })
	}
	for _, r := range doc.RunResults {
		s.runResults[runKey{r.RunID, r.ResultID}] = r.ActionResults
	}
	return s, nil
}

// WithStepsField overrides the field holding the steps XML.
func (s *Snapshot) WithStepsField(field string) *Snapshot {
	if field != "" {
		s.stepsField = field
	}
	return s
}

// FetchWorkItemsByIDs returns known items in request order. Relations are
// stripped when includeRelations is false.
func (s *Snapshot) FetchWorkItemsByIDs(ctx context.Context, ids []int, includeRelations bool) ([]core.WorkItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]core.WorkItem, 0, len(ids))
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		item, ok := s.items[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		if !includeRelations {
			item.Relations = nil
		}
		out = append(out, item)
	}
	return out, nil
}

// FetchTestCaseSteps serves an exact revision from revisions, or the newest
// known state for revision 0.
func (s *Snapshot) FetchTestCaseSteps(ctx context.Context, workItemID, revision int) (*core.StepsPayload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	item, ok := s.revision(workItemID, revision)
	if !ok {
		return nil, fmt.Errorf("%w: work item %d rev %d", core.ErrNotFound, workItemID, revision)
	}
	return &core.StepsPayload{
		WorkItemID: workItemID,
		Revision:   item.Rev,
		Title:      item.Title(),
		StepsXML:   item.Fields.String(s.stepsField),
	}, nil
}

func (s *Snapshot) revision(id, rev int) (core.WorkItem, bool) {
	revs := s.revisions[id]
	current, hasCurrent := s.items[id]

	if rev > 0 {
		for _, r := range revs {
			if r.Rev == rev {
				return r, true
			}
		}
		if hasCurrent && current.Rev == rev {
			return current, true
		}
		return core.WorkItem{}, false
	}

	if len(revs) > 0 {
		newest := revs[len(revs)-1]
		if !hasCurrent || newest.Rev > current.Rev {
			return newest, true
		}
	}
	return current, hasCurrent
}

// FetchRunActionResults returns the recorded action results, or none.
func (s *Snapshot) FetchRunActionResults(ctx context.Context, runID, resultID int) ([]core.ActionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.runResults[runKey{runID, resultID}], nil
}

// ListPlanSuites lists a plan's suites.
func (s *Snapshot) ListPlanSuites(ctx context.Context, planID int) ([]core.Suite, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	suites, ok := s.suites[planID]
	if !ok {
		return nil, fmt.Errorf("%w: plan %d", core.ErrNotFound, planID)
	}
	return append([]core.Suite(nil), suites...), nil
}

// ListSuiteTestPoints lists a suite's test points.
func (s *Snapshot) ListSuiteTestPoints(ctx context.Context, planID, suiteID int) ([]core.TestPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]core.TestPoint(nil), s.points[[2]int{planID, suiteID}]...), nil
}

// QueryRequirementIDs answers a named query when the snapshot recorded it,
// and the snapshot's requirement scope otherwise.
func (s *Snapshot) QueryRequirementIDs(ctx context.Context, query string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ids, ok := s.queries[strings.TrimSpace(query)]; ok {
		return append([]int(nil), ids...), nil
	}
	return append([]int(nil), s.reqIDs...), nil
}

// yamlToJSON converts a YAML document to JSON so the schema check and the
// decoder see one representation.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(jsonCompatible(doc))
}

// jsonCompatible rewrites map[interface{}]interface{} nodes, which encoding/json rejects.
func jsonCompatible(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		for k, child := range val {
			val[k] = jsonCompatible(child)
		}
		return val
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			out[fmt.Sprint(k)] = jsonCompatible(child)
		}
		return out
	case []interface{}:
		for i, child := range val {
			val[i] = jsonCompatible(child)
		}
		return val
	}
	return v
}
