package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"reqtrace/core"
)

// Work item payloads arrive in two shapes: a `fields` object keyed by
// reference name, or a `workItemFields` array of single-entry objects (or
// {key, value} pairs). Both are folded into core.Fields here and nowhere else.

type wireRelation struct {
	Rel        string                 `json:"rel"`
	URL        string                 `json:"url"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

type wireWorkItem struct {
	ID             int             `json:"id"`
	Rev            int             `json:"rev"`
	Fields         json.RawMessage `json:"fields"`
	WorkItemFields json.RawMessage `json:"workItemFields"`
	Relations      []wireRelation  `json:"relations"`
}

// NormalizeWorkItem decodes one work item in either payload shape.
func NormalizeWorkItem(data []byte) (core.WorkItem, error) {
	var w wireWorkItem
	if err := json.Unmarshal(data, &w); err != nil {
		return core.WorkItem{}, fmt.Errorf("%w: %v", core.ErrMalformedPayload, err)
	}
	return w.normalize(), nil
}

func (w wireWorkItem) normalize() core.WorkItem {
	values := make(map[string]interface{})
	mergeFieldValues(values, w.WorkItemFields)
	mergeFieldValues(values, w.Fields)

	item := core.WorkItem{
		ID:     w.ID,
		Rev:    w.Rev,
		Fields: core.NewFields(values),
	}
	if item.ID == 0 {
		item.ID = item.Fields.Int(core.FieldID)
	}
	for _, r := range w.Relations {
		item.Relations = append(item.Relations, core.Relation{
			Rel:        r.Rel,
			URL:        r.URL,
			TargetID:   core.TargetIDFromURL(r.URL),
			Attributes: r.Attributes,
		})
	}
	return item
}

// mergeFieldValues accepts an object, an array of single-entry objects or an
// array of {key|referenceName|name, value} pairs. Anything else is ignored.
func mergeFieldValues(dst map[string]interface{}, raw json.RawMessage) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return
	}

	if raw[0] == '{' {
		var obj map[string]interface{}
		if err := json.Unmarshal(raw, &obj); err == nil {
			for k, v := range obj {
				dst[k] = v
			}
		}
		return
	}

	var list []map[string]interface{}
	if err := json.Unmarshal(raw, &list); err != nil {
		return
	}
	for _, entry := range list {
		if key, ok := pairKey(entry); ok {
			dst[key] = entry["value"]
			continue
		}
		for k, v := range entry {
			dst[k] = v
		}
	}
}

func pairKey(entry map[string]interface{}) (string, bool) {
	if _, ok := entry["value"]; !ok {
		return "", false
	}
	for _, k := range []string{"key", "referenceName", "name"} {
		if s, ok := entry[k].(string); ok && strings.TrimSpace(s) != "" {
			return s, true
		}
	}
	return "", false
}

type listEnvelope struct {
	Count int               `json:"count"`
	Value []json.RawMessage `json:"value"`
}

// NormalizeWorkItems decodes a {"value": [...]} list, a bare array or a single
// object. Null entries (ids the backend omitted) are skipped.
func NormalizeWorkItems(data []byte) ([]core.WorkItem, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var raws []json.RawMessage
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrMalformedPayload, err)
		}
	case '{':
		var env listEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrMalformedPayload, err)
		}
		if env.Value != nil {
			raws = env.Value
		} else {
			raws = []json.RawMessage{data}
		}
	default:
		return nil, fmt.Errorf("%w: unexpected payload", core.ErrMalformedPayload)
	}

	items := make([]core.WorkItem, 0, len(raws))
	for _, raw := range raws {
		if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			continue
		}
		item, err := NormalizeWorkItem(raw)
		if err != nil {
			return nil, err
		}
		if item.ID <= 0 {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

type wireIteration struct {
	ID            int                 `json:"id"`
	Outcome       string              `json:"outcome"`
	ActionResults []core.ActionResult `json:"actionResults"`
}

type wireTestResult struct {
	ID               int             `json:"id"`
	Outcome          string          `json:"outcome"`
	IterationDetails []wireIteration `json:"iterationDetails"`
}

// LatestIterationResults returns the action results of the highest iteration
// of a test result payload.
func LatestIterationResults(data []byte) ([]core.ActionResult, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var r wireTestResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedPayload, err)
	}
	if len(r.IterationDetails) == 0 {
		return nil, nil
	}
	iterations := append([]wireIteration(nil), r.IterationDetails...)
	sort.SliceStable(iterations, func(i, j int) bool { return iterations[i].ID < iterations[j].ID })
	latest := iterations[len(iterations)-1]
	return latest.ActionResults, nil
}

type wireSuite struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	ParentSuite *struct {
		ID int `json:"id"`
	} `json:"parentSuite"`
}

func (s wireSuite) normalize() core.Suite {
	out := core.Suite{ID: s.ID, Name: s.Name}
	if s.ParentSuite != nil {
		out.ParentID = s.ParentSuite.ID
	}
	return out
}

type wireTestPoint struct {
	TestCaseReference struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"testCaseReference"`
	TestSuite struct {
		ID int `json:"id"`
	} `json:"testSuite"`
	Results struct {
		LastTestRunID interface{} `json:"lastTestRunId"`
		LastResultID  interface{} `json:"lastResultId"`
		Outcome       string      `json:"outcome"`
	} `json:"results"`
}

func (p wireTestPoint) normalize(suiteID int) core.TestPoint {
	out := core.TestPoint{
		SuiteID:       p.TestSuite.ID,
		TestCaseID:    p.TestCaseReference.ID,
		TestCaseTitle: p.TestCaseReference.Name,
		LastRunID:     looseInt(p.Results.LastTestRunID),
		LastResultID:  looseInt(p.Results.LastResultID),
		Outcome:       core.Outcome(p.Results.Outcome),
	}
	if out.SuiteID == 0 {
		out.SuiteID = suiteID
	}
	return out
}

// looseInt accepts ids encoded as numbers or numeric strings.
func looseInt(v interface{}) int {
	return core.NewFields(map[string]interface{}{"v": v}).Int("v")
}

type wiqlResponse struct {
	WorkItems []struct {
		ID int `json:"id"`
	} `json:"workItems"`
}
