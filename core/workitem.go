package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Fields is a case-insensitive view over a work item's field values.
// Upstream payloads arrive either as a `fields` object or a `workItemFields`
// array; both are folded into this type before any reconciliation runs.
type Fields struct {
	values map[string]interface{}
	names  map[string]string // lower-case key -> original reference name
}

// NewFields builds Fields from a plain map.
func NewFields(values map[string]interface{}) Fields {
	f := Fields{}
	for k, v := range values {
		f.Set(k, v)
	}
	return f
}

// Set stores a value, replacing any existing value whose key differs only in case.
func (f *Fields) Set(key string, value interface{}) {
	if f.values == nil {
		f.values = make(map[string]interface{})
		f.names = make(map[string]string)
	}
	lower := strings.ToLower(strings.TrimSpace(key))
	f.values[lower] = value
	f.names[lower] = key
}

// Get returns the raw value for key.
func (f Fields) Get(key string) (interface{}, bool) {
	if f.values == nil {
		return nil, false
	}
	v, ok := f.values[strings.ToLower(strings.TrimSpace(key))]
	return v, ok
}

// Has reports whether key is present with a non-nil value.
func (f Fields) Has(key string) bool {
	v, ok := f.Get(key)
	return ok && v != nil
}

// String returns the value for key rendered as a trimmed string.
// Identity-typed values (objects with displayName/uniqueName) render as their display name.
func (f Fields) String(key string) string {
	v, ok := f.Get(key)
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case map[string]interface{}:
		if name, ok := val["displayName"].(string); ok {
			return strings.TrimSpace(name)
		}
		if name, ok := val["uniqueName"].(string); ok {
			return strings.TrimSpace(name)
		}
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

// Int returns the value for key as an int, or 0 when absent or not numeric.
func (f Fields) Int(key string) int {
	v, ok := f.Get(key)
	if !ok || v == nil {
		return 0
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case int64:
		return int(val)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// Len returns the number of fields.
func (f Fields) Len() int {
	return len(f.values)
}

// Keys returns the original reference names, sorted.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f.names))
	for _, name := range f.names {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON emits the fields as a plain object keyed by original reference names.
func (f Fields) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(f.values))
	for lower, v := range f.values {
		out[f.names[lower]] = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts a plain object.
func (f *Fields) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = NewFields(raw)
	return nil
}

// Relation is one outgoing relation edge of a work item.
type Relation struct {
	Rel        string                 `json:"rel"`
	URL        string                 `json:"url"`
	TargetID   int                    `json:"targetId"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// WorkItem is a normalized backend work item.
type WorkItem struct {
	ID        int        `json:"id"`
	Rev       int        `json:"rev"`
	Fields    Fields     `json:"fields"`
	Relations []Relation `json:"relations,omitempty"`
}

// Title returns System.Title
func (w WorkItem) Title() string {
	return w.Fields.String(FieldTitle)
}

// Type returns System.WorkItemType
func (w WorkItem) Type() string {
	return w.Fields.String(FieldWorkItemType)
}

// State returns System.State
func (w WorkItem) State() string {
	return w.Fields.String(FieldState)
}

// AreaPath returns System.AreaPath
func (w WorkItem) AreaPath() string {
	return w.Fields.String(FieldAreaPath)
}

// RelatedIDs returns the target ids of relations whose kind is in rels, in edge order.
func (w WorkItem) RelatedIDs(rels ...string) []int {
	var ids []int
	for _, r := range w.Relations {
		if r.TargetID <= 0 {
			continue
		}
		for _, want := range rels {
			if strings.EqualFold(r.Rel, want) {
				ids = append(ids, r.TargetID)
				break
			}
		}
	}
	return ids
}

// TargetIDFromURL parses the trailing numeric segment of a work item URL.
// It returns 0 when the URL does not end in an id.
func TargetIDFromURL(url string) int {
	url = strings.TrimRight(url, "/")
	idx := strings.LastIndex(url, "/")
	if idx < 0 || idx == len(url)-1 {
		return 0
	}
	id, err := strconv.Atoi(url[idx+1:])
	if err != nil || id < 0 {
		return 0
	}
	return id
}
