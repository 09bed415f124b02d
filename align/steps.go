package align

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// StaticStep is one entry of a steps definition, in step id order.
// A shared step reference has SharedStepID set and carries no text of its own.
type StaticStep struct {
	ID           int
	Action       string
	Expected     string
	SharedStepID int
}

// IsSharedReference reports whether the step points at a shared step work item
func (s StaticStep) IsSharedReference() bool {
	return s.SharedStepID > 0
}

// Definition is a parsed steps definition.
type Definition struct {
	Steps []StaticStep
}

// Step returns the step with the given id.
func (d Definition) Step(id int) (StaticStep, bool) {
	for _, s := range d.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return StaticStep{}, false
}

// SharedStepRefs returns the distinct shared step ids referenced, ascending.
func (d Definition) SharedStepRefs() []int {
	seen := make(map[int]bool)
	var refs []int
	for _, s := range d.Steps {
		if s.IsSharedReference() && !seen[s.SharedStepID] {
			seen[s.SharedStepID] = true
			refs = append(refs, s.SharedStepID)
		}
	}
	sort.Ints(refs)
	return refs
}

type xmlNode struct {
	XMLName xml.Name
	ID      string    `xml:"id,attr"`
	Ref     string    `xml:"ref,attr"`
	Strings []string  `xml:"parameterizedString"`
	Nodes   []xmlNode `xml:",any"`
}

// ParseSteps parses a steps XML definition:
//
//	<steps id="0" last="4">
//	  <step id="2" type="ActionStep">
//	    <parameterizedString isformatted="true">action</parameterizedString>
//	    <parameterizedString isformatted="true">expected</parameterizedString>
//	  </step>
//	  <compref id="3" ref="1234">
//	    <step id="4" type="ValidateStep">...</step>
//	  </compref>
//	</steps>
//
// Siblings are ordered by step id. Steps nested inside a compref element
// follow the shared step and are flattened after it. An empty definition is
// not an error.
func ParseSteps(stepsXML string) (Definition, error) {
	var def Definition
	if strings.TrimSpace(stepsXML) == "" {
		return def, nil
	}

	var root xmlNode
	if err := xml.Unmarshal([]byte(stepsXML), &root); err != nil {
		return def, fmt.Errorf("failed to parse steps xml: %w", err)
	}
	if root.XMLName.Local != "steps" {
		return def, fmt.Errorf("failed to parse steps xml: unexpected root element %q", root.XMLName.Local)
	}

	def.Steps = flatten(root.Nodes, nil)
	return def, nil
}

type idNode struct {
	id   int
	node xmlNode
}

// byStepID returns the nodes with a numeric id, ordered by it. Equal ids keep
// document order.
func byStepID(nodes []xmlNode) []idNode {
	out := make([]idNode, 0, len(nodes))
	for _, n := range nodes {
		id, err := strconv.Atoi(strings.TrimSpace(n.ID))
		if err != nil {
			continue
		}
		out = append(out, idNode{id: id, node: n})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func flatten(nodes []xmlNode, out []StaticStep) []StaticStep {
	for _, in := range byStepID(nodes) {
		id, n := in.id, in.node
		switch strings.ToLower(n.XMLName.Local) {
		case "step":
			s := StaticStep{ID: id}
			if len(n.Strings) > 0 {
				s.Action = n.Strings[0]
			}
			if len(n.Strings) > 1 {
				s.Expected = n.Strings[1]
			}
			out = append(out, s)
		case "compref":
			ref, err := strconv.Atoi(strings.TrimSpace(n.Ref))
			if err != nil || ref <= 0 {
				continue
			}
			out = append(out, StaticStep{ID: id, SharedStepID: ref})
			out = flatten(n.Nodes, out)
		}
	}
	return out
}

// SharedStepKey identifies a shared step definition at a revision. Revision 0 means latest.
type SharedStepKey struct {
	ID       int
	Revision int
}

// SharedStep is a shared step work item's title and steps.
type SharedStep struct {
	Title      string
	Definition Definition
}

// Library holds pre-fetched shared step definitions.
type Library map[SharedStepKey]SharedStep

// Lookup returns the shared step at the exact revision, falling back to the
// latest entry (revision 0) and then to the highest known revision.
func (l Library) Lookup(id, revision int) (SharedStep, bool) {
	if s, ok := l[SharedStepKey{ID: id, Revision: revision}]; ok {
		return s, true
	}
	if s, ok := l[SharedStepKey{ID: id}]; ok {
		return s, true
	}
	best := -1
	var found SharedStep
	for k, s := range l {
		if k.ID == id && k.Revision > best {
			best = k.Revision
			found = s
		}
	}
	return found, best >= 0
}
