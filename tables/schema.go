package tables

import (
	"strings"
	"unicode"
)

// Kind names an external table layout.
type Kind string

const (
	KindBugs Kind = "bugs"
	KindL3L4 Kind = "l3l4"
)

// Canonical column labels
const (
	ColSortIndex     = "Elisra_SortIndex"
	ColTestCaseID    = "Test Case ID"
	ColBugID         = "Bug ID"
	ColBugTitle      = "Bug Title"
	ColState         = "State"
	ColSeverity      = "Severity"
	ColSAPWBS        = "SAPWBS"
	ColAreaPath      = "Area Path"
	ColL2Requirement = "L2 Requirement"
	ColL3ID          = "L3 ID"
	ColL3Title       = "L3 Title"
	ColL4ID          = "L4 ID"
	ColL4Title       = "L4 Title"
)

// Schema is the column layout of one table kind.
type Schema struct {
	Kind     Kind
	Required []string
	Optional []string
	// Key is the column a row must carry to be usable
	Key string
}

var schemas = map[Kind]Schema{
	KindBugs: {
		Kind:     KindBugs,
		Required: []string{ColSortIndex, ColTestCaseID, ColBugID, ColBugTitle},
		Optional: []string{ColState, ColSeverity, ColSAPWBS, ColAreaPath},
		Key:      ColSortIndex,
	},
	KindL3L4: {
		Kind:     KindL3L4,
		Required: []string{ColL2Requirement, ColL3ID},
		Optional: []string{ColL3Title, ColL4ID, ColL4Title, ColSAPWBS, ColAreaPath},
		Key:      ColL2Requirement,
	},
}

// SchemaFor returns the schema of kind.
func SchemaFor(kind Kind) (Schema, bool) {
	s, ok := schemas[Kind(strings.ToLower(strings.TrimSpace(string(kind))))]
	return s, ok
}

// Columns returns required then optional columns.
func (s Schema) Columns() []string {
	return append(append([]string(nil), s.Required...), s.Optional...)
}

// ColumnAliases maps normalized header labels to canonical column labels.
// Spreadsheets are maintained by hand, so the same column shows up under
// several spellings.
var ColumnAliases = map[string]string{
	// Bugs
	"elisrasortindex": ColSortIndex,
	"sortindex":       ColSortIndex,
	"elisraindex":     ColSortIndex,
	"testcaseid":      ColTestCaseID,
	"testcase":        ColTestCaseID,
	"tcid":            ColTestCaseID,
	"testid":          ColTestCaseID,
	"bugid":           ColBugID,
	"bug":             ColBugID,
	"defectid":        ColBugID,
	"bugtitle":        ColBugTitle,
	"bugname":         ColBugTitle,
	"defecttitle":     ColBugTitle,
	"title":           ColBugTitle,
	"state":           ColState,
	"bugstate":        ColState,
	"status":          ColState,
	"severity":        ColSeverity,
	"sev":             ColSeverity,

	// Responsibility inputs
	"sapwbs":   ColSAPWBS,
	"wbs":      ColSAPWBS,
	"areapath": ColAreaPath,
	"area":     ColAreaPath,

	// L3/L4
	"l2requirement":   ColL2Requirement,
	"l2":              ColL2Requirement,
	"l2id":            ColL2Requirement,
	"l2requirementid": ColL2Requirement,
	"basekey":         ColL2Requirement,
	"l3id":            ColL3ID,
	"l3":              ColL3ID,
	"l3requirement":   ColL3ID,
	"l3title":         ColL3Title,
	"l3name":          ColL3Title,
	"l4id":            ColL4ID,
	"l4":              ColL4ID,
	"l4requirement":   ColL4ID,
	"l4title":         ColL4Title,
	"l4name":          ColL4Title,
}

// NormalizeLabel lower-cases a header label and drops everything but letters and digits.
func NormalizeLabel(label string) string {
	var b strings.Builder
	for _, r := range label {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// CanonicalColumn resolves a header label to its canonical column.
func CanonicalColumn(label string) (string, bool) {
	c, ok := ColumnAliases[NormalizeLabel(label)]
	return c, ok
}
