package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var canonicalCode = regexp.MustCompile(`^SR(\d+)(?:-(\d+))?$`)

// CodeSet is a deduplicated set of canonical requirement codes.
type CodeSet map[string]struct{}

// NewCodeSet builds a set from codes, dropping anything that is not a valid code.
func NewCodeSet(codes ...string) CodeSet {
	s := make(CodeSet, len(codes))
	for _, c := range codes {
		s.Add(c)
	}
	return s
}

// Add inserts a code after canonicalizing it. Invalid codes are ignored.
func (s CodeSet) Add(code string) {
	if c, ok := Canonical(code); ok {
		s[c] = struct{}{}
	}
}

// Has reports membership of the canonical form of code.
func (s CodeSet) Has(code string) bool {
	c, ok := Canonical(code)
	if !ok {
		return false
	}
	_, found := s[c]
	return found
}

// Union adds every member of other.
func (s CodeSet) Union(other CodeSet) {
	for c := range other {
		s[c] = struct{}{}
	}
}

// Sorted returns the codes in natural order.
func (s CodeSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	SortCodes(out)
	return out
}

// Canonical upper-cases and validates a code. Digit width is preserved.
func Canonical(code string) (string, bool) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if !canonicalCode.MatchString(c) {
		return "", false
	}
	return c, true
}

// Valid reports whether code has the canonical SR<digits>[-<digits>] shape.
func Valid(code string) bool {
	_, ok := Canonical(code)
	return ok
}

// BaseKey returns the family root of a code ("SR0054-1" -> "SR0054").
func BaseKey(code string) string {
	c := strings.ToUpper(strings.TrimSpace(code))
	if idx := strings.IndexByte(c, '-'); idx > 0 {
		return c[:idx]
	}
	return c
}

// IsChild reports whether code carries a child suffix.
func IsChild(code string) bool {
	return strings.IndexByte(code, '-') > 0
}

// Compare orders codes naturally: by base number, then digit width, then
// base before children, then child number. "SR0095" < "SR0095-2" < "SR0095-10".
func Compare(a, b string) int {
	ma := canonicalCode.FindStringSubmatch(strings.ToUpper(a))
	mb := canonicalCode.FindStringSubmatch(strings.ToUpper(b))
	if ma == nil || mb == nil {
		return strings.Compare(a, b)
	}
	if c := compareDigits(ma[1], mb[1]); c != 0 {
		return c
	}
	switch {
	case ma[2] == "" && mb[2] == "":
		return 0
	case ma[2] == "":
		return -1
	case mb[2] == "":
		return 1
	}
	return compareDigits(ma[2], mb[2])
}

// SortCodes sorts codes in place using Compare.
func SortCodes(codes []string) {
	sort.SliceStable(codes, func(i, j int) bool {
		return Compare(codes[i], codes[j]) < 0
	})
}

func compareDigits(a, b string) int {
	na, errA := strconv.ParseUint(a, 10, 64)
	nb, errB := strconv.ParseUint(b, 10, 64)
	if errA == nil && errB == nil && na != nb {
		if na < nb {
			return -1
		}
		return 1
	}
	// Same value (or overflow): fall back to width, then lexical order
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
