package tables

import "strings"

// Header row candidates in the order they are tried. Some workbooks carry a
// title and a blank line above the real header.
var headerCandidates = []struct {
	label string
	index int
}{
	{"A1", 0},
	{"A3", 2},
}

type headerMatch struct {
	label   string
	index   int
	columns map[string]int // canonical column -> cell index
	matched int
	missing []string
}

// matchHeader resolves the cells of one row against a schema.
func matchHeader(cells []string, schema Schema, label string, index int) headerMatch {
	known := make(map[string]bool)
	for _, c := range schema.Columns() {
		known[c] = true
	}

	m := headerMatch{label: label, index: index, columns: make(map[string]int)}
	for i, cell := range cells {
		col, ok := CanonicalColumn(cell)
		if !ok || !known[col] {
			continue
		}
		if _, dup := m.columns[col]; !dup {
			m.columns[col] = i
		}
	}
	for _, req := range schema.Required {
		if _, ok := m.columns[req]; ok {
			m.matched++
		} else {
			m.missing = append(m.missing, req)
		}
	}
	return m
}

// detectHeader picks the first candidate row carrying every required column.
// When none does, the best attempt (ties go to the earlier row) is returned
// with ok=false.
func detectHeader(rows [][]string, schema Schema) (headerMatch, bool) {
	var best headerMatch
	haveBest := false
	for _, c := range headerCandidates {
		var cells []string
		if c.index < len(rows) {
			cells = rows[c.index]
		}
		m := matchHeader(cells, schema, c.label, c.index)
		if len(m.missing) == 0 {
			return m, true
		}
		if !haveBest || m.matched > best.matched {
			best, haveBest = m, true
		}
	}
	return best, false
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
