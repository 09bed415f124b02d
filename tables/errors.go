package tables

import (
	"errors"
	"fmt"
	"strings"
)

// Table validation errors
var (
	// ErrEmptyTable is returned when a file has no rows at all
	ErrEmptyTable = errors.New("table is empty")

	// ErrUnsupportedExtension is returned for files outside the extension allow-list
	ErrUnsupportedExtension = errors.New("unsupported file extension")

	// ErrFileTooLarge is returned when a file exceeds the configured byte limit
	ErrFileTooLarge = errors.New("file exceeds size limit")

	// ErrSourceNotAllowed is returned for paths or buckets outside the allow-lists
	ErrSourceNotAllowed = errors.New("source not allowed")

	// ErrMissingColumns is returned when no header row carries every required column
	ErrMissingColumns = errors.New("required columns missing")

	// ErrUnknownKind is returned for a table kind the ingestor does not know
	ErrUnknownKind = errors.New("unknown table kind")
)

// ValidationError is a rejected external table with the detail needed to fix it.
type ValidationError struct {
	Source string `json:"source"`
	Kind   Kind   `json:"kind,omitempty"`
	// HeaderRow is the header row tried ("A1" or "A3"); for missing columns, the best attempt
	HeaderRow       string   `json:"headerRow,omitempty"`
	MatchedRequired int      `json:"matchedRequiredColumns"`
	TotalRequired   int      `json:"totalRequiredColumns"`
	Missing         []string `json:"missingColumns,omitempty"`
	Err             error    `json:"-"`
}

// Error implements error
func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "table %s rejected: %v", e.Source, e.Err)
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, " (header %s matched %d/%d required columns, missing: %s)",
			e.HeaderRow, e.MatchedRequired, e.TotalRequired, strings.Join(e.Missing, ", "))
	}
	return b.String()
}

// Unwrap returns the sentinel cause
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Reason returns a short label of the cause, used as a metrics label.
func (e *ValidationError) Reason() string {
	switch {
	case errors.Is(e.Err, ErrMissingColumns):
		return "missing_columns"
	case errors.Is(e.Err, ErrEmptyTable):
		return "empty"
	case errors.Is(e.Err, ErrUnsupportedExtension):
		return "extension"
	case errors.Is(e.Err, ErrFileTooLarge):
		return "size"
	case errors.Is(e.Err, ErrSourceNotAllowed):
		return "isolation"
	case errors.Is(e.Err, ErrUnknownKind):
		return "kind"
	default:
		return "read"
	}
}

func rejected(source string, kind Kind, err error) *ValidationError {
	return &ValidationError{Source: source, Kind: kind, Err: err}
}
