// Package tables loads and validates externally supplied spreadsheets
// (bug links, L3/L4 links) that augment the coverage matrix.
package tables

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"reqtrace/metrics"
)

// Defaults
const (
	DefaultMaxBytes = 20 << 20
)

// DefaultExtensions are the file types the ingestor can parse.
var DefaultExtensions = []string{".xlsx", ".csv"}

// Options configures a Loader.
type Options struct {
	// LocalRoot confines local references. Empty disables local files.
	LocalRoot string
	// AllowedBuckets lists the S3/GCS buckets tables may come from. Empty allows none.
	AllowedBuckets     []string
	AllowedExtensions  []string
	MaxBytes           int64
	S3Region           string
	GCSCredentialsFile string
}

// Record is one usable row keyed by canonical column label.
type Record map[string]string

// Get returns the trimmed value of a column.
func (r Record) Get(column string) string {
	return strings.TrimSpace(r[column])
}

// Table is a validated external table.
type Table struct {
	Source          string   `json:"source"`
	Kind            Kind     `json:"kind"`
	HeaderRow       string   `json:"headerRow"`
	MatchedRequired int      `json:"matchedRequiredColumns"`
	TotalRequired   int      `json:"totalRequiredColumns"`
	Columns         []string `json:"columns"`
	Records         []Record `json:"records"`
	// Discarded counts data rows dropped for lacking the key column
	Discarded int `json:"discarded"`
}

// Loader fetches and validates external tables.
type Loader struct {
	opts    Options
	sources map[string]Source
	buckets map[string]bool
	exts    map[string]bool
	logger  *zap.SugaredLogger
}

// NewLoader creates a Loader with local, S3 and GCS sources.
func NewLoader(opts Options, logger *zap.SugaredLogger) *Loader {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if len(opts.AllowedExtensions) == 0 {
		opts.AllowedExtensions = DefaultExtensions
	}

	l := &Loader{
		opts:    opts,
		buckets: make(map[string]bool, len(opts.AllowedBuckets)),
		exts:    make(map[string]bool, len(opts.AllowedExtensions)),
		logger:  logger,
		sources: map[string]Source{
			SchemeLocal: LocalSource{Root: opts.LocalRoot},
			SchemeS3:    &S3Source{Region: opts.S3Region},
			SchemeGCS:   &GCSSource{CredentialsFile: opts.GCSCredentialsFile},
		},
	}
	for _, b := range opts.AllowedBuckets {
		l.buckets[strings.TrimSpace(b)] = true
	}
	for _, e := range opts.AllowedExtensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		l.exts[e] = true
	}
	return l
}

// WithSource replaces the source of a scheme.
func (l *Loader) WithSource(scheme string, src Source) *Loader {
	l.sources[scheme] = src
	return l
}

// Close releases remote clients.
func (l *Loader) Close() error {
	if c, ok := l.sources[SchemeGCS].(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Load fetches ref and validates it as kind. Validation failures are
// returned as *ValidationError; read failures are wrapped plain errors.
func (l *Loader) Load(ctx context.Context, ref string, kind Kind) (*Table, error) {
	t, err := l.load(ctx, ref, kind)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			metrics.TablesRejected.WithLabelValues(verr.Reason()).Inc()
			l.logger.Warnw("External table rejected",
				"source", ref,
				"kind", kind,
				"reason", verr.Reason(),
				"missing", verr.Missing)
		}
		return nil, err
	}
	l.logger.Infow("External table loaded",
		"source", ref,
		"kind", kind,
		"header_row", t.HeaderRow,
		"records", len(t.Records),
		"discarded", t.Discarded)
	return t, nil
}

func (l *Loader) load(ctx context.Context, ref string, kind Kind) (*Table, error) {
	schema, ok := SchemaFor(kind)
	if !ok {
		return nil, rejected(ref, kind, fmt.Errorf("%w: %q", ErrUnknownKind, kind))
	}

	loc, err := ParseRef(ref)
	if err != nil {
		return nil, rejected(ref, schema.Kind, err)
	}
	if loc.Scheme != SchemeLocal && !l.buckets[loc.Bucket] {
		return nil, rejected(ref, schema.Kind, fmt.Errorf("%w: bucket %q", ErrSourceNotAllowed, loc.Bucket))
	}
	ext := strings.ToLower(filepath.Ext(loc.Key))
	if !l.exts[ext] {
		return nil, rejected(ref, schema.Kind, fmt.Errorf("%w: %q", ErrUnsupportedExtension, ext))
	}

	data, err := l.read(ctx, loc)
	if err != nil {
		if errors.Is(err, ErrSourceNotAllowed) || errors.Is(err, ErrFileTooLarge) {
			return nil, rejected(ref, schema.Kind, err)
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, rejected(ref, schema.Kind, ErrEmptyTable)
	}

	var rows [][]string
	switch ext {
	case ".csv":
		rows, err = readCSV(data)
	case ".xlsx":
		rows, err = readXLSX(data)
	default:
		return nil, rejected(ref, schema.Kind, fmt.Errorf("%w: %q", ErrUnsupportedExtension, ext))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse table %s: %w", ref, err)
	}

	return Parse(ref, schema, rows)
}

func (l *Loader) read(ctx context.Context, loc Location) ([]byte, error) {
	src, ok := l.sources[loc.Scheme]
	if !ok {
		return nil, fmt.Errorf("%w: scheme %q", ErrSourceNotAllowed, loc.Scheme)
	}
	rc, size, err := src.Open(ctx, loc)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	if size > l.opts.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, size, l.opts.MaxBytes)
	}
	data, err := io.ReadAll(io.LimitReader(rc, l.opts.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", loc.Ref, err)
	}
	if int64(len(data)) > l.opts.MaxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrFileTooLarge, l.opts.MaxBytes)
	}
	return data, nil
}

// Parse validates raw rows against schema. The header is the first of rows 1
// and 3 carrying every required column; rows after it lacking the key column
// are discarded.
func Parse(source string, schema Schema, rows [][]string) (*Table, error) {
	nonBlank := 0
	for _, r := range rows {
		if !isBlank(r) {
			nonBlank++
		}
	}
	if nonBlank == 0 {
		return nil, rejected(source, schema.Kind, ErrEmptyTable)
	}

	header, ok := detectHeader(rows, schema)
	if !ok {
		return nil, &ValidationError{
			Source:          source,
			Kind:            schema.Kind,
			HeaderRow:       header.label,
			MatchedRequired: header.matched,
			TotalRequired:   len(schema.Required),
			Missing:         header.missing,
			Err:             ErrMissingColumns,
		}
	}

	t := &Table{
		Source:          source,
		Kind:            schema.Kind,
		HeaderRow:       header.label,
		MatchedRequired: header.matched,
		TotalRequired:   len(schema.Required),
	}
	for _, c := range schema.Columns() {
		if _, ok := header.columns[c]; ok {
			t.Columns = append(t.Columns, c)
		}
	}

	for _, row := range rows[header.index+1:] {
		if isBlank(row) {
			continue
		}
		rec := make(Record, len(header.columns))
		for col, idx := range header.columns {
			if idx < len(row) {
				rec[col] = strings.TrimSpace(row[idx])
			}
		}
		if rec.Get(schema.Key) == "" {
			t.Discarded++
			continue
		}
		t.Records = append(t.Records, rec)
	}
	return t, nil
}
