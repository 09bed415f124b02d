package tables

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func bugHeader() []string {
	return []string{"Elisra_SortIndex", "Test Case ID", "Bug ID", "Bug Title", "State"}
}

func TestParse_HeaderRows(t *testing.T) {
	schema, ok := SchemaFor(KindBugs)
	require.True(t, ok)

	tests := []struct {
		name   string
		rows   [][]string
		header string
		want   int
	}{
		{
			name:   "header on first row",
			rows:   [][]string{bugHeader(), {"1", "10", "500", "Crash", "Active"}},
			header: "A1",
			want:   1,
		},
		{
			name:   "header on third row",
			rows:   [][]string{{"Bug export"}, {}, bugHeader(), {"1", "10", "500", "Crash"}, {"2", "11", "501", "Hang"}},
			header: "A3",
			want:   2,
		},
		{
			name:   "aliases and spacing",
			rows:   [][]string{{"sort index", "TEST_CASE_ID", " bug-id ", "Title"}, {"3", "12", "502", "Leak"}},
			header: "A1",
			want:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := Parse("mem.csv", schema, tt.rows)
			require.NoError(t, err)
			assert.Equal(t, tt.header, tbl.HeaderRow)
			assert.Equal(t, 4, tbl.MatchedRequired)
			assert.Equal(t, 4, tbl.TotalRequired)
			assert.Len(t, tbl.Records, tt.want)
		})
	}
}

func TestParse_MissingColumns(t *testing.T) {
	schema, _ := SchemaFor(KindBugs)

	_, err := Parse("bugs.xlsx", schema, [][]string{
		{"Elisra_SortIndex", "Test Case ID", "Notes"},
		{"1", "10", "x"},
	})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, ErrMissingColumns)
	assert.Equal(t, "A1", verr.HeaderRow)
	assert.Equal(t, 2, verr.MatchedRequired)
	assert.Equal(t, 4, verr.TotalRequired)
	assert.Equal(t, []string{ColBugID, ColBugTitle}, verr.Missing)
	assert.Equal(t, "missing_columns", verr.Reason())
	assert.Contains(t, err.Error(), "missing: Bug ID, Bug Title")
}

func TestParse_BestAttemptPrefersMoreMatches(t *testing.T) {
	schema, _ := SchemaFor(KindBugs)

	_, err := Parse("bugs.csv", schema, [][]string{
		{"Test Case ID"},
		{},
		{"Elisra_SortIndex", "Test Case ID", "Bug ID"},
	})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "A3", verr.HeaderRow)
	assert.Equal(t, 3, verr.MatchedRequired)
	assert.Equal(t, []string{ColBugTitle}, verr.Missing)
}

func TestParse_DiscardsRowsWithoutKey(t *testing.T) {
	schema, _ := SchemaFor(KindBugs)

	tbl, err := Parse("bugs.csv", schema, [][]string{
		bugHeader(),
		{"1", "10", "500", "Crash"},
		{"", "11", "501", "No index"},
		{"", "", "", ""},
		{"2", "12", "502"},
	})
	require.NoError(t, err)
	assert.Len(t, tbl.Records, 2)
	assert.Equal(t, 1, tbl.Discarded)
	assert.Equal(t, "", tbl.Records[1].Get(ColBugTitle))
}

func TestParse_Empty(t *testing.T) {
	schema, _ := SchemaFor(KindL3L4)
	_, err := Parse("l3l4.csv", schema, [][]string{{"", " "}})
	assert.ErrorIs(t, err, ErrEmptyTable)
}

func writeFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o600))
}

func xlsxBytes(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &r))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestLoader_LocalFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bugs.csv", []byte("\xef\xbb\xbfElisra_SortIndex,Test Case ID,Bug ID,Bug Title\n2,10,501,Hang\n1,10,500,Crash\n"))
	writeFile(t, dir, "l3l4.xlsx", xlsxBytes(t, [][]interface{}{
		{"L3/L4 export"},
		{"generated weekly"},
		{"L2 Requirement", "L3 ID", "L3 Title", "L4 ID"},
		{"SR0054 Power", "L3-1", "Rails", "L4-1"},
	}))
	writeFile(t, dir, "empty.csv", nil)
	writeFile(t, dir, "notes.txt", []byte("x"))

	l := NewLoader(Options{LocalRoot: dir}, nil)
	ctx := context.Background()

	tbl, err := l.Load(ctx, "bugs.csv", KindBugs)
	require.NoError(t, err)
	assert.Equal(t, "A1", tbl.HeaderRow)
	links := BugLinks(tbl)
	require.Len(t, links, 2)
	assert.Equal(t, 500, links[0].BugID)

	tbl, err = l.Load(ctx, filepath.Join(dir, "l3l4.xlsx"), KindL3L4)
	require.NoError(t, err)
	assert.Equal(t, "A3", tbl.HeaderRow)
	subs := SubRequirementLinks(tbl, nil)
	require.Len(t, subs, 1)
	assert.Equal(t, "SR0054", subs[0].BaseKey)
	assert.Equal(t, "L4-1", subs[0].L4ID)

	tests := []struct {
		name string
		ref  string
		kind Kind
		want error
	}{
		{"empty file", "empty.csv", KindBugs, ErrEmptyTable},
		{"extension", "notes.txt", KindBugs, ErrUnsupportedExtension},
		{"traversal", "../bugs.csv", KindBugs, ErrSourceNotAllowed},
		{"outside root", "/etc/hosts.csv", KindBugs, ErrSourceNotAllowed},
		{"bucket not allowed", "s3://other/bugs.csv", KindBugs, ErrSourceNotAllowed},
		{"unknown scheme", "ftp://host/bugs.csv", KindBugs, ErrSourceNotAllowed},
		{"unknown kind", "bugs.csv", Kind("widgets"), ErrUnknownKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Load(ctx, tt.ref, tt.kind)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoader_MissingLocalFile(t *testing.T) {
	l := NewLoader(Options{LocalRoot: t.TempDir()}, nil)
	_, err := l.Load(context.Background(), "nope.csv", KindBugs)
	require.Error(t, err)
	var verr *ValidationError
	assert.False(t, errors.As(err, &verr))
}

type memSource struct {
	data     []byte
	declared int64
}

func (m memSource) Open(ctx context.Context, loc Location) (io.ReadCloser, int64, error) {
	return io.NopCloser(bytes.NewReader(m.data)), m.declared, nil
}

func TestLoader_RemoteSourceAndSizeLimit(t *testing.T) {
	csv := []byte("L2 Requirement,L3 ID\nSR0001,L3-9\n")

	l := NewLoader(Options{AllowedBuckets: []string{"reqs"}, MaxBytes: 1024}, nil).
		WithSource(SchemeS3, memSource{data: csv, declared: int64(len(csv))}).
		WithSource(SchemeGCS, memSource{data: csv, declared: -1})

	tbl, err := l.Load(context.Background(), "s3://reqs/exports/l3l4.csv", KindL3L4)
	require.NoError(t, err)
	assert.Len(t, tbl.Records, 1)

	_, err = l.Load(context.Background(), "gs://reqs/l3l4.csv", KindL3L4)
	require.NoError(t, err)

	small := NewLoader(Options{AllowedBuckets: []string{"reqs"}, MaxBytes: 10}, nil)
	small.WithSource(SchemeS3, memSource{data: csv, declared: int64(len(csv))})
	_, err = small.Load(context.Background(), "s3://reqs/l3l4.csv", KindL3L4)
	assert.ErrorIs(t, err, ErrFileTooLarge)

	small.WithSource(SchemeS3, memSource{data: csv, declared: -1})
	_, err = small.Load(context.Background(), "s3://reqs/l3l4.csv", KindL3L4)
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestParseRef(t *testing.T) {
	loc, err := ParseRef("s3://bucket/a/b.xlsx")
	require.NoError(t, err)
	assert.Equal(t, Location{Ref: "s3://bucket/a/b.xlsx", Scheme: SchemeS3, Bucket: "bucket", Key: "a/b.xlsx"}, loc)

	loc, err = ParseRef("reports/bugs.csv")
	require.NoError(t, err)
	assert.Equal(t, SchemeLocal, loc.Scheme)

	_, err = ParseRef("gs://bucket")
	assert.ErrorIs(t, err, ErrSourceNotAllowed)
}
