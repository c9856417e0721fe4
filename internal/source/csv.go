package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// csvFile is one fully read source file with header-indexed cell access.
// The parse helpers use a sticky error: the first bad cell is recorded with
// row/column context and checked once per row by the caller.
type csvFile struct {
	source  Source
	path    string
	idx     map[string]int
	records [][]string // data rows in file order
	row     int        // 1-based data row number, for error context
	err     error
}

// openCSV reads and validates one source file. An absent, empty, or
// structurally broken file is fatal; so is a header that does not match
// the source schema.
func openCSV(dir string, s Source) (*csvFile, error) {
	path := filepath.Join(dir, s.FileName())
	f, err := os.Open(path)
	if err != nil {
		return nil, &UnreadableError{Source: s, Path: path, Err: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, &UnreadableError{Source: s, Path: path, Err: errors.New("file is empty")}
	}
	if err != nil {
		return nil, &UnreadableError{Source: s, Path: path, Err: err}
	}

	idx, err := checkSchema(s, path, header)
	if err != nil {
		return nil, err
	}

	records, err := r.ReadAll()
	if err != nil {
		return nil, &UnreadableError{Source: s, Path: path, Err: err}
	}
	if len(records) == 0 {
		return nil, &UnreadableError{Source: s, Path: path, Err: errors.New("no data rows")}
	}

	return &csvFile{source: s, path: path, idx: idx, records: records}, nil
}

// checkSchema compares the observed header against the source schema and
// reports the diff in both directions, sorted.
func checkSchema(s Source, path string, header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.TrimSpace(col)] = i
	}

	expected := make(map[string]bool, len(s.Columns()))
	var missing, unexpected []string
	for _, col := range s.Columns() {
		expected[col] = true
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	for col := range idx {
		if !expected[col] {
			unexpected = append(unexpected, col)
		}
	}
	if len(missing) > 0 || len(unexpected) > 0 {
		sort.Strings(missing)
		sort.Strings(unexpected)
		return nil, &SchemaError{Source: s, Path: path, Missing: missing, Unexpected: unexpected}
	}
	return idx, nil
}

// fail wraps the sticky parse error as a fatal UnreadableError.
func (f *csvFile) fail() error {
	return &UnreadableError{Source: f.source, Path: f.path, Err: f.err}
}

func (f *csvFile) setErr(col, raw, want string) {
	if f.err == nil {
		f.err = fmt.Errorf("row %d: column %s: %q is not a valid %s", f.row, col, raw, want)
	}
}

func (f *csvFile) cell(rec []string, col string) string {
	return strings.TrimSpace(rec[f.idx[col]])
}

// jobID returns the trimmed join key, or "" when the row must be rejected.
func (f *csvFile) jobID(rec []string) string {
	return f.cell(rec, "job_id")
}

func (f *csvFile) str(rec []string, col string) *string {
	v := f.cell(rec, col)
	if v == "" {
		return nil
	}
	return &v
}

func (f *csvFile) f64(rec []string, col string) *float64 {
	raw := f.cell(rec, col)
	if raw == "" {
		return nil
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		f.setErr(col, raw, "finite number")
		return nil
	}
	return &n
}

func (f *csvFile) i(rec []string, col string) *int {
	raw := f.cell(rec, col)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		f.setErr(col, raw, "integer")
		return nil
	}
	return &n
}

func (f *csvFile) ts(rec []string, col string) *time.Time {
	raw := f.cell(rec, col)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		f.setErr(col, raw, "RFC 3339 timestamp")
		return nil
	}
	t = t.UTC()
	return &t
}
