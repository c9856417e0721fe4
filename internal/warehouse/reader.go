package warehouse

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/quarrylabs/quarry/internal/audit"
	"github.com/quarrylabs/quarry/internal/feature"
	"github.com/quarrylabs/quarry/internal/merge"
	"github.com/quarrylabs/quarry/internal/source"
)

// Reader serves lookups from one snapshot directory. Open pins the
// published snapshot once, so a concurrent re-run swapping `current`
// cannot give this reader a mixed artifact set.
type Reader struct {
	dir string
	db  *sql.DB
}

// Open resolves the current symlink and pins the published snapshot.
// Returns ErrNoSnapshot when nothing has been published.
func Open(root string) (*Reader, error) {
	dir, err := filepath.EvalSymlinks(CurrentPath(root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("resolving current snapshot: %w", err)
	}
	return OpenDir(dir)
}

// OpenDir reads a specific snapshot directory, published or still staged.
func OpenDir(dir string) (*Reader, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("opening snapshot: %s is not a directory", dir)
	}
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("opening query database: %w", err)
	}
	return &Reader{dir: dir, db: db}, nil
}

// Dir returns the pinned snapshot directory.
func (r *Reader) Dir() string { return r.dir }

// RunID returns the run that produced the pinned snapshot.
func (r *Reader) RunID() string { return filepath.Base(r.dir) }

func (r *Reader) Close() error { return r.db.Close() }

// IntegratedRecords loads the whole integrated table, ordered by job id.
func (r *Reader) IntegratedRecords(ctx context.Context) ([]merge.Record, error) {
	q := selectSQL(integratedColumns, filepath.Join(r.dir, FileIntegrated), "")
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("reading integrated table: %w", err)
	}
	defer rows.Close()

	var records []merge.Record
	for rows.Next() {
		rec, err := scanIntegrated(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading integrated table: %w", err)
	}
	return records, nil
}

// FeatureRecords loads the whole feature table, ordered by job id.
func (r *Reader) FeatureRecords(ctx context.Context) ([]feature.Record, error) {
	return r.queryFeatures(ctx, "")
}

// FeatureByJob returns the full feature record for one job. A miss is a
// NotFoundError.
func (r *Reader) FeatureByJob(ctx context.Context, jobID string) (feature.Record, error) {
	records, err := r.queryFeatures(ctx, "job_id = ?", jobID)
	if err != nil {
		return feature.Record{}, err
	}
	if len(records) == 0 {
		return feature.Record{}, &NotFoundError{JobID: jobID}
	}
	return records[0], nil
}

// FeaturesByMaterial returns every feature record for one material. The
// argument is canonicalized the same way ingest canonicalizes materials,
// so "granite" and "Granite" find the same jobs. No matches is an empty
// slice, not an error.
func (r *Reader) FeaturesByMaterial(ctx context.Context, material string) ([]feature.Record, error) {
	return r.queryFeatures(ctx, "material = ?", source.NormalizeMaterial(material))
}

func (r *Reader) queryFeatures(ctx context.Context, where string, args ...any) ([]feature.Record, error) {
	q := selectSQL(featureColumns, filepath.Join(r.dir, FileFeatures), where)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("reading feature table: %w", err)
	}
	defer rows.Close()

	var records []feature.Record
	for rows.Next() {
		rec, err := scanFeature(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading feature table: %w", err)
	}
	return records, nil
}

// NullFractions reports, for every nullable integrated column, the
// fraction of records with a null value. An empty snapshot reports
// zero for every column.
func (r *Reader) NullFractions(ctx context.Context) (map[string]float64, error) {
	cols := nullableIntegratedColumns()
	sel := make([]string, 0, len(cols)+1)
	sel = append(sel, `COUNT(*)`)
	for _, col := range cols {
		sel = append(sel, fmt.Sprintf("COUNT(%s)", col))
	}
	q := fmt.Sprintf("SELECT %s FROM read_parquet('%s')",
		strings.Join(sel, ", "), sqlQuote(filepath.Join(r.dir, FileIntegrated)))

	counts := make([]int64, len(cols)+1)
	dests := make([]any, len(counts))
	for i := range counts {
		dests[i] = &counts[i]
	}
	if err := r.db.QueryRowContext(ctx, q).Scan(dests...); err != nil {
		return nil, fmt.Errorf("counting nulls: %w", err)
	}

	total := counts[0]
	out := make(map[string]float64, len(cols))
	for i, col := range cols {
		if total == 0 {
			out[col] = 0
			continue
		}
		out[col] = 1 - float64(counts[i+1])/float64(total)
	}
	return out, nil
}

// QualityReport loads the snapshot's quality report.
func (r *Reader) QualityReport() (*audit.Report, error) {
	var report audit.Report
	if err := r.ReadJSON(FileQualityReport, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// ReadJSON loads one JSON artifact from the pinned snapshot.
func (r *Reader) ReadJSON(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(r.dir, name))
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", name, err)
	}
	return nil
}
