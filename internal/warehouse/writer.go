package warehouse

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb/v2"
	"go.uber.org/zap"

	"github.com/quarrylabs/quarry/internal/feature"
	"github.com/quarrylabs/quarry/internal/merge"
)

// Writer stages one run's artifact set inside its snapshot directory.
// Nothing it writes is visible to readers until Publish swaps the current
// symlink.
type Writer struct {
	root  string
	runID string
	dir   string
	db    *sql.DB
	log   *zap.Logger
}

// NewWriter creates the run's snapshot directory and an in-memory DuckDB
// session for staging parquet. A nil logger disables logging.
func NewWriter(root, runID string, log *zap.Logger) (*Writer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dir := SnapshotDir(root, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot dir: %w", err)
	}
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("opening staging database: %w", err)
	}
	return &Writer{root: root, runID: runID, dir: dir, db: db, log: log}, nil
}

// Dir returns the snapshot directory artifacts are staged in.
func (w *Writer) Dir() string { return w.dir }

// Close releases the staging database. It does not publish.
func (w *Writer) Close() error { return w.db.Close() }

// WriteIntegrated stages the integrated table as zstd parquet, ordered by
// job id so identical inputs produce byte-identical files.
func (w *Writer) WriteIntegrated(ctx context.Context, records []merge.Record) error {
	if _, err := w.db.ExecContext(ctx, createIntegratedSQL); err != nil {
		return fmt.Errorf("creating jobs table: %w", err)
	}
	stmt, err := w.db.PrepareContext(ctx, insertSQL("jobs", integratedColumns))
	if err != nil {
		return fmt.Errorf("preparing jobs insert: %w", err)
	}
	defer stmt.Close()
	for i := range records {
		if _, err := stmt.ExecContext(ctx, integratedArgs(&records[i])...); err != nil {
			return fmt.Errorf("inserting job %s: %w", records[i].JobID, err)
		}
	}
	if err := w.copyTable(ctx, "jobs", FileIntegrated); err != nil {
		return err
	}
	w.log.Debug("staged integrated table",
		zap.String("run_id", w.runID),
		zap.Int("rows", len(records)))
	return nil
}

// WriteFeatures stages the feature table.
func (w *Writer) WriteFeatures(ctx context.Context, records []feature.Record) error {
	if _, err := w.db.ExecContext(ctx, createFeaturesSQL); err != nil {
		return fmt.Errorf("creating features table: %w", err)
	}
	stmt, err := w.db.PrepareContext(ctx, insertSQL("features", featureColumns))
	if err != nil {
		return fmt.Errorf("preparing features insert: %w", err)
	}
	defer stmt.Close()
	for i := range records {
		if _, err := stmt.ExecContext(ctx, featureArgs(&records[i])...); err != nil {
			return fmt.Errorf("inserting features for job %s: %w", records[i].JobID, err)
		}
	}
	if err := w.copyTable(ctx, "features", FileFeatures); err != nil {
		return err
	}
	w.log.Debug("staged feature table",
		zap.String("run_id", w.runID),
		zap.Int("rows", len(records)))
	return nil
}

// WriteJSON stages one JSON artifact.
func (w *Writer) WriteJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(filepath.Join(w.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

func (w *Writer) copyTable(ctx context.Context, table, file string) error {
	path := filepath.Join(w.dir, file)
	q := fmt.Sprintf("COPY (SELECT * FROM %s ORDER BY job_id) TO '%s' (FORMAT 'parquet', COMPRESSION 'zstd')",
		table, sqlQuote(path))
	if _, err := w.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("writing %s: %w", file, err)
	}
	return nil
}

// Publish fsyncs the staged artifacts and swaps the current symlink to
// this snapshot via rename. A crash before the rename leaves the previous
// snapshot published; after it, the new one. There is no in-between. If
// runs race, the last completed swap wins.
func (w *Writer) Publish() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("listing snapshot dir: %w", err)
	}
	for _, e := range entries {
		if err := syncPath(filepath.Join(w.dir, e.Name())); err != nil {
			return err
		}
	}
	if err := syncPath(w.dir); err != nil {
		return err
	}

	// Relative target keeps the warehouse relocatable.
	target := filepath.Join(runsDir, w.runID)
	tmp := filepath.Join(w.root, fmt.Sprintf(".%s-%s", currentLink, w.runID))
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clearing stale symlink: %w", err)
	}
	if err := os.Symlink(target, tmp); err != nil {
		return fmt.Errorf("staging current symlink: %w", err)
	}
	if err := os.Rename(tmp, CurrentPath(w.root)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publishing snapshot %s: %w", w.runID, err)
	}
	if err := syncPath(w.root); err != nil {
		return err
	}
	w.log.Info("published snapshot",
		zap.String("run_id", w.runID),
		zap.String("dir", w.dir))
	return nil
}

func syncPath(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	return nil
}
