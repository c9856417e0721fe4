// Package ledger records pipeline run history in a SQLite database.
//
// Every run gets a row when it starts and a terminal status when it
// ends, so history survives warehouse pruning and failed runs leave a
// trace even though they publish nothing.
package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/quarrylabs/quarry/internal/source"
)

//go:embed schema.sql
var schemaSQL string

// currentSchemaVersion is stamped into PRAGMA user_version after the
// schema is applied. Bump it alongside any schema change.
const currentSchemaVersion = 1

// Status is the lifecycle state of a run.
type Status string

const (
	// StatusRunning marks a run that has started but not finished.
	StatusRunning Status = "running"
	// StatusPublished marks a run whose snapshot is (or was) live.
	StatusPublished Status = "published"
	// StatusFailed marks a run that aborted before publishing.
	StatusFailed Status = "failed"
	// StatusPruned marks a published run whose snapshot was removed.
	StatusPruned Status = "pruned"
)

// Run is one row of the run ledger.
type Run struct {
	RunID        string                  `json:"run_id"`
	StartedAt    time.Time               `json:"started_at"`
	FinishedAt   *time.Time              `json:"finished_at,omitempty"`
	Status       Status                  `json:"status"`
	JobCount     int                     `json:"job_count"`
	RejectedRows int                     `json:"rejected_rows"`
	SnapshotDir  string                  `json:"snapshot_dir"`
	Error        string                  `json:"error,omitempty"`
	SourceStats  map[string]source.Stats `json:"source_stats,omitempty"`
}

// ErrNotFound is returned when a run id has no ledger row.
var ErrNotFound = errors.New("run not found")

// Ledger is a handle to the run database.
type Ledger struct {
	db *sql.DB
}

// Open opens the ledger database at path, creating it if needed.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping ledger: %w", err)
	}

	// SQLite allows one writer at a time; a single connection keeps
	// the pool from contending with itself.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Ledger{db: db}, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA synchronous = NORMAL`,
		`PRAGMA busy_timeout = 5000`,
		`PRAGMA foreign_keys = ON`,
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("apply %s: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply ledger schema: %w", err)
	}
	return nil
}

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	switch {
	case version > currentSchemaVersion:
		return fmt.Errorf("ledger schema version %d is newer than this binary supports (%d)", version, currentSchemaVersion)
	case version == currentSchemaVersion:
		return nil
	}
	// Version 0 is a fresh database and schema.sql already creates the
	// current layout, so only the stamp is missing. Later versions add
	// stepwise migrations here before restamping.
	if _, err := db.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, currentSchemaVersion)); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return nil
}

// Begin records a new run in the running state.
func (l *Ledger) Begin(ctx context.Context, runID string, startedAt time.Time, snapshotDir string) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, started_at, status, snapshot_dir)
		VALUES (?, ?, ?, ?)`,
		runID, formatTime(startedAt), StatusRunning, snapshotDir)
	if err != nil {
		return fmt.Errorf("begin run %s: %w", runID, err)
	}
	return nil
}

// MarkPublished transitions a running run to published and records its
// final counts.
func (l *Ledger) MarkPublished(ctx context.Context, runID string, finishedAt time.Time, jobCount, rejectedRows int, stats map[string]source.Stats) error {
	statsJSON, err := marshalStats(stats)
	if err != nil {
		return fmt.Errorf("mark run %s published: %w", runID, err)
	}
	res, err := l.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, finished_at = ?, job_count = ?, rejected_rows = ?, source_stats = ?
		WHERE run_id = ? AND status = ?`,
		StatusPublished, formatTime(finishedAt), jobCount, rejectedRows, statsJSON, runID, StatusRunning)
	if err != nil {
		return fmt.Errorf("mark run %s published: %w", runID, err)
	}
	return transitioned(res, runID, StatusPublished)
}

// MarkFailed transitions a running run to failed and records the cause.
func (l *Ledger) MarkFailed(ctx context.Context, runID string, finishedAt time.Time, cause string) error {
	res, err := l.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, finished_at = ?, error = ?
		WHERE run_id = ? AND status = ?`,
		StatusFailed, formatTime(finishedAt), cause, runID, StatusRunning)
	if err != nil {
		return fmt.Errorf("mark run %s failed: %w", runID, err)
	}
	return transitioned(res, runID, StatusFailed)
}

// MarkPruned transitions a published run to pruned after its snapshot
// directory has been removed.
func (l *Ledger) MarkPruned(ctx context.Context, runID string) error {
	res, err := l.db.ExecContext(ctx, `
		UPDATE runs SET status = ? WHERE run_id = ? AND status = ?`,
		StatusPruned, runID, StatusPublished)
	if err != nil {
		return fmt.Errorf("mark run %s pruned: %w", runID, err)
	}
	return transitioned(res, runID, StatusPruned)
}

// transitioned verifies that a status UPDATE matched a row. Transitions
// are guarded by the prior status in the WHERE clause, so zero rows
// means the run is missing or in the wrong state.
func transitioned(res sql.Result, runID string, to Status) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark run %s %s: %w", runID, to, err)
	}
	if n == 0 {
		return fmt.Errorf("run %s is not in a state that allows %s", runID, to)
	}
	return nil
}

const runColumns = `run_id, started_at, finished_at, status, job_count, rejected_rows, snapshot_dir, error, source_stats`

// Run returns the ledger row for a single run id.
func (l *Ledger) Run(ctx context.Context, runID string) (Run, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("load run %s: %w", runID, err)
	}
	return r, nil
}

// Runs returns run history ordered newest first. A limit of zero or
// less returns every run.
func (l *Ledger) Runs(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, run_id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	runs, err := l.queryRuns(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// PublishedRuns returns runs still in the published state, oldest
// first. Retention walks this list to pick pruning victims.
func (l *Ledger) PublishedRuns(ctx context.Context) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE status = ? ORDER BY started_at ASC, run_id ASC`
	runs, err := l.queryRuns(ctx, query, StatusPublished)
	if err != nil {
		return nil, fmt.Errorf("list published runs: %w", err)
	}
	return runs, nil
}

func (l *Ledger) queryRuns(ctx context.Context, query string, args ...any) ([]Run, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		r          Run
		startedAt  string
		finishedAt sql.NullString
		errMsg     sql.NullString
		stats      sql.NullString
	)
	err := s.Scan(&r.RunID, &startedAt, &finishedAt, &r.Status,
		&r.JobCount, &r.RejectedRows, &r.SnapshotDir, &errMsg, &stats)
	if err != nil {
		return Run{}, err
	}
	t, err := parseTime(startedAt)
	if err != nil {
		return Run{}, fmt.Errorf("started_at: %w", err)
	}
	r.StartedAt = t
	if finishedAt.Valid {
		t, err := parseTime(finishedAt.String)
		if err != nil {
			return Run{}, fmt.Errorf("finished_at: %w", err)
		}
		r.FinishedAt = &t
	}
	if errMsg.Valid {
		r.Error = errMsg.String
	}
	if stats.Valid && stats.String != "" {
		if err := json.Unmarshal([]byte(stats.String), &r.SourceStats); err != nil {
			return Run{}, fmt.Errorf("source_stats: %w", err)
		}
	}
	return r, nil
}

// marshalStats encodes per-source stats as JSON, or NULL when empty.
func marshalStats(stats map[string]source.Stats) (any, error) {
	if len(stats) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return nil, fmt.Errorf("encode source stats: %w", err)
	}
	return string(data), nil
}

// Timestamps are stored as RFC 3339 UTC strings so the rows stay
// readable from the sqlite3 shell. Nanoseconds keep a fixed width:
// RFC3339Nano trims trailing zeros, which would break the lexicographic
// ORDER BY on started_at.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
