// Package pipeline runs one batch integration: read the five source
// exports, merge them into integrated records, audit, derive features,
// stage a snapshot, and atomically publish it.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quarrylabs/quarry/internal/audit"
	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/feature"
	"github.com/quarrylabs/quarry/internal/ledger"
	"github.com/quarrylabs/quarry/internal/merge"
	"github.com/quarrylabs/quarry/internal/policy"
	"github.com/quarrylabs/quarry/internal/source"
	"github.com/quarrylabs/quarry/internal/warehouse"
)

// Runner executes pipeline runs against one configuration.
type Runner struct {
	cfg     config.Config
	auditor *audit.Auditor
	log     *zap.Logger
	now     func() time.Time
	runIDs  func() (string, error)
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Runner) { r.log = log }
}

// WithClock substitutes the wall clock. Tests inject a step clock to
// pin run timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithRunIDs substitutes the run id generator. The default draws
// time-ordered UUIDv7 ids so snapshot directories sort by creation.
func WithRunIDs(gen func() (string, error)) Option {
	return func(r *Runner) { r.runIDs = gen }
}

// New creates a Runner. The policy is bound to an auditor up front so a
// bad policy fails here, before any run leaves a ledger row.
func New(cfg config.Config, pol *policy.Policy, opts ...Option) (*Runner, error) {
	auditor, err := audit.New(pol)
	if err != nil {
		return nil, err
	}
	r := &Runner{
		cfg:     cfg,
		auditor: auditor,
		log:     zap.NewNop(),
		now:     time.Now,
		runIDs:  newRunID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func newRunID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return id.String(), nil
}

// Result summarizes one published run.
type Result struct {
	RunID        string    `json:"run_id"`
	SnapshotDir  string    `json:"snapshot_dir"`
	JobCount     int       `json:"job_count"`
	RejectedRows int       `json:"rejected_rows"`
	AuditPassed  bool      `json:"audit_passed"`
	State        *RunState `json:"summary"`

	// Report is the freshly computed quality report, kept for console
	// rendering. Consumers read the published JSON artifact instead.
	Report *audit.Report `json:"-"`
}

// Run executes one pipeline run end to end. On success the new snapshot
// is the published one; on error the previously published snapshot is
// untouched and the ledger row is marked failed.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	runID, err := r.runIDs()
	if err != nil {
		return nil, err
	}
	state := newRunState(runID, r.now())
	log := r.log.With(zap.String("run_id", runID))

	if err := os.MkdirAll(filepath.Dir(r.cfg.LedgerPath), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	led, err := ledger.Open(r.cfg.LedgerPath)
	if err != nil {
		return nil, err
	}
	defer led.Close()

	snapDir := warehouse.SnapshotDir(r.cfg.WarehouseDir, runID)
	if err := led.Begin(ctx, runID, state.StartedAt, snapDir); err != nil {
		return nil, err
	}
	log.Info("run started",
		zap.String("data_dir", r.cfg.DataDir),
		zap.String("snapshot_dir", snapDir))

	result, err := r.execute(ctx, state, log)
	finishedAt := r.now()
	if err != nil {
		log.Error("run failed", zap.Error(err))
		if lerr := led.MarkFailed(ctx, runID, finishedAt, err.Error()); lerr != nil {
			log.Error("ledger update failed", zap.Error(lerr))
		}
		return nil, err
	}

	if err := led.MarkPublished(ctx, runID, finishedAt, state.TotalJobs, state.RejectedRows, state.Sources); err != nil {
		return nil, err
	}
	log.Info("run published",
		zap.Int("jobs", state.TotalJobs),
		zap.Int("rejected_rows", state.RejectedRows),
		zap.Bool("audit_passed", result.AuditPassed),
		zap.Duration("took", finishedAt.Sub(state.StartedAt)))
	return result, nil
}

func (r *Runner) execute(ctx context.Context, state *RunState, log *zap.Logger) (*Result, error) {
	var tables *source.Tables
	err := r.stage(state, "read_sources", func() error {
		var err error
		tables, err = source.ReadTables(ctx, r.cfg.DataDir)
		return err
	})
	if err != nil {
		return nil, err
	}
	state.recordSources(tables.Stats)
	for _, src := range source.All() {
		st := tables.Stats[src]
		log.Debug("source loaded",
			zap.String("source", string(src)),
			zap.Int("rows", st.Rows),
			zap.Int("jobs", st.Jobs),
			zap.Int("rejected", st.Rejected))
	}

	var merged merge.Result
	if err := r.stage(state, "merge", func() error {
		merged = merge.Merge(tables)
		return nil
	}); err != nil {
		return nil, err
	}
	state.TotalJobs = len(merged.Records)
	state.Backfills = merged.Backfills
	log.Info("sources merged",
		zap.Int("jobs", state.TotalJobs),
		zap.Int("backfilled_values", total(merged.Backfills)))

	w, err := warehouse.NewWriter(r.cfg.WarehouseDir, state.RunID, log)
	if err != nil {
		return nil, err
	}
	defer w.Close()

	if err := r.stage(state, "stage_integrated", func() error {
		return w.WriteIntegrated(ctx, merged.Records)
	}); err != nil {
		return nil, err
	}

	// Audit and features run over the staged table read back through the
	// warehouse reader, so they see exactly what consumers will see.
	reader, err := warehouse.OpenDir(w.Dir())
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	records, err := reader.IntegratedRecords(ctx)
	if err != nil {
		return nil, err
	}

	var report *audit.Report
	if err := r.stage(state, "audit", func() error {
		report = r.auditor.Run(records, r.now())
		return w.WriteJSON(warehouse.FileQualityReport, report)
	}); err != nil {
		return nil, err
	}

	if err := r.stage(state, "derive_features", func() error {
		feats := feature.DeriveAll(records)
		if err := w.WriteFeatures(ctx, feats); err != nil {
			return err
		}
		return w.WriteJSON(warehouse.FileFeatureSummary, feature.Summarize(feats))
	}); err != nil {
		return nil, err
	}

	state.NullFractions, err = reader.NullFractions(ctx)
	if err != nil {
		return nil, err
	}

	// The summary is itself a snapshot artifact, so it closes with the
	// staging timings; the publish timing only reaches the ledger and
	// the command output.
	state.FinishedAt = r.now().UTC()
	if err := w.WriteJSON(warehouse.FileETLSummary, state); err != nil {
		return nil, err
	}

	if err := r.stage(state, "publish", func() error {
		return w.Publish()
	}); err != nil {
		return nil, err
	}

	return &Result{
		RunID:        state.RunID,
		SnapshotDir:  w.Dir(),
		JobCount:     state.TotalJobs,
		RejectedRows: state.RejectedRows,
		AuditPassed:  report.Passed(r.auditor.MinRatio()),
		State:        state,
		Report:       report,
	}, nil
}

// stage runs fn and records its wall-clock duration on the state.
func (r *Runner) stage(state *RunState, name string, fn func() error) error {
	start := r.now()
	err := fn()
	state.Stages = append(state.Stages, StageTiming{
		Stage:      name,
		DurationMS: r.now().Sub(start).Milliseconds(),
	})
	return err
}

func total(counts map[string]int) int {
	n := 0
	for _, c := range counts {
		n += c
	}
	return n
}
