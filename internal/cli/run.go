package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quarrylabs/quarry/internal/audit"
	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/ledger"
	"github.com/quarrylabs/quarry/internal/pipeline"
	"github.com/quarrylabs/quarry/internal/policy"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	DataDir      string
	WarehouseDir string
	Policy       string
	Keep         int
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline and publish a snapshot",
		Long: `Run the full pipeline: read the five source CSV exports, merge them into
one integrated row per job, audit data quality, derive the ML feature
table, and publish the artifact set by atomically swapping the
warehouse's current symlink.

A failing quality audit is reported but never blocks the publish. Fatal
source errors abort before current is touched, and the run is recorded
as failed in the ledger.

Examples:
  quarry run --data-dir ./data --warehouse-dir ./warehouse
  quarry run --data-dir ./data --warehouse-dir ./warehouse --policy shop.cue --keep 10`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DataDir, "data-dir", "", "directory holding the five source CSV exports")
	cmd.Flags().StringVar(&opts.WarehouseDir, "warehouse-dir", "", "warehouse directory snapshots publish into")
	cmd.Flags().StringVar(&opts.Policy, "policy", "", "CUE audit policy file (default: embedded policy)")
	cmd.Flags().IntVar(&opts.Keep, "keep", 0, "published snapshots to retain after the run (default: keep_runs from config)")

	return cmd
}

func runPipeline(opts *RunOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		_ = formatter.Error(ErrCodeConfigInvalid, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		cfg.DataDir = opts.DataDir
	}
	if flags.Changed("warehouse-dir") {
		applyWarehouseDir(cfg, opts.WarehouseDir)
	}
	if flags.Changed("policy") {
		cfg.Policy = opts.Policy
	}
	if flags.Changed("keep") {
		cfg.KeepRuns = opts.Keep
	}
	if err := cfg.Validate(); err != nil {
		_ = formatter.Error(ErrCodeConfigInvalid, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	pol, err := policy.Load(cfg.Policy)
	if err != nil {
		_ = formatter.Error(ErrCodePolicyInvalid, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid policy", err)
	}

	log, err := newLogger(cfg, opts.Verbose)
	if err != nil {
		return WrapExitError(ExitCommandError, "building logger", err)
	}
	defer func() { _ = log.Sync() }()

	runner, err := pipeline.New(*cfg, pol, pipeline.WithLogger(log))
	if err != nil {
		_ = formatter.Error(ErrCodePolicyInvalid, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid policy", err)
	}

	// Ctrl-C aborts the run; the swap is atomic, so the previously
	// published snapshot stays live.
	ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := runner.Run(ctx)
	if err != nil {
		_ = formatter.Error(errorCode(err), err.Error(), nil)
		return WrapExitError(ExitFailure, "run failed", err)
	}

	pruneAfterRun(ctx, cfg, log)

	if opts.Format == "json" {
		return formatter.Success(res)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "✓ published run %s: %d jobs, %d rejected rows\n", res.RunID, res.JobCount, res.RejectedRows)
	fmt.Fprintf(w, "  snapshot: %s\n", res.SnapshotDir)
	audit.WriteSummary(w, res.Report, pol.Completeness.MinRatio)
	return nil
}

// pruneAfterRun applies the retention policy once the new snapshot is
// live. Retention can only remove stale snapshots, so its failures are
// logged instead of failing a run that already published.
func pruneAfterRun(ctx context.Context, cfg *config.Config, log *zap.Logger) {
	led, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		log.Warn("retention skipped", zap.Error(err))
		return
	}
	defer led.Close()

	if _, err := pipeline.Prune(ctx, led, cfg.WarehouseDir, cfg.KeepRuns, log); err != nil {
		log.Warn("retention failed", zap.Error(err))
	}
}
