package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/ledger"
	"github.com/quarrylabs/quarry/internal/pipeline"
)

// PruneOptions holds flags for the prune command.
type PruneOptions struct {
	*RootOptions
	WarehouseDir string
	Keep         int
}

// NewPruneCommand creates the prune command.
func NewPruneCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PruneOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove old published snapshots",
		Long: `Remove the oldest published snapshots beyond the retention count. The
snapshot current points at is never removed. Removed runs stay in the
ledger, marked pruned.

The run command applies the same retention after every publish; prune
exists for tightening retention on an existing warehouse.

Examples:
  quarry prune --warehouse-dir ./warehouse --keep 3`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.WarehouseDir, "warehouse-dir", "", "warehouse directory to prune")
	cmd.Flags().IntVar(&opts.Keep, "keep", 0, "published snapshots to retain (default: keep_runs from config)")

	return cmd
}

func runPrune(opts *PruneOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		_ = formatter.Error(ErrCodeConfigInvalid, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	flags := cmd.Flags()
	if flags.Changed("warehouse-dir") {
		applyWarehouseDir(cfg, opts.WarehouseDir)
	}
	if flags.Changed("keep") {
		cfg.KeepRuns = opts.Keep
	}
	if err := cfg.Validate(); err != nil {
		_ = formatter.Error(ErrCodeConfigInvalid, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	// No ledger means nothing was ever published here.
	if _, err := os.Stat(cfg.LedgerPath); os.IsNotExist(err) {
		return outputPrune(formatter, cmd, &pipeline.PruneResult{Kept: []string{}, Removed: []string{}})
	}

	log, err := newLogger(cfg, opts.Verbose)
	if err != nil {
		return WrapExitError(ExitCommandError, "building logger", err)
	}
	defer func() { _ = log.Sync() }()

	led, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, "opening ledger", err)
	}
	defer led.Close()

	result, err := pipeline.Prune(contextOf(cmd), led, cfg.WarehouseDir, cfg.KeepRuns, log)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, "prune failed", err)
	}

	return outputPrune(formatter, cmd, result)
}

func outputPrune(f *OutputFormatter, cmd *cobra.Command, result *pipeline.PruneResult) error {
	if f.Format == "json" {
		return f.Success(result)
	}

	w := cmd.OutOrStdout()
	for _, runID := range result.Removed {
		fmt.Fprintf(w, "removed %s\n", runID)
	}
	fmt.Fprintf(w, "✓ kept %d published snapshot(s), removed %d\n", len(result.Kept), len(result.Removed))
	return nil
}
