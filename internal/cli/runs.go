package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/ledger"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	WarehouseDir string
	Limit        int
}

// RunsResult is the runs command's envelope payload.
type RunsResult struct {
	Count int          `json:"count"`
	Runs  []ledger.Run `json:"runs"`
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show run history from the ledger",
		Long: `List recorded pipeline runs, newest first: published snapshots, failed
runs with their fatal error, and snapshots since pruned.

Examples:
  quarry runs --warehouse-dir ./warehouse
  quarry runs --warehouse-dir ./warehouse --limit 10 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.WarehouseDir, "warehouse-dir", "", "warehouse directory whose ledger to read")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "most recent runs to show (0 = all)")

	return cmd
}

func runRuns(opts *RunsOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		_ = formatter.Error(ErrCodeConfigInvalid, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if cmd.Flags().Changed("warehouse-dir") {
		applyWarehouseDir(cfg, opts.WarehouseDir)
	}
	if err := cfg.Validate(); err != nil {
		_ = formatter.Error(ErrCodeConfigInvalid, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	// Opening the ledger would create an empty database; a warehouse
	// nothing ever ran in just has no history.
	if _, err := os.Stat(cfg.LedgerPath); os.IsNotExist(err) {
		return outputRuns(formatter, cmd, &RunsResult{Runs: []ledger.Run{}})
	}

	led, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, "opening ledger", err)
	}
	defer led.Close()

	runs, err := led.Runs(contextOf(cmd), opts.Limit)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, "reading ledger", err)
	}

	return outputRuns(formatter, cmd, &RunsResult{Count: len(runs), Runs: runs})
}

func outputRuns(f *OutputFormatter, cmd *cobra.Command, result *RunsResult) error {
	if f.Format == "json" {
		return f.Success(result)
	}

	w := cmd.OutOrStdout()
	if result.Count == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return nil
	}

	fmt.Fprintf(w, "%-36s  %-20s  %-9s  %5s  %8s\n", "RUN ID", "STARTED", "STATUS", "JOBS", "REJECTED")
	for _, run := range result.Runs {
		fmt.Fprintf(w, "%-36s  %-20s  %-9s  %5d  %8d\n",
			run.RunID,
			run.StartedAt.UTC().Format(time.RFC3339),
			run.Status,
			run.JobCount,
			run.RejectedRows,
		)
		if f.Verbose && run.Error != "" {
			fmt.Fprintf(w, "  error: %s\n", run.Error)
		}
	}
	return nil
}
