package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/audit"
	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/policy"
	"github.com/quarrylabs/quarry/internal/warehouse"
)

// AuditOptions holds flags for the audit command.
type AuditOptions struct {
	*RootOptions
	WarehouseDir string
	Policy       string
}

// AuditResult is the audit command's envelope payload.
type AuditResult struct {
	RunID  string        `json:"run_id"`
	Passed bool          `json:"passed"`
	Checks []audit.Check `json:"checks"`
	Report *audit.Report `json:"report"`
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Recompute quality checks over the published snapshot",
		Long: `Recompute the quality report from the currently published integrated
table and evaluate it against the audit policy. The snapshot is not
modified; this answers "would today's policy still pass?" without
re-running the pipeline.

Exits 1 when any check fails.

Examples:
  quarry audit --warehouse-dir ./warehouse
  quarry audit --warehouse-dir ./warehouse --policy strict.cue --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.WarehouseDir, "warehouse-dir", "", "warehouse directory holding the published snapshot")
	cmd.Flags().StringVar(&opts.Policy, "policy", "", "CUE audit policy file (default: embedded policy)")

	return cmd
}

func runAudit(opts *AuditOptions, cmd *cobra.Command) error {
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
	if flags.Changed("policy") {
		cfg.Policy = opts.Policy
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
	auditor, err := audit.New(pol)
	if err != nil {
		_ = formatter.Error(ErrCodePolicyInvalid, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid policy", err)
	}

	reader, err := warehouse.Open(cfg.WarehouseDir)
	if err != nil {
		_ = formatter.Error(errorCode(err), err.Error(), nil)
		if errors.Is(err, warehouse.ErrNoSnapshot) {
			return WrapExitError(ExitCommandError, "no published snapshot", err)
		}
		return WrapExitError(ExitFailure, "opening warehouse", err)
	}
	defer reader.Close()

	records, err := reader.IntegratedRecords(contextOf(cmd))
	if err != nil {
		_ = formatter.Error(errorCode(err), err.Error(), nil)
		return WrapExitError(ExitFailure, "reading integrated table", err)
	}

	report := auditor.Run(records, time.Now().UTC())
	result := &AuditResult{
		RunID:  reader.RunID(),
		Passed: report.Passed(auditor.MinRatio()),
		Checks: report.Checks(auditor.MinRatio()),
		Report: report,
	}

	return outputAudit(formatter, cmd, result, auditor.MinRatio())
}

func outputAudit(f *OutputFormatter, cmd *cobra.Command, result *AuditResult, minRatio float64) error {
	if f.Format == "json" {
		if result.Passed {
			return f.Success(result)
		}
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    ErrCodeAuditFailed,
				Message: "quality audit failed",
			},
		}
		encoder := json.NewEncoder(f.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return fmt.Errorf("encoding JSON response: %w", err)
		}
		return NewExitError(ExitFailure, "quality audit failed")
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "snapshot %s\n", result.RunID)
	audit.WriteSummary(w, result.Report, minRatio)
	if !result.Passed {
		return NewExitError(ExitFailure, "quality audit failed")
	}
	return nil
}
