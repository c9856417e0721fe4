package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/policy"
	"github.com/quarrylabs/quarry/internal/source"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	DataDir string
	Policy  string
}

// ValidationIssue is one finding: an unreadable or misshapen source, or a
// policy that does not compile.
type ValidationIssue struct {
	Code       string   `json:"code"`
	Source     string   `json:"source"`
	Message    string   `json:"message"`
	Missing    []string `json:"missing_columns,omitempty"`
	Unexpected []string `json:"unexpected_columns,omitempty"`
}

// ValidationResult tallies a dry run over the source directory.
type ValidationResult struct {
	Valid   bool                    `json:"valid"`
	Policy  string                  `json:"policy"`
	Sources map[string]source.Stats `json:"sources"`
	Issues  []ValidationIssue       `json:"issues"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check source files and policy without running the pipeline",
		Long: `Dry-run the intake stage: read every source CSV, verify its header
against the expected schema, tally usable and rejected rows, and compile
the audit policy. Nothing is written, so this is safe to wire into the
export job that produces the CSVs.

Every problem is reported, not just the first. Exits 1 when any source
or the policy has a finding.

Examples:
  quarry validate --data-dir ./data
  quarry validate --data-dir ./data --policy shop.cue --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DataDir, "data-dir", "", "directory holding the five source CSV exports")
	cmd.Flags().StringVar(&opts.Policy, "policy", "", "CUE audit policy file (default: embedded policy)")

	return cmd
}

// sourceCheck pairs a source with its typed reader, erased to the stats
// the dry run keeps.
type sourceCheck struct {
	src  source.Source
	read func(dir string) (source.Stats, error)
}

func sourceChecks() []sourceCheck {
	return []sourceCheck{
		{source.Toolpath, func(dir string) (source.Stats, error) {
			_, stats, err := source.ReadToolpath(dir)
			return stats, err
		}},
		{source.Telemetry, func(dir string) (source.Stats, error) {
			_, stats, err := source.ReadTelemetry(dir)
			return stats, err
		}},
		{source.Quality, func(dir string) (source.Stats, error) {
			_, stats, err := source.ReadQuality(dir)
			return stats, err
		}},
		{source.Cost, func(dir string) (source.Stats, error) {
			_, stats, err := source.ReadCost(dir)
			return stats, err
		}},
		{source.Notes, func(dir string) (source.Stats, error) {
			_, stats, err := source.ReadNotes(dir)
			return stats, err
		}},
	}
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command) error {
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
	if flags.Changed("policy") {
		cfg.Policy = opts.Policy
	}
	if err := cfg.Validate(); err != nil {
		_ = formatter.Error(ErrCodeConfigInvalid, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	if _, err := os.Stat(cfg.DataDir); err != nil {
		message := fmt.Sprintf("data directory not found: %s", cfg.DataDir)
		_ = formatter.Error(ErrCodeGeneric, message, nil)
		return NewExitError(ExitCommandError, message)
	}

	result := &ValidationResult{
		Policy:  policyName(cfg.Policy),
		Sources: make(map[string]source.Stats, len(source.All())),
		Issues:  []ValidationIssue{},
	}

	for _, check := range sourceChecks() {
		stats, err := check.read(cfg.DataDir)
		if err != nil {
			result.Issues = append(result.Issues, newValidationIssue(string(check.src), err))
			continue
		}
		result.Sources[string(check.src)] = stats
	}

	if _, err := policy.Load(cfg.Policy); err != nil {
		result.Issues = append(result.Issues, ValidationIssue{
			Code:    ErrCodePolicyInvalid,
			Source:  "policy",
			Message: err.Error(),
		})
	}

	result.Valid = len(result.Issues) == 0
	if result.Valid {
		return outputValidationSuccess(formatter, cmd, result)
	}
	return outputValidationIssues(formatter, cmd, result)
}

func newValidationIssue(src string, err error) ValidationIssue {
	issue := ValidationIssue{
		Code:    errorCode(err),
		Source:  src,
		Message: err.Error(),
	}
	var schemaErr *source.SchemaError
	if errors.As(err, &schemaErr) {
		issue.Missing = schemaErr.Missing
		issue.Unexpected = schemaErr.Unexpected
	}
	return issue
}

// policyName is the policy identifier shown to users; the empty path
// means the embedded default.
func policyName(path string) string {
	if path == "" {
		return "embedded"
	}
	return path
}

func outputValidationSuccess(f *OutputFormatter, cmd *cobra.Command, result *ValidationResult) error {
	if f.Format == "json" {
		return f.Success(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "✓ all sources valid (policy: %s)\n", result.Policy)
	for _, src := range source.All() {
		stats := result.Sources[string(src)]
		fmt.Fprintf(w, "  %-10s %d rows, %d jobs", src, stats.Rows, stats.Jobs)
		if stats.Rejected > 0 {
			fmt.Fprintf(w, " (%d rejected)", stats.Rejected)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func outputValidationIssues(f *OutputFormatter, cmd *cobra.Command, result *ValidationResult) error {
	if f.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    result.Issues[0].Code,
				Message: result.Issues[0].Message,
			},
		}
		encoder := json.NewEncoder(f.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return fmt.Errorf("encoding JSON response: %w", err)
		}
	} else {
		w := cmd.OutOrStdout()
		fmt.Fprint(w, "✗ validation failed\n\n")
		for _, issue := range result.Issues {
			fmt.Fprintf(w, "  %s: %s\n", issue.Source, issue.Message)
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d issue(s)", len(result.Issues)))
}
