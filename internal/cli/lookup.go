package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/feature"
	"github.com/quarrylabs/quarry/internal/source"
	"github.com/quarrylabs/quarry/internal/warehouse"
)

// LookupOptions holds flags for the lookup command.
type LookupOptions struct {
	*RootOptions
	Job          string
	Material     string
	WarehouseDir string
}

// FeatureView is one feature record shaped for CLI output. Base columns
// that were never observed upstream are omitted; metrics always appear
// with their state so consumers can tell undefined from absent.
type FeatureView struct {
	JobID     string  `json:"job_id"`
	Material  *string `json:"material,omitempty"`
	StoneType *string `json:"stone_type,omitempty"`

	FeedRateMMMin    *float64 `json:"feed_rate_mm_min,omitempty"`
	StepoverMM       *float64 `json:"stepover_mm,omitempty"`
	PathLengthMM     *float64 `json:"path_length_mm,omitempty"`
	VolumeRemovedCM3 *float64 `json:"volume_removed_cm3,omitempty"`
	SpindleCurrentA  *float64 `json:"spindle_current_a,omitempty"`
	DurationS        *float64 `json:"duration_s,omitempty"`
	SurfaceScore     *float64 `json:"surface_score,omitempty"`
	ToolWearCostUSD  *float64 `json:"tool_wear_cost_usd,omitempty"`
	LaborHours       *float64 `json:"labor_hours,omitempty"`
	RevenueUSD       *float64 `json:"revenue_usd,omitempty"`

	Metrics map[string]feature.Metric `json:"metrics"`
}

// MaterialResult lists every job matching a canonical material value.
type MaterialResult struct {
	Material string        `json:"material"`
	Count    int           `json:"count"`
	Jobs     []FeatureView `json:"jobs"`
}

// NewLookupCommand creates the lookup command.
func NewLookupCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LookupOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Look up feature records in the published snapshot",
		Long: `Query the published feature table: --job returns the single record for
a job_id, --material returns every job of that material. Material
matching uses the same canonical form as the pipeline, so "  GRANITE "
finds jobs recorded as "Granite".

Examples:
  quarry lookup --job J-1001 --warehouse-dir ./warehouse
  quarry lookup --material granite --warehouse-dir ./warehouse --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLookup(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Job, "job", "", "job_id to look up")
	cmd.Flags().StringVar(&opts.Material, "material", "", "material to list jobs for")
	cmd.Flags().StringVar(&opts.WarehouseDir, "warehouse-dir", "", "warehouse directory holding the published snapshot")
	cmd.MarkFlagsOneRequired("job", "material")
	cmd.MarkFlagsMutuallyExclusive("job", "material")

	return cmd
}

func runLookup(opts *LookupOptions, cmd *cobra.Command) error {
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

	reader, err := warehouse.Open(cfg.WarehouseDir)
	if err != nil {
		_ = formatter.Error(errorCode(err), err.Error(), nil)
		if errors.Is(err, warehouse.ErrNoSnapshot) {
			return WrapExitError(ExitCommandError, "no published snapshot", err)
		}
		return WrapExitError(ExitFailure, "opening warehouse", err)
	}
	defer reader.Close()

	if opts.Job != "" {
		return lookupJob(formatter, cmd, reader, opts.Job)
	}
	return lookupMaterial(formatter, cmd, reader, opts.Material)
}

func lookupJob(f *OutputFormatter, cmd *cobra.Command, reader *warehouse.Reader, jobID string) error {
	rec, err := reader.FeatureByJob(contextOf(cmd), jobID)
	if err != nil {
		_ = f.Error(errorCode(err), err.Error(), nil)
		return WrapExitError(ExitFailure, "lookup failed", err)
	}

	view := newFeatureView(rec)
	if f.Format == "json" {
		return f.Success(view)
	}
	writeFeatureText(cmd.OutOrStdout(), view)
	return nil
}

func lookupMaterial(f *OutputFormatter, cmd *cobra.Command, reader *warehouse.Reader, material string) error {
	recs, err := reader.FeaturesByMaterial(contextOf(cmd), material)
	if err != nil {
		_ = f.Error(errorCode(err), err.Error(), nil)
		return WrapExitError(ExitFailure, "lookup failed", err)
	}

	result := MaterialResult{
		Material: source.NormalizeMaterial(material),
		Count:    len(recs),
		Jobs:     make([]FeatureView, 0, len(recs)),
	}
	for _, rec := range recs {
		result.Jobs = append(result.Jobs, newFeatureView(rec))
	}
	// The reader leaves match order up to the database.
	sort.Slice(result.Jobs, func(i, j int) bool { return result.Jobs[i].JobID < result.Jobs[j].JobID })

	if f.Format == "json" {
		return f.Success(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%d job(s) with material %q\n", result.Count, result.Material)
	for _, view := range result.Jobs {
		fmt.Fprintln(w)
		writeFeatureText(w, view)
	}
	return nil
}

func newFeatureView(rec feature.Record) FeatureView {
	metrics := make(map[string]feature.Metric, len(feature.Names()))
	for _, name := range feature.Names() {
		metrics[name] = rec.Metric(name)
	}
	return FeatureView{
		JobID:            rec.JobID,
		Material:         rec.Material,
		StoneType:        rec.StoneType,
		FeedRateMMMin:    rec.FeedRateMMMin,
		StepoverMM:       rec.StepoverMM,
		PathLengthMM:     rec.PathLengthMM,
		VolumeRemovedCM3: rec.VolumeRemovedCM3,
		SpindleCurrentA:  rec.SpindleCurrentA,
		DurationS:        rec.DurationS,
		SurfaceScore:     rec.SurfaceScore,
		ToolWearCostUSD:  rec.ToolWearCostUSD,
		LaborHours:       rec.LaborHours,
		RevenueUSD:       rec.RevenueUSD,
		Metrics:          metrics,
	}
}

func writeFeatureText(w io.Writer, view FeatureView) {
	fmt.Fprintf(w, "job %s\n", view.JobID)
	fmt.Fprintf(w, "  material:   %s\n", orDash(view.Material))
	fmt.Fprintf(w, "  stone_type: %s\n", orDash(view.StoneType))
	for _, name := range feature.Names() {
		fmt.Fprintf(w, "  %-20s %s\n", name, view.Metrics[name])
	}
}

func orDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
