package audit

import (
	"sort"

	"github.com/quarrylabs/quarry/internal/merge"
)

// numericFields maps the integrated table's numeric column names to their
// value on a record. A nil return means the column is null for that record.
// Policies may only name fields listed here.
var numericFields = map[string]func(*merge.Record) *float64{
	"feed_rate_mm_min":   func(r *merge.Record) *float64 { return r.FeedRateMMMin },
	"stepover_mm":        func(r *merge.Record) *float64 { return r.StepoverMM },
	"path_length_mm":     func(r *merge.Record) *float64 { return r.PathLengthMM },
	"volume_removed_cm3": func(r *merge.Record) *float64 { return r.VolumeRemovedCM3 },
	"sim_duration_s":     func(r *merge.Record) *float64 { return r.SimDurationS },
	"spindle_current_a":  func(r *merge.Record) *float64 { return r.SpindleCurrentA },
	"torque_mean_nm":     func(r *merge.Record) *float64 { return r.TorqueMeanNM },
	"duration_s":         func(r *merge.Record) *float64 { return r.DurationS },
	"energy_kwh":         func(r *merge.Record) *float64 { return r.EnergyKWH },
	"surface_score":      func(r *merge.Record) *float64 { return r.SurfaceScore },
	"defect_count":       func(r *merge.Record) *float64 { return intValue(r.DefectCount) },
	"inspection_count":   func(r *merge.Record) *float64 { return countValue(r.InspectionCount) },
	"tool_wear_cost_usd": func(r *merge.Record) *float64 { return r.ToolWearCostUSD },
	"labor_hours":        func(r *merge.Record) *float64 { return r.LaborHours },
	"revenue_usd":        func(r *merge.Record) *float64 { return r.RevenueUSD },
	"note_count":         func(r *merge.Record) *float64 { return countValue(r.NoteCount) },
}

// FieldNames lists every auditable column, sorted.
func FieldNames() []string {
	names := make([]string, 0, len(numericFields))
	for name := range numericFields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func intValue(v *int) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}

func countValue(v int) *float64 {
	f := float64(v)
	return &f
}
