// Package source loads the five per-domain CSV exports that feed the
// pipeline. Each reader enforces the source's column schema, normalizes
// units and text at ingest, and tallies rows rejected for a missing job id.
package source

import "time"

// Source identifies one upstream data source.
type Source string

const (
	Toolpath  Source = "toolpath"
	Telemetry Source = "telemetry"
	Quality   Source = "quality"
	Cost      Source = "cost"
	Notes     Source = "notes"
)

// All lists every source in canonical order. Order matters for
// deterministic output (reports, summaries, log lines).
func All() []Source {
	return []Source{Toolpath, Telemetry, Quality, Cost, Notes}
}

// FileName returns the expected file name for a source inside the data
// directory. Names follow the upstream generators.
func (s Source) FileName() string {
	switch s {
	case Toolpath:
		return "powermill_toolpaths.csv"
	case Telemetry:
		return "kuka_telemetry.csv"
	case Quality:
		return "quality_inspection.csv"
	case Cost:
		return "erp_costs.csv"
	case Notes:
		return "operator_log.csv"
	}
	return ""
}

// Columns returns the exact header a source file must carry.
func (s Source) Columns() []string {
	switch s {
	case Toolpath:
		return []string{
			"job_id", "exported_at", "material", "tool_id",
			"feed_rate_mm_min", "stepover_mm", "path_length_mm",
			"volume_removed_cm3", "simulation_time_min",
		}
	case Telemetry:
		return []string{
			"job_id", "started_at", "tool_id",
			"spindle_current_a", "torque_mean_nm", "duration_s", "energy_kwh",
		}
	case Quality:
		return []string{"job_id", "inspected_at", "surface_score", "defect_count"}
	case Cost:
		return []string{"job_id", "invoiced_at", "tool_wear_cost_usd", "labor_hours", "revenue_usd"}
	case Notes:
		return []string{"job_id", "logged_at", "stone_type", "operator_notes"}
	}
	return nil
}

// ToolpathRow is one CAM toolpath export. simulation_time_min is converted
// to seconds at ingest so downstream code only ever sees canonical units.
type ToolpathRow struct {
	JobID            string
	ExportedAt       *time.Time
	Material         *string // Title-cased
	ToolID           *string // planned tool, upper-cased
	FeedRateMMMin    *float64
	StepoverMM       *float64
	PathLengthMM     *float64
	VolumeRemovedCM3 *float64
	SimDurationS     *float64
}

// TelemetryRow is one robot run summary. ToolID is the tool the controller
// actually reported, kept separate from the CAM plan after the merge.
type TelemetryRow struct {
	JobID           string
	StartedAt       *time.Time
	ToolID          *string
	SpindleCurrentA *float64
	TorqueMeanNM    *float64
	DurationS       *float64
	EnergyKWH       *float64
}

// QualityRow is one inspection result. Jobs may be inspected more than once.
type QualityRow struct {
	JobID        string
	InspectedAt  *time.Time
	SurfaceScore *float64
	DefectCount  *int
}

// CostRow is one ERP cost record.
type CostRow struct {
	JobID           string
	InvoicedAt      *time.Time
	ToolWearCostUSD *float64
	LaborHours      *float64
	RevenueUSD      *float64
}

// NoteRow is one operator log entry. Jobs may accumulate several notes.
type NoteRow struct {
	JobID     string
	LoggedAt  *time.Time
	StoneType *string // lower-cased
	Note      *string
}

// Stats counts what a reader saw in one source file.
type Stats struct {
	Rows     int `json:"rows"`     // rows kept
	Jobs     int `json:"jobs"`     // distinct job ids among kept rows
	Rejected int `json:"rejected"` // rows dropped for a missing job id
}

// Tables holds every source loaded for one run, in file order.
type Tables struct {
	Toolpath  []ToolpathRow
	Telemetry []TelemetryRow
	Quality   []QualityRow
	Cost      []CostRow
	Notes     []NoteRow

	Stats map[Source]Stats
}
