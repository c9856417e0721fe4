package warehouse

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/quarrylabs/quarry/internal/feature"
	"github.com/quarrylabs/quarry/internal/merge"
)

// The integrated table is the typed superset of every source's columns in
// canonical units, plus provenance flags, the backfill audit trail, and the
// 1:many reduction counters. Column order here is the single authority for
// DDL, inserts, and scans.
var integratedColumns = []string{
	"job_id",
	"exported_at",
	"material",
	"tool_id",
	"feed_rate_mm_min",
	"stepover_mm",
	"path_length_mm",
	"volume_removed_cm3",
	"sim_duration_s",
	"started_at",
	"observed_tool_id",
	"spindle_current_a",
	"torque_mean_nm",
	"duration_s",
	"energy_kwh",
	"inspected_at",
	"surface_score",
	"defect_count",
	"inspection_count",
	"invoiced_at",
	"tool_wear_cost_usd",
	"labor_hours",
	"revenue_usd",
	"logged_at",
	"stone_type",
	"operator_notes",
	"note_count",
	"has_toolpath",
	"has_telemetry",
	"has_quality",
	"has_cost",
	"has_notes",
	"backfilled_fields",
}

// nullableIntegratedColumns returns the integrated columns that may hold
// null, in table order. The key, counters, and provenance columns are
// excluded: the DDL declares them NOT NULL.
func nullableIntegratedColumns() []string {
	notNull := map[string]bool{
		"job_id":            true,
		"inspection_count":  true,
		"note_count":        true,
		"has_toolpath":      true,
		"has_telemetry":     true,
		"has_quality":       true,
		"has_cost":          true,
		"has_notes":         true,
		"backfilled_fields": true,
	}
	cols := make([]string, 0, len(integratedColumns))
	for _, col := range integratedColumns {
		if !notNull[col] {
			cols = append(cols, col)
		}
	}
	return cols
}

const createIntegratedSQL = `CREATE TABLE jobs (
	job_id VARCHAR NOT NULL,
	exported_at TIMESTAMP,
	material VARCHAR,
	tool_id VARCHAR,
	feed_rate_mm_min DOUBLE,
	stepover_mm DOUBLE,
	path_length_mm DOUBLE,
	volume_removed_cm3 DOUBLE,
	sim_duration_s DOUBLE,
	started_at TIMESTAMP,
	observed_tool_id VARCHAR,
	spindle_current_a DOUBLE,
	torque_mean_nm DOUBLE,
	duration_s DOUBLE,
	energy_kwh DOUBLE,
	inspected_at TIMESTAMP,
	surface_score DOUBLE,
	defect_count INTEGER,
	inspection_count INTEGER NOT NULL,
	invoiced_at TIMESTAMP,
	tool_wear_cost_usd DOUBLE,
	labor_hours DOUBLE,
	revenue_usd DOUBLE,
	logged_at TIMESTAMP,
	stone_type VARCHAR,
	operator_notes VARCHAR,
	note_count INTEGER NOT NULL,
	has_toolpath BOOLEAN NOT NULL,
	has_telemetry BOOLEAN NOT NULL,
	has_quality BOOLEAN NOT NULL,
	has_cost BOOLEAN NOT NULL,
	has_notes BOOLEAN NOT NULL,
	backfilled_fields VARCHAR NOT NULL
)`

var featureColumns = []string{
	"job_id",
	"material",
	"stone_type",
	"feed_rate_mm_min",
	"stepover_mm",
	"path_length_mm",
	"volume_removed_cm3",
	"spindle_current_a",
	"duration_s",
	"surface_score",
	"tool_wear_cost_usd",
	"labor_hours",
	"revenue_usd",
	"complexity_per_cm3",
	"complexity_per_cm3_status",
	"load_per_mm",
	"load_per_mm_status",
	"energy_per_cm3",
	"energy_per_cm3_status",
	"tool_efficiency",
	"tool_efficiency_status",
	"profit_margin",
	"profit_margin_status",
	"quality_vs_speed",
	"quality_vs_speed_status",
}

// Each metric lands as a nullable DOUBLE plus a status column, keeping
// defined, undefined, and absent distinguishable after the round trip.
const createFeaturesSQL = `CREATE TABLE features (
	job_id VARCHAR NOT NULL,
	material VARCHAR,
	stone_type VARCHAR,
	feed_rate_mm_min DOUBLE,
	stepover_mm DOUBLE,
	path_length_mm DOUBLE,
	volume_removed_cm3 DOUBLE,
	spindle_current_a DOUBLE,
	duration_s DOUBLE,
	surface_score DOUBLE,
	tool_wear_cost_usd DOUBLE,
	labor_hours DOUBLE,
	revenue_usd DOUBLE,
	complexity_per_cm3 DOUBLE,
	complexity_per_cm3_status VARCHAR NOT NULL,
	load_per_mm DOUBLE,
	load_per_mm_status VARCHAR NOT NULL,
	energy_per_cm3 DOUBLE,
	energy_per_cm3_status VARCHAR NOT NULL,
	tool_efficiency DOUBLE,
	tool_efficiency_status VARCHAR NOT NULL,
	profit_margin DOUBLE,
	profit_margin_status VARCHAR NOT NULL,
	quality_vs_speed DOUBLE,
	quality_vs_speed_status VARCHAR NOT NULL
)`

func insertSQL(table string, columns []string) string {
	marks := make([]string, len(columns))
	for i := range marks {
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(marks, ", "))
}

func selectSQL(columns []string, parquetPath, where string) string {
	q := fmt.Sprintf("SELECT %s FROM read_parquet('%s')",
		strings.Join(columns, ", "), sqlQuote(parquetPath))
	if where != "" {
		q += " WHERE " + where
	}
	return q + " ORDER BY job_id"
}

// sqlQuote escapes a string for use inside a DuckDB string literal. Only
// needed for paths; values go through placeholders.
func sqlQuote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func integratedArgs(r *merge.Record) []any {
	var notes *string
	if len(r.Notes) > 0 {
		texts := make([]string, len(r.Notes))
		for i, n := range r.Notes {
			texts[i] = n.Text
		}
		joined := strings.Join(texts, "\n")
		notes = &joined
	}
	return []any{
		r.JobID,
		r.ExportedAt,
		r.Material,
		r.ToolID,
		r.FeedRateMMMin,
		r.StepoverMM,
		r.PathLengthMM,
		r.VolumeRemovedCM3,
		r.SimDurationS,
		r.StartedAt,
		r.ObservedToolID,
		r.SpindleCurrentA,
		r.TorqueMeanNM,
		r.DurationS,
		r.EnergyKWH,
		r.InspectedAt,
		r.SurfaceScore,
		r.DefectCount,
		r.InspectionCount,
		r.InvoicedAt,
		r.ToolWearCostUSD,
		r.LaborHours,
		r.RevenueUSD,
		r.LoggedAt,
		r.StoneType,
		notes,
		r.NoteCount,
		r.Provenance.Toolpath,
		r.Provenance.Telemetry,
		r.Provenance.Quality,
		r.Provenance.Cost,
		r.Provenance.Notes,
		strings.Join(r.Provenance.Backfilled, ","),
	}
}

func featureArgs(r *feature.Record) []any {
	complexity, complexityStatus := metricColumns(r.ComplexityPerCM3)
	load, loadStatus := metricColumns(r.LoadPerMM)
	energy, energyStatus := metricColumns(r.EnergyPerCM3)
	efficiency, efficiencyStatus := metricColumns(r.ToolEfficiency)
	margin, marginStatus := metricColumns(r.ProfitMargin)
	qvs, qvsStatus := metricColumns(r.QualityVsSpeed)

	return []any{
		r.JobID,
		r.Material,
		r.StoneType,
		r.FeedRateMMMin,
		r.StepoverMM,
		r.PathLengthMM,
		r.VolumeRemovedCM3,
		r.SpindleCurrentA,
		r.DurationS,
		r.SurfaceScore,
		r.ToolWearCostUSD,
		r.LaborHours,
		r.RevenueUSD,
		complexity, complexityStatus,
		load, loadStatus,
		energy, energyStatus,
		efficiency, efficiencyStatus,
		margin, marginStatus,
		qvs, qvsStatus,
	}
}

func metricColumns(m feature.Metric) (*float64, string) {
	if v, ok := m.Value(); ok {
		return &v, string(feature.StateDefined)
	}
	return nil, string(m.State())
}

func scanIntegrated(rows *sql.Rows) (merge.Record, error) {
	var (
		r merge.Record

		exportedAt, startedAt, inspectedAt  sql.NullTime
		invoicedAt, loggedAt                sql.NullTime
		material, toolID, observedToolID    sql.NullString
		stoneType, operatorNotes            sql.NullString
		feedRate, stepover, pathLen, volume sql.NullFloat64
		simDur, spindle, torque, duration   sql.NullFloat64
		energy, surface, wearCost           sql.NullFloat64
		laborHours, revenue                 sql.NullFloat64
		defectCount                         sql.NullInt32
		backfilled                          string
	)

	err := rows.Scan(
		&r.JobID,
		&exportedAt,
		&material,
		&toolID,
		&feedRate,
		&stepover,
		&pathLen,
		&volume,
		&simDur,
		&startedAt,
		&observedToolID,
		&spindle,
		&torque,
		&duration,
		&energy,
		&inspectedAt,
		&surface,
		&defectCount,
		&r.InspectionCount,
		&invoicedAt,
		&wearCost,
		&laborHours,
		&revenue,
		&loggedAt,
		&stoneType,
		&operatorNotes,
		&r.NoteCount,
		&r.Provenance.Toolpath,
		&r.Provenance.Telemetry,
		&r.Provenance.Quality,
		&r.Provenance.Cost,
		&r.Provenance.Notes,
		&backfilled,
	)
	if err != nil {
		return merge.Record{}, fmt.Errorf("scanning integrated row: %w", err)
	}

	r.ExportedAt = timePtr(exportedAt)
	r.Material = strPtr(material)
	r.ToolID = strPtr(toolID)
	r.FeedRateMMMin = floatPtr(feedRate)
	r.StepoverMM = floatPtr(stepover)
	r.PathLengthMM = floatPtr(pathLen)
	r.VolumeRemovedCM3 = floatPtr(volume)
	r.SimDurationS = floatPtr(simDur)
	r.StartedAt = timePtr(startedAt)
	r.ObservedToolID = strPtr(observedToolID)
	r.SpindleCurrentA = floatPtr(spindle)
	r.TorqueMeanNM = floatPtr(torque)
	r.DurationS = floatPtr(duration)
	r.EnergyKWH = floatPtr(energy)
	r.InspectedAt = timePtr(inspectedAt)
	r.SurfaceScore = floatPtr(surface)
	r.DefectCount = intPtr(defectCount)
	r.InvoicedAt = timePtr(invoicedAt)
	r.ToolWearCostUSD = floatPtr(wearCost)
	r.LaborHours = floatPtr(laborHours)
	r.RevenueUSD = floatPtr(revenue)
	r.LoggedAt = timePtr(loggedAt)
	r.StoneType = strPtr(stoneType)
	if backfilled != "" {
		r.Provenance.Backfilled = strings.Split(backfilled, ",")
	}

	// Per-note timestamps are not materialized in the warehouse; only the
	// texts and the most recent logged_at survive the round trip.
	if operatorNotes.Valid && operatorNotes.String != "" {
		for _, text := range strings.Split(operatorNotes.String, "\n") {
			r.Notes = append(r.Notes, merge.Note{Text: text})
		}
	}
	return r, nil
}

func scanFeature(rows *sql.Rows) (feature.Record, error) {
	var (
		r feature.Record

		material, stoneType                 sql.NullString
		feedRate, stepover, pathLen, volume sql.NullFloat64
		spindle, duration, surface          sql.NullFloat64
		wearCost, laborHours, revenue       sql.NullFloat64

		// metric value/status pairs, in catalog order
		values   [6]sql.NullFloat64
		statuses [6]string
	)

	err := rows.Scan(
		&r.JobID,
		&material,
		&stoneType,
		&feedRate,
		&stepover,
		&pathLen,
		&volume,
		&spindle,
		&duration,
		&surface,
		&wearCost,
		&laborHours,
		&revenue,
		&values[0], &statuses[0],
		&values[1], &statuses[1],
		&values[2], &statuses[2],
		&values[3], &statuses[3],
		&values[4], &statuses[4],
		&values[5], &statuses[5],
	)
	if err != nil {
		return feature.Record{}, fmt.Errorf("scanning feature row: %w", err)
	}

	r.Material = strPtr(material)
	r.StoneType = strPtr(stoneType)
	r.FeedRateMMMin = floatPtr(feedRate)
	r.StepoverMM = floatPtr(stepover)
	r.PathLengthMM = floatPtr(pathLen)
	r.VolumeRemovedCM3 = floatPtr(volume)
	r.SpindleCurrentA = floatPtr(spindle)
	r.DurationS = floatPtr(duration)
	r.SurfaceScore = floatPtr(surface)
	r.ToolWearCostUSD = floatPtr(wearCost)
	r.LaborHours = floatPtr(laborHours)
	r.RevenueUSD = floatPtr(revenue)

	targets := []*feature.Metric{
		&r.ComplexityPerCM3,
		&r.LoadPerMM,
		&r.EnergyPerCM3,
		&r.ToolEfficiency,
		&r.ProfitMargin,
		&r.QualityVsSpeed,
	}
	for i, dst := range targets {
		metric, err := feature.FromStored(statuses[i], floatPtr(values[i]))
		if err != nil {
			return feature.Record{}, fmt.Errorf("job %s, metric %s: %w", r.JobID, feature.Names()[i], err)
		}
		*dst = metric
	}
	return r, nil
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func strPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func intPtr(v sql.NullInt32) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int32)
	return &n
}
