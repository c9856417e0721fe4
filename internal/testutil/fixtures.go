package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteCSV writes one CSV file from a header line and data rows.
func WriteCSV(t testing.TB, dir, name, header string, rows ...string) {
	t.Helper()
	lines := append([]string{header}, rows...)
	data := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(dir, name), []byte(data), 0o644); err != nil {
		t.Fatalf("write fixture %s: %v", name, err)
	}
}

// WriteSourceDir writes the canonical three-job source fixture into dir.
//
// The fixture covers the interesting paths end to end:
//
//   - J-1001 appears in all five sources with two inspections; the later
//     one (surface 85.5, one defect) wins the reduction. Revenue 1000
//     against 200 tool wear gives a 0.8 profit margin. Nothing is
//     backfilled.
//   - J-1002 has no inspection and no cost record. Its telemetry is
//     missing duration (backfilled from the 40 min CAM simulation) and
//     its toolpath is missing material (backfilled from the operator's
//     "marble").
//   - J-1003 has no toolpath and no notes. Its telemetry reports a zero
//     duration, its inspection has no defect count (backfilled to zero),
//     and its cost row has no invoice date (backfilled from job start).
//     The robot reported an off-catalog tool.
//
// One cost row carries no job id and is rejected at ingest.
func WriteSourceDir(t testing.TB, dir string) {
	t.Helper()

	WriteCSV(t, dir, "powermill_toolpaths.csv",
		"job_id,exported_at,material,tool_id,feed_rate_mm_min,stepover_mm,path_length_mm,volume_removed_cm3,simulation_time_min",
		"J-1001,2024-03-01T08:00:00Z,granite,tool-finish-6mm,1200,0.5,15000,500,30",
		"J-1002,2024-03-03T08:00:00Z,,tool-rough-20mm,2400,1.5,8000,1600,40",
	)
	WriteCSV(t, dir, "kuka_telemetry.csv",
		"job_id,started_at,tool_id,spindle_current_a,torque_mean_nm,duration_s,energy_kwh",
		"J-1001,2024-03-01T09:00:00Z,TOOL-FINISH-6MM,12.5,40,1500,4",
		"J-1002,2024-03-03T09:00:00Z,TOOL-ROUGH-20MM,22,,,6.4",
		"J-1003,2024-03-04T09:00:00Z,tool-custom-9mm,18,55,0,0.1",
	)
	WriteCSV(t, dir, "quality_inspection.csv",
		"job_id,inspected_at,surface_score,defect_count",
		"J-1001,2024-03-01T11:00:00Z,80,2",
		"J-1001,2024-03-01T15:00:00Z,85.5,1",
		"J-1003,2024-03-04T12:00:00Z,72,",
	)
	WriteCSV(t, dir, "erp_costs.csv",
		"job_id,invoiced_at,tool_wear_cost_usd,labor_hours,revenue_usd",
		"J-1001,2024-03-02T00:00:00Z,200,2.5,1000",
		"J-1003,,60,1,400",
		",2024-03-05T00:00:00Z,10,1,50",
	)
	WriteCSV(t, dir, "operator_log.csv",
		"job_id,logged_at,stone_type,operator_notes",
		"J-1001,2024-03-01T09:30:00Z,granite,Standard fabrication run",
		"J-1002,2024-03-03T10:00:00Z,marble,Vein chase on north face",
	)
}
