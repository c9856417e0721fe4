package warehouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry/internal/audit"
	"github.com/quarrylabs/quarry/internal/feature"
	"github.com/quarrylabs/quarry/internal/merge"
)

func f64(v float64) *float64 { return &v }
func str(v string) *string   { return &v }
func i32(v int) *int         { return &v }
func ts(v time.Time) *time.Time {
	u := v.UTC()
	return &u
}

func integratedFixture() []merge.Record {
	return []merge.Record{
		{
			JobID:            "J-1001",
			ExportedAt:       ts(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)),
			Material:         str("Granite"),
			ToolID:           str("TOOL-FINISH-6MM"),
			FeedRateMMMin:    f64(1200),
			StepoverMM:       f64(0.5),
			PathLengthMM:     f64(15200),
			VolumeRemovedCM3: f64(480),
			SimDurationS:     f64(1740),
			StartedAt:        ts(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)),
			ObservedToolID:   str("TOOL-FINISH-6MM"),
			SpindleCurrentA:  f64(12.4),
			TorqueMeanNM:     f64(38.2),
			DurationS:        f64(1800),
			EnergyKWH:        f64(4.2),
			InspectedAt:      ts(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
			SurfaceScore:     f64(85.5),
			DefectCount:      i32(1),
			InspectionCount:  2,
			InvoicedAt:       ts(time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)),
			ToolWearCostUSD:  f64(200),
			LaborHours:       f64(6.5),
			RevenueUSD:       f64(1000),
			LoggedAt:         ts(time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)),
			StoneType:        str("granite"),
			Notes: []merge.Note{
				{Text: "rough pass clean"},
				{Text: "minor chatter near edge"},
			},
			NoteCount: 2,
			Provenance: merge.Provenance{
				Toolpath: true, Telemetry: true, Quality: true, Cost: true, Notes: true,
				Backfilled: []string{"defect_count", "duration_s"},
			},
		},
		{
			JobID:      "J-1002",
			Material:   str("Marble"),
			Provenance: merge.Provenance{Toolpath: true},
		},
	}
}

func featureFixture() []feature.Record {
	return []feature.Record{
		{
			JobID:            "J-1001",
			Material:         str("Granite"),
			StoneType:        str("granite"),
			PathLengthMM:     f64(15200),
			VolumeRemovedCM3: f64(480),
			DurationS:        f64(1800),
			SurfaceScore:     f64(85.5),
			ToolWearCostUSD:  f64(200),
			RevenueUSD:       f64(1000),
			ComplexityPerCM3: feature.Defined(15200.0 / 480.0),
			LoadPerMM:        feature.Absent(),
			EnergyPerCM3:     feature.Defined(4.2 / 480.0),
			ToolEfficiency:   feature.Defined(480.0 / 200.0),
			ProfitMargin:     feature.Defined(0.8),
			QualityVsSpeed:   feature.Defined(85.5 / 30.0),
		},
		{
			JobID:            "J-1002",
			Material:         str("Marble"),
			VolumeRemovedCM3: f64(0),
			ComplexityPerCM3: feature.Undefined(),
			LoadPerMM:        feature.Absent(),
			EnergyPerCM3:     feature.Undefined(),
			ToolEfficiency:   feature.Absent(),
			ProfitMargin:     feature.Absent(),
			QualityVsSpeed:   feature.Absent(),
		},
		{
			JobID:          "J-1003",
			Material:       str("Granite"),
			ProfitMargin:   feature.Defined(-0.5),
			QualityVsSpeed: feature.Undefined(),
		},
	}
}

// stageRun writes a full artifact set without publishing it.
func stageRun(t *testing.T, root, runID string) *Writer {
	t.Helper()
	ctx := context.Background()

	w, err := NewWriter(root, runID, nil)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	require.NoError(t, w.WriteIntegrated(ctx, integratedFixture()))
	require.NoError(t, w.WriteFeatures(ctx, featureFixture()))
	require.NoError(t, w.WriteJSON(FileQualityReport, &audit.Report{
		GeneratedAt:  time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
		RecordCount:  2,
		Completeness: map[string]float64{"toolpath": 1},
	}))
	return w
}

func publishRun(t *testing.T, root, runID string) {
	t.Helper()
	w := stageRun(t, root, runID)
	require.NoError(t, w.Publish())
}

func wantTime(t *testing.T, want time.Time, got *time.Time) {
	t.Helper()
	require.NotNil(t, got)
	assert.True(t, got.Equal(want), "want %v, got %v", want, got)
}

func TestIntegratedRoundTrip(t *testing.T) {
	root := t.TempDir()
	publishRun(t, root, "run-a")

	r, err := Open(root)
	require.NoError(t, err)
	defer r.Close()

	records, err := r.IntegratedRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	full := records[0]
	assert.Equal(t, "J-1001", full.JobID)
	wantTime(t, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), full.ExportedAt)
	require.NotNil(t, full.Material)
	assert.Equal(t, "Granite", *full.Material)
	require.NotNil(t, full.DurationS)
	assert.Equal(t, 1800.0, *full.DurationS)
	require.NotNil(t, full.DefectCount)
	assert.Equal(t, 1, *full.DefectCount)
	assert.Equal(t, 2, full.InspectionCount)
	assert.Equal(t, 2, full.NoteCount)
	require.Len(t, full.Notes, 2)
	assert.Equal(t, "rough pass clean", full.Notes[0].Text)
	assert.Equal(t, "minor chatter near edge", full.Notes[1].Text)
	assert.True(t, full.Provenance.Toolpath)
	assert.True(t, full.Provenance.Notes)
	assert.Equal(t, []string{"defect_count", "duration_s"}, full.Provenance.Backfilled)

	sparse := records[1]
	assert.Equal(t, "J-1002", sparse.JobID)
	assert.Nil(t, sparse.DurationS)
	assert.Nil(t, sparse.DefectCount)
	assert.Nil(t, sparse.ExportedAt)
	assert.Empty(t, sparse.Notes)
	assert.Empty(t, sparse.Provenance.Backfilled)
	assert.False(t, sparse.Provenance.Telemetry)
}

func TestFeatureRoundTripPreservesMetricStates(t *testing.T) {
	root := t.TempDir()
	publishRun(t, root, "run-a")

	r, err := Open(root)
	require.NoError(t, err)
	defer r.Close()

	records, err := r.FeatureRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)

	defined := records[0]
	v, ok := defined.ProfitMargin.Value()
	require.True(t, ok)
	assert.Equal(t, 0.8, v)
	v, ok = defined.ComplexityPerCM3.Value()
	require.True(t, ok)
	assert.Equal(t, 15200.0/480.0, v)
	assert.Equal(t, feature.StateAbsent, defined.LoadPerMM.State())

	degenerate := records[1]
	assert.True(t, degenerate.ComplexityPerCM3.IsUndefined())
	assert.True(t, degenerate.EnergyPerCM3.IsUndefined())
	assert.Equal(t, feature.StateAbsent, degenerate.ProfitMargin.State())

	negative := records[2]
	v, ok = negative.ProfitMargin.Value()
	require.True(t, ok)
	assert.Equal(t, -0.5, v)
}

func TestFeatureByJob(t *testing.T) {
	root := t.TempDir()
	publishRun(t, root, "run-a")

	r, err := Open(root)
	require.NoError(t, err)
	defer r.Close()

	rec, err := r.FeatureByJob(context.Background(), "J-1002")
	require.NoError(t, err)
	assert.Equal(t, "J-1002", rec.JobID)
	assert.True(t, rec.ComplexityPerCM3.IsUndefined())

	_, err = r.FeatureByJob(context.Background(), "J-9999")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "J-9999")
}

func TestFeaturesByMaterialCanonicalized(t *testing.T) {
	root := t.TempDir()
	publishRun(t, root, "run-a")

	r, err := Open(root)
	require.NoError(t, err)
	defer r.Close()

	// Stored as "Granite"; the query argument arrives uncanonicalized.
	records, err := r.FeaturesByMaterial(context.Background(), "granite")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "J-1001", records[0].JobID)
	assert.Equal(t, "J-1003", records[1].JobID)

	none, err := r.FeaturesByMaterial(context.Background(), "slate")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOpenWithoutPublishedSnapshot(t *testing.T) {
	_, err := Open(t.TempDir())
	require.ErrorIs(t, err, ErrNoSnapshot)
}

func TestStagedRunInvisibleUntilPublish(t *testing.T) {
	root := t.TempDir()
	publishRun(t, root, "run-a")

	// A second run stages everything but never publishes, as if it was
	// interrupted. Readers must keep seeing run-a's artifacts.
	stageRun(t, root, "run-b")

	r, err := Open(root)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, "run-a", r.RunID())

	current, err := CurrentRunID(root)
	require.NoError(t, err)
	assert.Equal(t, "run-a", current)

	// Both snapshot directories exist; only one is published.
	ids, err := ListSnapshots(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-a", "run-b"}, ids)
}

func TestPublishReplacesCurrent(t *testing.T) {
	root := t.TempDir()
	publishRun(t, root, "run-a")
	publishRun(t, root, "run-b")

	current, err := CurrentRunID(root)
	require.NoError(t, err)
	assert.Equal(t, "run-b", current)

	// An already-open reader stays pinned to the snapshot it resolved.
	r, err := Open(root)
	require.NoError(t, err)
	defer r.Close()
	publishRun(t, root, "run-c")
	assert.Equal(t, "run-b", r.RunID())

	records, err := r.IntegratedRecords(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestRemoveSnapshot(t *testing.T) {
	root := t.TempDir()
	publishRun(t, root, "run-a")
	publishRun(t, root, "run-b")

	err := RemoveSnapshot(root, "run-b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "currently published")

	require.NoError(t, RemoveSnapshot(root, "run-a"))
	ids, err := ListSnapshots(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-b"}, ids)
}

func TestQualityReportRoundTrip(t *testing.T) {
	root := t.TempDir()
	publishRun(t, root, "run-a")

	r, err := Open(root)
	require.NoError(t, err)
	defer r.Close()

	report, err := r.QualityReport()
	require.NoError(t, err)
	assert.Equal(t, 2, report.RecordCount)
	assert.Equal(t, 1.0, report.Completeness["toolpath"])
	assert.True(t, report.GeneratedAt.Equal(time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)))
}

func TestNullFractions(t *testing.T) {
	root := t.TempDir()
	w := stageRun(t, root, "run-a")

	r, err := OpenDir(w.Dir())
	require.NoError(t, err)
	defer r.Close()

	// J-1001 fills every nullable column; J-1002 carries only material.
	fractions, err := r.NullFractions(context.Background())
	require.NoError(t, err)

	assert.Len(t, fractions, 24)
	assert.Equal(t, 0.0, fractions["material"])
	assert.Equal(t, 0.5, fractions["revenue_usd"])
	assert.Equal(t, 0.5, fractions["exported_at"])
	assert.Equal(t, 0.5, fractions["operator_notes"])

	_, reported := fractions["job_id"]
	assert.False(t, reported, "job_id is NOT NULL and has no fraction")
}
