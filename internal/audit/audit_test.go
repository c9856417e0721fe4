package audit

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry/internal/merge"
	"github.com/quarrylabs/quarry/internal/policy"
)

func f64(v float64) *float64 { return &v }
func str(v string) *string   { return &v }

var reportTime = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

// defaultAuditor loads the embedded policy: five TOOL-* catalog entries,
// critical fields duration_s/surface_score/revenue_usd, one 3.0-sigma
// monitor on duration_s, completeness floor 0.95.
func defaultAuditor(t *testing.T) *Auditor {
	t.Helper()
	p, err := policy.Load("")
	require.NoError(t, err)
	a, err := New(p)
	require.NoError(t, err)
	return a
}

func monitorAuditor(t *testing.T, field string, maxSigma float64) *Auditor {
	t.Helper()
	p := &policy.Policy{}
	p.Catalog.Tools = []string{"TOOL-FINISH-6MM"}
	p.Critical.Fields = []string{"duration_s"}
	p.Outliers.Monitors = []policy.Monitor{{Field: field, MaxSigma: maxSigma}}
	p.Completeness.MinRatio = 0.95
	a, err := New(p)
	require.NoError(t, err)
	return a
}

// reportRecords covers the completeness and null-count paths: one complete
// job, one without cost, one without quality or notes, one toolpath-only.
func reportRecords() []merge.Record {
	return []merge.Record{
		{
			JobID:          "J-1001",
			ObservedToolID: str("TOOL-FINISH-6MM"),
			DurationS:      f64(1800),
			SurfaceScore:   f64(85.5),
			RevenueUSD:     f64(28000),
			Provenance:     merge.Provenance{Toolpath: true, Telemetry: true, Quality: true, Cost: true, Notes: true},
		},
		{
			JobID:          "J-1002",
			ObservedToolID: str("TOOL-ROUGH-20MM"),
			DurationS:      f64(2400),
			SurfaceScore:   f64(90),
			Provenance:     merge.Provenance{Toolpath: true, Telemetry: true, Quality: true, Notes: true},
		},
		{
			JobID:          "J-1003",
			ObservedToolID: str("TOOL-UNKNOWN-9MM"),
			DurationS:      f64(600),
			RevenueUSD:     f64(12000),
			Provenance:     merge.Provenance{Toolpath: true, Telemetry: true, Cost: true},
		},
		{
			JobID:      "J-1004",
			Provenance: merge.Provenance{Toolpath: true},
		},
	}
}

func TestCompletenessRatios(t *testing.T) {
	report := defaultAuditor(t).Run(reportRecords(), reportTime)

	assert.Equal(t, map[string]float64{
		"toolpath":  1.0,
		"telemetry": 0.75,
		"quality":   0.5,
		"cost":      0.5,
		"notes":     0.5,
	}, report.Completeness)
}

func TestCompletenessEmptyInput(t *testing.T) {
	report := defaultAuditor(t).Run(nil, reportTime)

	assert.Equal(t, 0, report.RecordCount)
	for s, ratio := range report.Completeness {
		assert.Zerof(t, ratio, "source %s", s)
	}
}

func TestCriticalNullCounts(t *testing.T) {
	report := defaultAuditor(t).Run(reportRecords(), reportTime)

	assert.Equal(t, []CriticalField{
		{Field: "duration_s", NullCount: 1},
		{Field: "surface_score", NullCount: 2},
		{Field: "revenue_usd", NullCount: 2},
	}, report.CriticalNulls)
}

func TestOutlierSignedDeviation(t *testing.T) {
	// Two samples sit exactly one sigma either side of their mean, so a
	// 0.5-sigma monitor flags both with deviations -1 and +1.
	a := monitorAuditor(t, "duration_s", 0.5)
	records := []merge.Record{
		{JobID: "J-LOW", DurationS: f64(2)},
		{JobID: "J-HIGH", DurationS: f64(6)},
	}

	report := a.Run(records, reportTime)
	require.Len(t, report.Outliers, 2)
	assert.Equal(t, Outlier{JobID: "J-LOW", Field: "duration_s", Value: 2, Deviation: -1}, report.Outliers[0])
	assert.Equal(t, Outlier{JobID: "J-HIGH", Field: "duration_s", Value: 6, Deviation: 1}, report.Outliers[1])
}

func TestOutlierBoundaryNotFlagged(t *testing.T) {
	// Same samples, 1.0-sigma monitor: both deviations equal the boundary
	// exactly and the comparison is strict, so nothing is flagged.
	a := monitorAuditor(t, "duration_s", 1.0)
	records := []merge.Record{
		{JobID: "J-LOW", DurationS: f64(2)},
		{JobID: "J-HIGH", DurationS: f64(6)},
	}

	report := a.Run(records, reportTime)
	assert.Empty(t, report.Outliers)
}

func TestOutlierZeroVariance(t *testing.T) {
	a := monitorAuditor(t, "duration_s", 0.0000001)
	records := []merge.Record{
		{JobID: "J-1", DurationS: f64(1800)},
		{JobID: "J-2", DurationS: f64(1800)},
		{JobID: "J-3", DurationS: f64(1800)},
	}

	report := a.Run(records, reportTime)
	assert.Empty(t, report.Outliers)
}

func TestOutlierNeedsTwoSamples(t *testing.T) {
	a := monitorAuditor(t, "duration_s", 0.5)
	records := []merge.Record{
		{JobID: "J-1", DurationS: f64(1800)},
		{JobID: "J-2"}, // null duration does not count as a sample
	}

	report := a.Run(records, reportTime)
	assert.Empty(t, report.Outliers)
}

func TestOutlierSkipsNullValues(t *testing.T) {
	// The null row must not drag the mean toward zero.
	a := monitorAuditor(t, "duration_s", 0.5)
	records := []merge.Record{
		{JobID: "J-1", DurationS: f64(2)},
		{JobID: "J-2", DurationS: f64(6)},
		{JobID: "J-3"},
	}

	report := a.Run(records, reportTime)
	require.Len(t, report.Outliers, 2)
	assert.InDelta(t, -1.0, report.Outliers[0].Deviation, 1e-12)
	assert.InDelta(t, 1.0, report.Outliers[1].Deviation, 1e-12)
}

func TestDriftBothDirections(t *testing.T) {
	p := &policy.Policy{}
	p.Catalog.Tools = []string{"T1", "T2"}
	p.Critical.Fields = []string{"duration_s"}
	p.Completeness.MinRatio = 0.95
	a, err := New(p)
	require.NoError(t, err)

	records := []merge.Record{
		{JobID: "J-1", ObservedToolID: str("T2")},
		{JobID: "J-2", ObservedToolID: str("T3")},
		{JobID: "J-3", ObservedToolID: str("T2")},
		{JobID: "J-4"},
	}

	report := a.Run(records, reportTime)
	assert.Equal(t, []string{"T1"}, report.ToolDrift.UnseenExpected)
	assert.Equal(t, []string{"T3"}, report.ToolDrift.ObservedUnexpected)
}

func TestDriftEmptyWhenAligned(t *testing.T) {
	p := &policy.Policy{}
	p.Catalog.Tools = []string{"T1"}
	p.Critical.Fields = []string{"duration_s"}
	a, err := New(p)
	require.NoError(t, err)

	report := a.Run([]merge.Record{{JobID: "J-1", ObservedToolID: str("T1")}}, reportTime)
	assert.Empty(t, report.ToolDrift.UnseenExpected)
	assert.Empty(t, report.ToolDrift.ObservedUnexpected)
}

func TestNewRejectsUnknownFields(t *testing.T) {
	p := &policy.Policy{}
	p.Catalog.Tools = []string{"T1"}
	p.Critical.Fields = []string{"durations"}

	_, err := New(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown critical field "durations"`)

	p.Critical.Fields = []string{"duration_s"}
	p.Outliers.Monitors = []policy.Monitor{{Field: "torque", MaxSigma: 3}}
	_, err = New(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown monitor field "torque"`)
}

func TestRunDeterminism(t *testing.T) {
	a := defaultAuditor(t)
	first := a.Run(reportRecords(), reportTime)
	second := a.Run(reportRecords(), reportTime)
	assert.Equal(t, first, second)
}

func TestReportGolden(t *testing.T) {
	report := defaultAuditor(t).Run(reportRecords(), reportTime)

	data, err := json.MarshalIndent(report, "", "  ")
	require.NoError(t, err)
	data = append(data, '\n')

	g := goldie.New(t)
	g.Assert(t, "quality_report", data)
}

func TestChecks(t *testing.T) {
	report := defaultAuditor(t).Run(reportRecords(), reportTime)

	checks := report.Checks(0.95)
	require.Len(t, checks, 4)

	byName := make(map[string]Check, len(checks))
	for _, c := range checks {
		byName[c.Name] = c
	}
	assert.False(t, byName["source completeness"].Passed)
	assert.Contains(t, byName["source completeness"].Detail, "cost 0.50")
	assert.False(t, byName["critical fields"].Passed)
	assert.Contains(t, byName["critical fields"].Detail, "surface_score: 2")
	assert.True(t, byName["outliers"].Passed)
	assert.False(t, byName["tool catalog"].Passed)
	assert.Contains(t, byName["tool catalog"].Detail, "TOOL-UNKNOWN-9MM")

	assert.False(t, report.Passed(0.95))
}

func TestChecksAllPassing(t *testing.T) {
	a := defaultAuditor(t)
	records := []merge.Record{
		{
			JobID:          "J-1",
			ObservedToolID: str("TOOL-ROUGH-20MM"),
			DurationS:      f64(1800),
			SurfaceScore:   f64(88),
			RevenueUSD:     f64(20000),
			Provenance:     merge.Provenance{Toolpath: true, Telemetry: true, Quality: true, Cost: true, Notes: true},
		},
		{
			JobID:          "J-2",
			ObservedToolID: str("TOOL-ROUGH-16MM"),
			DurationS:      f64(2000),
			SurfaceScore:   f64(91),
			RevenueUSD:     f64(24000),
			Provenance:     merge.Provenance{Toolpath: true, Telemetry: true, Quality: true, Cost: true, Notes: true},
		},
		{
			JobID:          "J-3",
			ObservedToolID: str("TOOL-FINISH-6MM"),
			DurationS:      f64(2200),
			SurfaceScore:   f64(86),
			RevenueUSD:     f64(18000),
			Provenance:     merge.Provenance{Toolpath: true, Telemetry: true, Quality: true, Cost: true, Notes: true},
		},
		{
			JobID:          "J-4",
			ObservedToolID: str("TOOL-DETAIL-3MM"),
			DurationS:      f64(1500),
			SurfaceScore:   f64(93),
			RevenueUSD:     f64(26000),
			Provenance:     merge.Provenance{Toolpath: true, Telemetry: true, Quality: true, Cost: true, Notes: true},
		},
		{
			JobID:          "J-5",
			ObservedToolID: str("TOOL-POLISH-8MM"),
			DurationS:      f64(1700),
			SurfaceScore:   f64(89),
			RevenueUSD:     f64(22000),
			Provenance:     merge.Provenance{Toolpath: true, Telemetry: true, Quality: true, Cost: true, Notes: true},
		},
	}

	report := a.Run(records, reportTime)
	assert.True(t, report.Passed(0.95))
	for _, c := range report.Checks(0.95) {
		assert.Truef(t, c.Passed, "check %s: %s", c.Name, c.Detail)
	}
}

func TestWriteSummary(t *testing.T) {
	report := defaultAuditor(t).Run(reportRecords(), reportTime)

	var buf bytes.Buffer
	WriteSummary(&buf, report, 0.95)

	out := buf.String()
	assert.Contains(t, out, "quality audit: 4 records")
	assert.Contains(t, out, "source completeness")
	assert.Contains(t, out, "tool catalog")
	assert.Contains(t, out, "✗")
	assert.Contains(t, out, "✓")
}
