package merge

import (
	"sort"
	"time"

	"github.com/quarrylabs/quarry/internal/source"
)

// Provenance records which sources contributed to a record and which fields
// were backfilled instead of measured.
type Provenance struct {
	Toolpath  bool
	Telemetry bool
	Quality   bool
	Cost      bool
	Notes     bool

	// Backfilled lists the field names substituted by a backfill rule,
	// sorted. Empty means every non-nil field came from a source row.
	Backfilled []string
}

// Has reports whether the given source contributed to the record.
func (p Provenance) Has(s source.Source) bool {
	switch s {
	case source.Toolpath:
		return p.Toolpath
	case source.Telemetry:
		return p.Telemetry
	case source.Quality:
		return p.Quality
	case source.Cost:
		return p.Cost
	case source.Notes:
		return p.Notes
	}
	return false
}

// Note is one retained operator log entry.
type Note struct {
	LoggedAt *time.Time
	Text     string
}

// Record is the Integrated Record: one row per job, the union of all
// source fields in canonical units. Nil means the value is absent — never
// zero-filled.
type Record struct {
	JobID string

	// toolpath
	ExportedAt       *time.Time
	Material         *string
	ToolID           *string // CAM-planned tool
	FeedRateMMMin    *float64
	StepoverMM       *float64
	PathLengthMM     *float64
	VolumeRemovedCM3 *float64
	SimDurationS     *float64

	// telemetry
	StartedAt       *time.Time
	ObservedToolID  *string // tool the robot reported
	SpindleCurrentA *float64
	TorqueMeanNM    *float64
	DurationS       *float64
	EnergyKWH       *float64

	// quality, reduced to the most recent inspection
	InspectedAt     *time.Time
	SurfaceScore    *float64
	DefectCount     *int
	InspectionCount int

	// cost
	InvoicedAt      *time.Time
	ToolWearCostUSD *float64
	LaborHours      *float64
	RevenueUSD      *float64

	// notes: scalar stone type from the most recent entry, full collection retained
	LoggedAt  *time.Time
	StoneType *string
	Notes     []Note
	NoteCount int

	Provenance Provenance
}

// Result is the output of one merge: records sorted by job id plus the
// per-field backfill tally for the run summary.
type Result struct {
	Records   []Record
	Backfills map[string]int
}

// Merge produces exactly one Record per distinct job id appearing in any
// source table.
func Merge(tables *source.Tables) Result {
	toolpath := groupToolpath(tables.Toolpath)
	telemetry := groupTelemetry(tables.Telemetry)
	quality := groupQuality(tables.Quality)
	cost := groupCost(tables.Cost)
	notes := groupNotes(tables.Notes)

	ids := make(map[string]bool)
	for id := range toolpath {
		ids[id] = true
	}
	for id := range telemetry {
		ids[id] = true
	}
	for id := range quality {
		ids[id] = true
	}
	for id := range cost {
		ids[id] = true
	}
	for id := range notes {
		ids[id] = true
	}

	ordered := make([]string, 0, len(ids))
	for id := range ids {
		ordered = append(ordered, id)
	}
	sort.Strings(ordered)

	result := Result{
		Records:   make([]Record, 0, len(ordered)),
		Backfills: make(map[string]int),
	}
	for _, id := range ordered {
		r := Record{JobID: id}
		reduceToolpath(&r, toolpath[id])
		reduceTelemetry(&r, telemetry[id])
		reduceQuality(&r, quality[id])
		reduceCost(&r, cost[id])
		reduceNotes(&r, notes[id])
		applyBackfills(&r, result.Backfills)
		result.Records = append(result.Records, r)
	}
	return result
}

func groupToolpath(rows []source.ToolpathRow) map[string][]source.ToolpathRow {
	g := make(map[string][]source.ToolpathRow)
	for _, r := range rows {
		g[r.JobID] = append(g[r.JobID], r)
	}
	return g
}

func groupTelemetry(rows []source.TelemetryRow) map[string][]source.TelemetryRow {
	g := make(map[string][]source.TelemetryRow)
	for _, r := range rows {
		g[r.JobID] = append(g[r.JobID], r)
	}
	return g
}

func groupQuality(rows []source.QualityRow) map[string][]source.QualityRow {
	g := make(map[string][]source.QualityRow)
	for _, r := range rows {
		g[r.JobID] = append(g[r.JobID], r)
	}
	return g
}

func groupCost(rows []source.CostRow) map[string][]source.CostRow {
	g := make(map[string][]source.CostRow)
	for _, r := range rows {
		g[r.JobID] = append(g[r.JobID], r)
	}
	return g
}

func groupNotes(rows []source.NoteRow) map[string][]source.NoteRow {
	g := make(map[string][]source.NoteRow)
	for _, r := range rows {
		g[r.JobID] = append(g[r.JobID], r)
	}
	return g
}
