package merge

import (
	"sort"
	"time"

	"github.com/quarrylabs/quarry/internal/source"
)

// earlier reports whether a sorts strictly before b. A nil timestamp sorts
// first, so a row without one loses a most-recent reduction to any row that
// has one.
func earlier(a, b *time.Time) bool {
	if a == nil {
		return b != nil
	}
	if b == nil {
		return false
	}
	return a.Before(*b)
}

// winner returns the index of the row that a most-recent-timestamp
// reduction keeps: later timestamps win, equal timestamps fall to the later
// row in file order.
func winner(ts []*time.Time) int {
	best := 0
	for i := 1; i < len(ts); i++ {
		if !earlier(ts[i], ts[best]) {
			best = i
		}
	}
	return best
}

func reduceToolpath(r *Record, rows []source.ToolpathRow) {
	if len(rows) == 0 {
		return
	}
	ts := make([]*time.Time, len(rows))
	for i := range rows {
		ts[i] = rows[i].ExportedAt
	}
	w := rows[winner(ts)]

	r.Provenance.Toolpath = true
	r.ExportedAt = w.ExportedAt
	r.Material = w.Material
	r.ToolID = w.ToolID
	r.FeedRateMMMin = w.FeedRateMMMin
	r.StepoverMM = w.StepoverMM
	r.PathLengthMM = w.PathLengthMM
	r.VolumeRemovedCM3 = w.VolumeRemovedCM3
	r.SimDurationS = w.SimDurationS
}

func reduceTelemetry(r *Record, rows []source.TelemetryRow) {
	if len(rows) == 0 {
		return
	}
	ts := make([]*time.Time, len(rows))
	for i := range rows {
		ts[i] = rows[i].StartedAt
	}
	w := rows[winner(ts)]

	r.Provenance.Telemetry = true
	r.StartedAt = w.StartedAt
	r.ObservedToolID = w.ToolID
	r.SpindleCurrentA = w.SpindleCurrentA
	r.TorqueMeanNM = w.TorqueMeanNM
	r.DurationS = w.DurationS
	r.EnergyKWH = w.EnergyKWH
}

func reduceQuality(r *Record, rows []source.QualityRow) {
	if len(rows) == 0 {
		return
	}
	ts := make([]*time.Time, len(rows))
	for i := range rows {
		ts[i] = rows[i].InspectedAt
	}
	w := rows[winner(ts)]

	r.Provenance.Quality = true
	r.InspectedAt = w.InspectedAt
	r.SurfaceScore = w.SurfaceScore
	r.DefectCount = w.DefectCount
	r.InspectionCount = len(rows)
}

func reduceCost(r *Record, rows []source.CostRow) {
	if len(rows) == 0 {
		return
	}
	ts := make([]*time.Time, len(rows))
	for i := range rows {
		ts[i] = rows[i].InvoicedAt
	}
	w := rows[winner(ts)]

	r.Provenance.Cost = true
	r.InvoicedAt = w.InvoicedAt
	r.ToolWearCostUSD = w.ToolWearCostUSD
	r.LaborHours = w.LaborHours
	r.RevenueUSD = w.RevenueUSD
}

func reduceNotes(r *Record, rows []source.NoteRow) {
	if len(rows) == 0 {
		return
	}
	ts := make([]*time.Time, len(rows))
	for i := range rows {
		ts[i] = rows[i].LoggedAt
	}
	w := rows[winner(ts)]

	r.Provenance.Notes = true
	r.LoggedAt = w.LoggedAt
	r.StoneType = w.StoneType
	r.NoteCount = len(rows)

	// The note texts are a collection: every entry is retained, ordered by
	// log time with file order breaking ties.
	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return earlier(rows[idx[a]].LoggedAt, rows[idx[b]].LoggedAt)
	})
	for _, i := range idx {
		if rows[i].Note == nil {
			continue
		}
		r.Notes = append(r.Notes, Note{LoggedAt: rows[i].LoggedAt, Text: *rows[i].Note})
	}
}
