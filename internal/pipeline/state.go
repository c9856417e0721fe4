package pipeline

import (
	"time"

	"github.com/quarrylabs/quarry/internal/source"
)

// RunState accumulates everything a run learns about itself as it moves
// through the stages. It is threaded explicitly from stage to stage and
// serialized verbatim as etl_summary.json, so nothing about a run's
// shape lives in logs alone.
type RunState struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Sources tallies what each reader saw, keyed by source name.
	Sources map[string]source.Stats `json:"sources"`
	// TotalJobs is the integrated record count after the merge.
	TotalJobs int `json:"total_jobs"`
	// RejectedRows sums the per-source missing-key rejections.
	RejectedRows int `json:"rejected_rows"`
	// Backfills counts applied backfill rules by field name.
	Backfills map[string]int `json:"backfills"`
	// NullFractions maps each nullable integrated column to the
	// fraction of jobs missing it.
	NullFractions map[string]float64 `json:"null_fractions"`

	Stages []StageTiming `json:"stages"`
}

// StageTiming records how long one pipeline stage took.
type StageTiming struct {
	Stage      string `json:"stage"`
	DurationMS int64  `json:"duration_ms"`
}

func newRunState(runID string, startedAt time.Time) *RunState {
	return &RunState{
		RunID:     runID,
		StartedAt: startedAt.UTC(),
	}
}

// recordSources copies the reader tallies into the state and sums the
// rejected rows.
func (s *RunState) recordSources(stats map[source.Source]source.Stats) {
	s.Sources = make(map[string]source.Stats, len(stats))
	s.RejectedRows = 0
	for src, st := range stats {
		s.Sources[string(src)] = st
		s.RejectedRows += st.Rejected
	}
}
