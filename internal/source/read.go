package source

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ReadToolpath loads the CAM toolpath export from dir. Simulation time is
// converted from minutes to seconds here; nothing downstream converts units.
func ReadToolpath(dir string) ([]ToolpathRow, Stats, error) {
	f, err := openCSV(dir, Toolpath)
	if err != nil {
		return nil, Stats{}, err
	}

	rows := make([]ToolpathRow, 0, len(f.records))
	jobs := make(map[string]bool)
	var stats Stats
	for i, rec := range f.records {
		f.row = i + 1
		jobID := f.jobID(rec)
		if jobID == "" {
			stats.Rejected++
			continue
		}
		r := ToolpathRow{
			JobID:            jobID,
			ExportedAt:       f.ts(rec, "exported_at"),
			FeedRateMMMin:    f.f64(rec, "feed_rate_mm_min"),
			StepoverMM:       f.f64(rec, "stepover_mm"),
			PathLengthMM:     f.f64(rec, "path_length_mm"),
			VolumeRemovedCM3: f.f64(rec, "volume_removed_cm3"),
		}
		if m := f.str(rec, "material"); m != nil {
			v := NormalizeMaterial(*m)
			r.Material = &v
		}
		if t := f.str(rec, "tool_id"); t != nil {
			v := NormalizeToolID(*t)
			r.ToolID = &v
		}
		if sim := f.f64(rec, "simulation_time_min"); sim != nil {
			v := *sim * 60
			r.SimDurationS = &v
		}
		if f.err != nil {
			return nil, Stats{}, f.fail()
		}
		rows = append(rows, r)
		jobs[jobID] = true
	}

	stats.Rows = len(rows)
	stats.Jobs = len(jobs)
	return rows, stats, nil
}

// ReadTelemetry loads the robot telemetry export from dir.
func ReadTelemetry(dir string) ([]TelemetryRow, Stats, error) {
	f, err := openCSV(dir, Telemetry)
	if err != nil {
		return nil, Stats{}, err
	}

	rows := make([]TelemetryRow, 0, len(f.records))
	jobs := make(map[string]bool)
	var stats Stats
	for i, rec := range f.records {
		f.row = i + 1
		jobID := f.jobID(rec)
		if jobID == "" {
			stats.Rejected++
			continue
		}
		r := TelemetryRow{
			JobID:           jobID,
			StartedAt:       f.ts(rec, "started_at"),
			SpindleCurrentA: f.f64(rec, "spindle_current_a"),
			TorqueMeanNM:    f.f64(rec, "torque_mean_nm"),
			DurationS:       f.f64(rec, "duration_s"),
			EnergyKWH:       f.f64(rec, "energy_kwh"),
		}
		if t := f.str(rec, "tool_id"); t != nil {
			v := NormalizeToolID(*t)
			r.ToolID = &v
		}
		if f.err != nil {
			return nil, Stats{}, f.fail()
		}
		rows = append(rows, r)
		jobs[jobID] = true
	}

	stats.Rows = len(rows)
	stats.Jobs = len(jobs)
	return rows, stats, nil
}

// ReadQuality loads inspection results from dir. Jobs may appear on
// multiple rows; reduction happens in the merge engine, not here.
func ReadQuality(dir string) ([]QualityRow, Stats, error) {
	f, err := openCSV(dir, Quality)
	if err != nil {
		return nil, Stats{}, err
	}

	rows := make([]QualityRow, 0, len(f.records))
	jobs := make(map[string]bool)
	var stats Stats
	for i, rec := range f.records {
		f.row = i + 1
		jobID := f.jobID(rec)
		if jobID == "" {
			stats.Rejected++
			continue
		}
		r := QualityRow{
			JobID:        jobID,
			InspectedAt:  f.ts(rec, "inspected_at"),
			SurfaceScore: f.f64(rec, "surface_score"),
			DefectCount:  f.i(rec, "defect_count"),
		}
		if f.err != nil {
			return nil, Stats{}, f.fail()
		}
		rows = append(rows, r)
		jobs[jobID] = true
	}

	stats.Rows = len(rows)
	stats.Jobs = len(jobs)
	return rows, stats, nil
}

// ReadCost loads ERP cost records from dir.
func ReadCost(dir string) ([]CostRow, Stats, error) {
	f, err := openCSV(dir, Cost)
	if err != nil {
		return nil, Stats{}, err
	}

	rows := make([]CostRow, 0, len(f.records))
	jobs := make(map[string]bool)
	var stats Stats
	for i, rec := range f.records {
		f.row = i + 1
		jobID := f.jobID(rec)
		if jobID == "" {
			stats.Rejected++
			continue
		}
		r := CostRow{
			JobID:           jobID,
			InvoicedAt:      f.ts(rec, "invoiced_at"),
			ToolWearCostUSD: f.f64(rec, "tool_wear_cost_usd"),
			LaborHours:      f.f64(rec, "labor_hours"),
			RevenueUSD:      f.f64(rec, "revenue_usd"),
		}
		if f.err != nil {
			return nil, Stats{}, f.fail()
		}
		rows = append(rows, r)
		jobs[jobID] = true
	}

	stats.Rows = len(rows)
	stats.Jobs = len(jobs)
	return rows, stats, nil
}

// ReadNotes loads operator log entries from dir.
func ReadNotes(dir string) ([]NoteRow, Stats, error) {
	f, err := openCSV(dir, Notes)
	if err != nil {
		return nil, Stats{}, err
	}

	rows := make([]NoteRow, 0, len(f.records))
	jobs := make(map[string]bool)
	var stats Stats
	for i, rec := range f.records {
		f.row = i + 1
		jobID := f.jobID(rec)
		if jobID == "" {
			stats.Rejected++
			continue
		}
		r := NoteRow{
			JobID:    jobID,
			LoggedAt: f.ts(rec, "logged_at"),
			Note:     f.str(rec, "operator_notes"),
		}
		if st := f.str(rec, "stone_type"); st != nil {
			v := NormalizeStoneType(*st)
			r.StoneType = &v
		}
		if f.err != nil {
			return nil, Stats{}, f.fail()
		}
		rows = append(rows, r)
		jobs[jobID] = true
	}

	stats.Rows = len(rows)
	stats.Jobs = len(jobs)
	return rows, stats, nil
}

// ReadTables loads all five sources concurrently. The first failure cancels
// the rest and is returned unchanged, so callers can match the typed source
// errors with errors.As.
func ReadTables(ctx context.Context, dir string) (*Tables, error) {
	tables := &Tables{Stats: make(map[Source]Stats, 5)}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, stats, err := ReadToolpath(dir)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		tables.Toolpath, tables.Stats[Toolpath] = rows, stats
		return nil
	})
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, stats, err := ReadTelemetry(dir)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		tables.Telemetry, tables.Stats[Telemetry] = rows, stats
		return nil
	})
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, stats, err := ReadQuality(dir)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		tables.Quality, tables.Stats[Quality] = rows, stats
		return nil
	})
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, stats, err := ReadCost(dir)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		tables.Cost, tables.Stats[Cost] = rows, stats
		return nil
	})
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, stats, err := ReadNotes(dir)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		tables.Notes, tables.Stats[Notes] = rows, stats
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tables, nil
}
