package feature

import (
	"math"

	"github.com/quarrylabs/quarry/internal/merge"
)

// Record is one Feature Record: the six derived metrics plus the join keys
// and the base measurements downstream ML consumers train on.
type Record struct {
	JobID     string
	Material  *string
	StoneType *string

	FeedRateMMMin    *float64
	StepoverMM       *float64
	PathLengthMM     *float64
	VolumeRemovedCM3 *float64
	SpindleCurrentA  *float64
	DurationS        *float64
	SurfaceScore     *float64
	ToolWearCostUSD  *float64
	LaborHours       *float64
	RevenueUSD       *float64

	ComplexityPerCM3 Metric
	LoadPerMM        Metric
	EnergyPerCM3     Metric
	ToolEfficiency   Metric
	ProfitMargin     Metric
	QualityVsSpeed   Metric
}

// Metric returns a derived metric by its catalog name.
func (r Record) Metric(name string) Metric {
	switch name {
	case MetricComplexityPerCM3:
		return r.ComplexityPerCM3
	case MetricLoadPerMM:
		return r.LoadPerMM
	case MetricEnergyPerCM3:
		return r.EnergyPerCM3
	case MetricToolEfficiency:
		return r.ToolEfficiency
	case MetricProfitMargin:
		return r.ProfitMargin
	case MetricQualityVsSpeed:
		return r.QualityVsSpeed
	}
	return Metric{}
}

// Derive computes one Feature Record from one Integrated Record. Pure: no
// state crosses jobs, so deriving a slice is just a loop.
func Derive(in merge.Record) Record {
	r := Record{
		JobID:            in.JobID,
		Material:         in.Material,
		StoneType:        in.StoneType,
		FeedRateMMMin:    in.FeedRateMMMin,
		StepoverMM:       in.StepoverMM,
		PathLengthMM:     in.PathLengthMM,
		VolumeRemovedCM3: in.VolumeRemovedCM3,
		SpindleCurrentA:  in.SpindleCurrentA,
		DurationS:        in.DurationS,
		SurfaceScore:     in.SurfaceScore,
		ToolWearCostUSD:  in.ToolWearCostUSD,
		LaborHours:       in.LaborHours,
		RevenueUSD:       in.RevenueUSD,
	}

	r.ComplexityPerCM3 = ratio(in.PathLengthMM, in.VolumeRemovedCM3)
	r.LoadPerMM = ratio(in.SpindleCurrentA, in.PathLengthMM)
	r.EnergyPerCM3 = ratio(in.EnergyKWH, in.VolumeRemovedCM3)
	r.ToolEfficiency = ratio(in.VolumeRemovedCM3, in.ToolWearCostUSD)
	r.ProfitMargin = profitMargin(in.RevenueUSD, in.ToolWearCostUSD)
	r.QualityVsSpeed = qualityVsSpeed(in.SurfaceScore, in.DurationS)
	return r
}

// DeriveAll maps Derive over a record set, preserving order.
func DeriveAll(in []merge.Record) []Record {
	out := make([]Record, len(in))
	for i, rec := range in {
		out[i] = Derive(rec)
	}
	return out
}

// ratio applies the shared degenerate-input policy: a nil or non-positive
// denominator is undefined, a nil numerator is absent. The denominator is
// checked first, so a job with both problems reads as undefined.
func ratio(num, den *float64) Metric {
	if den == nil || *den <= 0 {
		return Undefined()
	}
	if num == nil {
		return Absent()
	}
	return finite(*num / *den)
}

// profitMargin = (revenue - cost) / revenue. Degenerate revenue is
// undefined; a missing cost with valid revenue is absent. Negative margins
// are valid and retained.
func profitMargin(revenue, cost *float64) Metric {
	if revenue == nil || *revenue <= 0 {
		return Undefined()
	}
	if cost == nil {
		return Absent()
	}
	return finite((*revenue - *cost) / *revenue)
}

// qualityVsSpeed = surface_score / (duration_s / 60).
func qualityVsSpeed(surface, durationS *float64) Metric {
	if durationS == nil || *durationS <= 0 {
		return Undefined()
	}
	if surface == nil {
		return Absent()
	}
	return finite(*surface / (*durationS / 60))
}

// finite guards the invariant that a defined metric is always a finite
// number; an overflowed division collapses to undefined rather than Inf.
func finite(v float64) Metric {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Undefined()
	}
	return Defined(v)
}
