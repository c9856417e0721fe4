// Package audit computes the quality report over the integrated table:
// per-source completeness, critical-field null counts, statistical outlier
// flags, and tool-catalog drift. Every analysis is a pure read; the report
// is deterministic for identical input and policy, except generated_at,
// which the caller injects.
package audit

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/quarrylabs/quarry/internal/merge"
	"github.com/quarrylabs/quarry/internal/policy"
	"github.com/quarrylabs/quarry/internal/source"
)

// Auditor runs the four quality analyses against a fixed policy.
type Auditor struct {
	policy *policy.Policy
}

// New builds an Auditor, checking that every field the policy names is an
// actual numeric column of the integrated table.
func New(p *policy.Policy) (*Auditor, error) {
	for _, f := range p.Critical.Fields {
		if _, ok := numericFields[f]; !ok {
			return nil, fmt.Errorf("audit: unknown critical field %q (known fields: %s)", f, strings.Join(FieldNames(), ", "))
		}
	}
	for _, m := range p.Outliers.Monitors {
		if _, ok := numericFields[m.Field]; !ok {
			return nil, fmt.Errorf("audit: unknown monitor field %q (known fields: %s)", m.Field, strings.Join(FieldNames(), ", "))
		}
	}
	return &Auditor{policy: p}, nil
}

// Run produces the quality report for one record set. generatedAt comes
// from the run state so the report never reads the wall clock itself.
func (a *Auditor) Run(records []merge.Record, generatedAt time.Time) *Report {
	return &Report{
		GeneratedAt:   generatedAt.UTC(),
		RecordCount:   len(records),
		Completeness:  completeness(records),
		CriticalNulls: a.criticalNulls(records),
		Outliers:      a.outliers(records),
		ToolDrift:     a.drift(records),
	}
}

// MinRatio exposes the policy's completeness floor for summary rendering.
func (a *Auditor) MinRatio() float64 {
	return a.policy.Completeness.MinRatio
}

func completeness(records []merge.Record) map[string]float64 {
	ratios := make(map[string]float64, len(source.All()))
	for _, s := range source.All() {
		present := 0
		for i := range records {
			if records[i].Provenance.Has(s) {
				present++
			}
		}
		ratio := 0.0
		if len(records) > 0 {
			ratio = float64(present) / float64(len(records))
		}
		ratios[string(s)] = ratio
	}
	return ratios
}

func (a *Auditor) criticalNulls(records []merge.Record) []CriticalField {
	counts := make([]CriticalField, 0, len(a.policy.Critical.Fields))
	for _, field := range a.policy.Critical.Fields {
		value := numericFields[field]
		nulls := 0
		for i := range records {
			if value(&records[i]) == nil {
				nulls++
			}
		}
		counts = append(counts, CriticalField{Field: field, NullCount: nulls})
	}
	return counts
}

// outliers flags values deviating from the monitored field's mean by
// strictly more than max_sigma population standard deviations. Exactly at
// the boundary is not flagged. Fields with fewer than two non-null values
// or zero variance yield nothing.
func (a *Auditor) outliers(records []merge.Record) []Outlier {
	flagged := []Outlier{}
	for _, m := range a.policy.Outliers.Monitors {
		value := numericFields[m.Field]

		type sample struct {
			jobID string
			v     float64
		}
		samples := make([]sample, 0, len(records))
		for i := range records {
			if v := value(&records[i]); v != nil {
				samples = append(samples, sample{records[i].JobID, *v})
			}
		}
		if len(samples) < 2 {
			continue
		}

		var sum float64
		for _, s := range samples {
			sum += s.v
		}
		mean := sum / float64(len(samples))

		var ss float64
		for _, s := range samples {
			d := s.v - mean
			ss += d * d
		}
		sigma := math.Sqrt(ss / float64(len(samples)))
		if sigma == 0 {
			continue
		}

		for _, s := range samples {
			if math.Abs(s.v-mean) > m.MaxSigma*sigma {
				flagged = append(flagged, Outlier{
					JobID:     s.jobID,
					Field:     m.Field,
					Value:     s.v,
					Deviation: (s.v - mean) / sigma,
				})
			}
		}
	}
	return flagged
}

func (a *Auditor) drift(records []merge.Record) Drift {
	observed := make(map[string]bool)
	for i := range records {
		if tool := records[i].ObservedToolID; tool != nil {
			observed[*tool] = true
		}
	}
	expected := a.policy.ExpectedTools()

	d := Drift{
		UnseenExpected:     []string{},
		ObservedUnexpected: []string{},
	}
	for tool := range expected {
		if !observed[tool] {
			d.UnseenExpected = append(d.UnseenExpected, tool)
		}
	}
	for tool := range observed {
		if !expected[tool] {
			d.ObservedUnexpected = append(d.ObservedUnexpected, tool)
		}
	}
	sort.Strings(d.UnseenExpected)
	sort.Strings(d.ObservedUnexpected)
	return d
}
