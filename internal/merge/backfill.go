package merge

import (
	"sort"

	"github.com/quarrylabs/quarry/internal/source"
)

// Rule is one enumerated backfill: a single field, a stated reason, and the
// condition under which a default may stand in for a missing value.
type Rule struct {
	Field  string
	Reason string
	apply  func(r *Record) bool
}

// Rules returns the backfill registry in application order. This registry
// is the complete list: no other code path may substitute a default for a
// missing value, and every substitution lands in the record's provenance.
func Rules() []Rule {
	return []Rule{
		{
			Field:  "duration_s",
			Reason: "CAM simulation estimate stands in for missing telemetry duration",
			apply: func(r *Record) bool {
				if r.DurationS != nil || r.SimDurationS == nil {
					return false
				}
				v := *r.SimDurationS
				r.DurationS = &v
				return true
			},
		},
		{
			Field:  "invoiced_at",
			Reason: "invoice date defaults to job start",
			apply: func(r *Record) bool {
				if !r.Provenance.Cost || r.InvoicedAt != nil || r.StartedAt == nil {
					return false
				}
				v := *r.StartedAt
				r.InvoicedAt = &v
				return true
			},
		},
		{
			Field:  "defect_count",
			Reason: "an inspection that reports no count found no defects",
			apply: func(r *Record) bool {
				if !r.Provenance.Quality || r.DefectCount != nil {
					return false
				}
				zero := 0
				r.DefectCount = &zero
				return true
			},
		},
		{
			Field:  "material",
			Reason: "operator-logged stone type stands in for a missing CAM material",
			apply: func(r *Record) bool {
				if r.Material != nil || r.StoneType == nil {
					return false
				}
				v := source.NormalizeMaterial(*r.StoneType)
				if v == "" {
					return false
				}
				r.Material = &v
				return true
			},
		},
	}
}

func applyBackfills(r *Record, counts map[string]int) {
	for _, rule := range Rules() {
		if rule.apply(r) {
			r.Provenance.Backfilled = append(r.Provenance.Backfilled, rule.Field)
			counts[rule.Field]++
		}
	}
	sort.Strings(r.Provenance.Backfilled)
}
