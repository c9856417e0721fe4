package audit

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Outlier is one flagged value: how far it sits from the field mean, in
// signed population standard deviations.
type Outlier struct {
	JobID     string  `json:"job_id"`
	Field     string  `json:"field"`
	Value     float64 `json:"value"`
	Deviation float64 `json:"deviation"`
}

// CriticalField is the null tally for one critical column.
type CriticalField struct {
	Field     string `json:"field"`
	NullCount int    `json:"null_count"`
}

// Drift is the two-way set difference between the expected tool catalog
// and the tools telemetry actually reported. Both lists are sorted.
type Drift struct {
	UnseenExpected     []string `json:"unseen_expected"`
	ObservedUnexpected []string `json:"observed_unexpected"`
}

// Report is the data_quality_report.json payload. Read-only after
// creation; a re-run writes a new report rather than editing this one.
type Report struct {
	GeneratedAt   time.Time          `json:"generated_at"`
	RecordCount   int                `json:"record_count"`
	Completeness  map[string]float64 `json:"completeness"`
	CriticalNulls []CriticalField    `json:"critical_nulls"`
	Outliers      []Outlier          `json:"outliers"`
	ToolDrift     Drift              `json:"tool_drift"`
}

// Check is one pass/fail line of the audit summary.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// Checks evaluates the report against the completeness floor: every source
// at or above the floor, zero critical nulls, zero outliers, empty drift.
func (r *Report) Checks(minRatio float64) []Check {
	checks := make([]Check, 0, 4)

	var below []string
	for _, s := range sortedKeys(r.Completeness) {
		if r.Completeness[s] < minRatio {
			below = append(below, fmt.Sprintf("%s %.2f", s, r.Completeness[s]))
		}
	}
	complete := Check{Name: "source completeness", Passed: len(below) == 0}
	if complete.Passed {
		complete.Detail = fmt.Sprintf("all sources >= %.2f", minRatio)
	} else {
		complete.Detail = fmt.Sprintf("below %.2f: %s", minRatio, strings.Join(below, ", "))
	}
	checks = append(checks, complete)

	totalNulls := 0
	var perField []string
	for _, cf := range r.CriticalNulls {
		totalNulls += cf.NullCount
		if cf.NullCount > 0 {
			perField = append(perField, fmt.Sprintf("%s: %d", cf.Field, cf.NullCount))
		}
	}
	critical := Check{Name: "critical fields", Passed: totalNulls == 0}
	if critical.Passed {
		critical.Detail = "no null values"
	} else {
		critical.Detail = strings.Join(perField, ", ")
	}
	checks = append(checks, critical)

	outliers := Check{Name: "outliers", Passed: len(r.Outliers) == 0}
	if outliers.Passed {
		outliers.Detail = "none"
	} else {
		outliers.Detail = fmt.Sprintf("%d value(s) flagged", len(r.Outliers))
	}
	checks = append(checks, outliers)

	drift := Check{
		Name:   "tool catalog",
		Passed: len(r.ToolDrift.UnseenExpected) == 0 && len(r.ToolDrift.ObservedUnexpected) == 0,
	}
	if drift.Passed {
		drift.Detail = "matches observed tools"
	} else {
		var parts []string
		if len(r.ToolDrift.UnseenExpected) > 0 {
			parts = append(parts, "never observed: "+strings.Join(r.ToolDrift.UnseenExpected, ", "))
		}
		if len(r.ToolDrift.ObservedUnexpected) > 0 {
			parts = append(parts, "not in catalog: "+strings.Join(r.ToolDrift.ObservedUnexpected, ", "))
		}
		drift.Detail = strings.Join(parts, "; ")
	}
	checks = append(checks, drift)

	return checks
}

// Passed reports whether every check holds.
func (r *Report) Passed(minRatio float64) bool {
	for _, c := range r.Checks(minRatio) {
		if !c.Passed {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
