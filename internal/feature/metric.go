// Package feature derives the engineered metric catalog from Integrated
// Records. Every derivation is a pure per-job function; degenerate inputs
// produce tagged sentinel values instead of faults.
package feature

import (
	"encoding/json"
	"fmt"
	"math"
)

// State classifies a derived metric value.
type State string

const (
	// StateDefined: the formula produced a finite number.
	StateDefined State = "defined"

	// StateUndefined: the denominator was non-positive or null, so the
	// formula has no answer. Distinct from zero and from a missing input.
	StateUndefined State = "undefined"

	// StateAbsent: a non-denominator input was null; nothing was computed.
	StateAbsent State = "absent"
)

// Metric is a tagged optional value. Its zero value is Absent, so an
// untouched metric reads as "input missing", never as zero.
type Metric struct {
	state State
	value float64
}

// Defined wraps a finite value.
func Defined(v float64) Metric { return Metric{state: StateDefined, value: v} }

// Undefined marks a degenerate-denominator result.
func Undefined() Metric { return Metric{state: StateUndefined} }

// Absent marks a metric whose inputs were missing.
func Absent() Metric { return Metric{state: StateAbsent} }

// State returns the tag. The zero Metric reports StateAbsent.
func (m Metric) State() State {
	if m.state == "" {
		return StateAbsent
	}
	return m.state
}

// Value returns the numeric value and whether the metric is defined.
func (m Metric) Value() (float64, bool) {
	return m.value, m.State() == StateDefined
}

// IsDefined reports whether the metric carries a finite value.
func (m Metric) IsDefined() bool { return m.State() == StateDefined }

// IsUndefined reports whether the formula was degenerate for this job.
func (m Metric) IsUndefined() bool { return m.State() == StateUndefined }

func (m Metric) String() string {
	if v, ok := m.Value(); ok {
		return fmt.Sprintf("%g", v)
	}
	return string(m.State())
}

// MarshalJSON emits {"status": ..., "value": ...} with value present only
// for defined metrics, keeping undefined and absent distinguishable in
// JSON output.
func (m Metric) MarshalJSON() ([]byte, error) {
	if v, ok := m.Value(); ok {
		return json.Marshal(struct {
			Status State   `json:"status"`
			Value  float64 `json:"value"`
		}{StateDefined, v})
	}
	return json.Marshal(struct {
		Status State `json:"status"`
	}{m.State()})
}

// FromStored reconstructs a metric from its warehouse representation: a
// nullable value column and a status column. Defined requires a finite
// value; undefined and absent carry none.
func FromStored(status string, value *float64) (Metric, error) {
	switch State(status) {
	case StateDefined:
		if value == nil {
			return Metric{}, fmt.Errorf("metric stored as defined without a value")
		}
		if math.IsNaN(*value) || math.IsInf(*value, 0) {
			return Metric{}, fmt.Errorf("metric stored with non-finite value %v", *value)
		}
		return Defined(*value), nil
	case StateUndefined:
		return Undefined(), nil
	case StateAbsent:
		return Absent(), nil
	}
	return Metric{}, fmt.Errorf("unknown metric status %q", status)
}

// Metric names, in catalog order. These are the warehouse column names.
const (
	MetricComplexityPerCM3 = "complexity_per_cm3"
	MetricLoadPerMM        = "load_per_mm"
	MetricEnergyPerCM3     = "energy_per_cm3"
	MetricToolEfficiency   = "tool_efficiency"
	MetricProfitMargin     = "profit_margin"
	MetricQualityVsSpeed   = "quality_vs_speed"
)

// Names returns the metric catalog in canonical column order.
func Names() []string {
	return []string{
		MetricComplexityPerCM3,
		MetricLoadPerMM,
		MetricEnergyPerCM3,
		MetricToolEfficiency,
		MetricProfitMargin,
		MetricQualityVsSpeed,
	}
}
