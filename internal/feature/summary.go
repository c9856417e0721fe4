package feature

// Stat aggregates one metric across a run. Min/Mean/Max cover defined
// values only and are nil when nothing was defined.
type Stat struct {
	Defined   int      `json:"defined"`
	Undefined int      `json:"undefined"`
	Absent    int      `json:"absent"`
	Min       *float64 `json:"min,omitempty"`
	Mean      *float64 `json:"mean,omitempty"`
	Max       *float64 `json:"max,omitempty"`
}

// Summary is the feature_summary.json artifact. It carries no timestamp,
// so identical inputs produce byte-identical summaries.
type Summary struct {
	RecordCount int             `json:"record_count"`
	Metrics     map[string]Stat `json:"metrics"`
}

// Summarize aggregates a derived record set. Records must already be in
// canonical (job id) order so the mean accumulates deterministically.
func Summarize(records []Record) Summary {
	s := Summary{
		RecordCount: len(records),
		Metrics:     make(map[string]Stat, len(Names())),
	}
	for _, name := range Names() {
		var stat Stat
		var sum float64
		for _, r := range records {
			m := r.Metric(name)
			switch m.State() {
			case StateDefined:
				v, _ := m.Value()
				if stat.Defined == 0 {
					lo, hi := v, v
					stat.Min, stat.Max = &lo, &hi
				} else {
					if v < *stat.Min {
						*stat.Min = v
					}
					if v > *stat.Max {
						*stat.Max = v
					}
				}
				stat.Defined++
				sum += v
			case StateUndefined:
				stat.Undefined++
			case StateAbsent:
				stat.Absent++
			}
		}
		if stat.Defined > 0 {
			mean := sum / float64(stat.Defined)
			stat.Mean = &mean
		}
		s.Metrics[name] = stat
	}
	return s
}
