// Package testutil provides deterministic stand-ins for the pipeline's
// injection points (wall clock, run ids) and canned CSV fixtures, so
// end-to-end tests produce byte-identical artifacts run after run.
package testutil

import (
	"sync"
	"time"
)

// StepClock hands out wall-clock times that advance by a fixed step on
// every call.
//
// The pipeline stamps run rows, quality reports, and summaries from an
// injected now func. Substituting a StepClock pins every timestamp, so
// two runs over the same fixture write identical JSON.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type StepClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	calls int
}

// NewStepClock creates a clock whose first Now call returns start (in
// UTC) and whose every later call advances by step.
func NewStepClock(start time.Time, step time.Duration) *StepClock {
	return &StepClock{start: start.UTC(), step: step}
}

// Now returns the next timestamp in the sequence.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.start.Add(time.Duration(c.calls) * c.step)
	c.calls++
	return t
}

// Calls reports how many times Now has been invoked.
func (c *StepClock) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Reset rewinds the clock to its start time.
//
// Used for test reuse. After Reset, the next Now call returns start again.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = 0
}
