package testutil

import (
	"fmt"
	"sync"
)

// RunIDSequence hands out run ids "run-0001", "run-0002", ... in order.
//
// Production runs use time-ordered UUIDv7 ids, so snapshot directories
// sort by creation. Zero-padded sequence numbers keep that property in
// tests while staying readable in failure output.
//
// Thread-safety: Next is safe for concurrent use via internal mutex.
type RunIDSequence struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewRunIDSequence creates a sequence with the given prefix.
//
// If prefix is empty, ids start with "run".
func NewRunIDSequence(prefix string) *RunIDSequence {
	if prefix == "" {
		prefix = "run"
	}
	return &RunIDSequence{prefix: prefix}
}

// Next returns the next id in the sequence.
func (g *RunIDSequence) Next() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n), nil
}
