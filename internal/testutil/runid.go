// Package testutil holds deterministic fixtures shared by package tests.
package testutil

import (
	"fmt"
	"sync"
)

// CountingRunIDs generates run IDs "<prefix>-1", "<prefix>-2", ... so a
// test can run any number of passes and still get byte-identical journal
// output.
//
// Unlike engine.FixedGenerator, which panics once its list is consumed,
// CountingRunIDs never runs out. It satisfies engine.RunIDGenerator
// structurally.
//
// Thread-safety: CountingRunIDs is safe for concurrent use via internal mutex.
type CountingRunIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewCountingRunIDs creates a generator. If prefix is empty, "run" is used.
func NewCountingRunIDs(prefix string) *CountingRunIDs {
	if prefix == "" {
		prefix = "run"
	}
	return &CountingRunIDs{prefix: prefix}
}

// Generate returns the next ID.
func (g *CountingRunIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Reset restarts numbering at 1.
func (g *CountingRunIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
