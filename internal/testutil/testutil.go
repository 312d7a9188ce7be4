// Package testutil provides the deterministic substitutes tests use in
// place of production time, identity, and entropy sources.
package testutil

import (
	"fmt"
	"sync"
	"time"
)

// FixedClock always reports the same instant.
type FixedClock struct {
	T time.Time
}

// Now implements the pipeline clock interface.
func (c FixedClock) Now() time.Time { return c.T }

// SomeTime is an arbitrary pinned instant for fixtures.
var SomeTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// SequentialIDs mints "prefix-001", "prefix-002", ... Deterministic and
// collision-free within one instance.
type SequentialIDs struct {
	Prefix string

	mu sync.Mutex
	n  int
}

// NewID implements alias.IDGenerator.
func (g *SequentialIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	prefix := g.Prefix
	if prefix == "" {
		prefix = "id"
	}
	return fmt.Sprintf("%s-%03d", prefix, g.n)
}

// ScriptedEntropy replays a fixed draw sequence, reducing each scripted
// value modulo the requested bound. Repeats the last value when the
// script runs out.
type ScriptedEntropy struct {
	Draws []int64

	mu sync.Mutex
	i  int
}

// Int63n implements mutate.Entropy.
func (e *ScriptedEntropy) Int63n(n int64) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Draws) == 0 {
		return 0
	}
	idx := e.i
	if idx >= len(e.Draws) {
		idx = len(e.Draws) - 1
	}
	e.i++
	return e.Draws[idx] % n
}

// Calls reports how many draws were consumed.
func (e *ScriptedEntropy) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.i
}
