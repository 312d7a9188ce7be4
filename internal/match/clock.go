package match

import "sync/atomic"

// Clock is the monotonic logical clock that orders journal steps. Every
// applied batch is stamped with a strictly increasing seq number, so
// ordering never depends on wall time and replay reproduces it exactly.
//
// Safe for concurrent use, though the match's single-writer design means
// one goroutine calls Next in practice.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming from a known position. Used by
// replay to continue a journal.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and advances the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the clock's position without advancing it.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
