package engine

import "sync/atomic"

// Clock is a monotonic logical clock stamping executed updates.
//
// Every update that actually runs gets a strictly increasing seq number,
// making per-container history unambiguous even when wall clocks jump and
// several containers complete within the same millisecond.
//
// Thread-safety: safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0; the first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
// Calls are linearizable - each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
