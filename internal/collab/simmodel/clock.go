// Package simmodel provides minimal, deterministic in-memory implementations
// of the internal/collab interfaces: enough flash-geometry and scheduling
// bookkeeping to exercise internal/amu end-to-end, without reimplementing a
// full NAND timing model (explicitly out of scope per spec.md §1).
package simmodel

import "sync/atomic"

// Clock is a monotone logical clock: each call to Now advances it by one
// tick. The simulator never consults wall time, which keeps a replay of the
// same trace bit-for-bit reproducible.
type Clock struct {
	t atomic.Uint64
}

// NewClock returns a Clock starting at tick 0.
func NewClock() *Clock { return &Clock{} }

// Now advances the clock by one tick and returns the new tick, so the first
// call returns 1.
func (c *Clock) Now() uint64 { return c.t.Add(1) }
