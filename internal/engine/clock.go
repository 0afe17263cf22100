package engine

import "sync/atomic"

// Clock hands out journal seqs 1, 2, 3, ... Frame IDs hash the seq of their
// dispatch entry, so the same calls processed in the same order give the
// same journal. Wall time never orders anything.
type Clock struct {
	last atomic.Int64
}

// NewClock returns a clock whose first seq is 1.
func NewClock() *Clock {
	return NewClockAt(0)
}

// NewClockAt returns a clock whose first seq is last+1, for appending to a
// journal that already holds entries up to last.
func NewClockAt(last int64) *Clock {
	c := new(Clock)
	c.last.Store(last)
	return c
}

// Next advances the clock and returns the new seq.
func (c *Clock) Next() int64 {
	return c.last.Add(1)
}

// Last returns the most recently issued seq, or the starting point if none
// was issued yet.
func (c *Clock) Last() int64 {
	return c.last.Load()
}
