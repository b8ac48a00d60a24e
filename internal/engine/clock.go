package engine

import "sync/atomic"

// Clock is the engine's logical seq counter.
//
// Seq numbers order events in the log. Wall-clock timestamps never decide
// order; they only feed the timing operators (keep, delay, slope, window).
type Clock struct {
	seq atomic.Int64
}

// NewClock returns a clock whose first Next is 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt returns a clock that continues after last, the highest seq
// already in the event log.
func NewClockAt(last int64) *Clock {
	c := &Clock{}
	c.seq.Store(last)
	return c
}

// Next stamps a new event.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current is the highest seq stamped or observed so far.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// Observe records a seq stamped elsewhere, such as a replayed log entry,
// so later calls to Next never hand it out again. Lower values are ignored.
func (c *Clock) Observe(seq int64) {
	for {
		cur := c.seq.Load()
		if seq <= cur || c.seq.CompareAndSwap(cur, seq) {
			return
		}
	}
}
