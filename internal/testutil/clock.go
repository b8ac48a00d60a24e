package testutil

import (
	"sync"
	"time"
)

// StepClock is a fake wall clock for tests.
//
// Each call to Now returns the current time and then advances it by the
// step, so consecutive unstamped events are spaced evenly. Set moves the
// clock, e.g. to follow an event that carried its own time.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type StepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewStepClock creates a clock reading start, advancing by step per Now.
func NewStepClock(start time.Time, step time.Duration) *StepClock {
	return &StepClock{now: start, step: step}
}

// Now returns the current time and advances the clock by one step.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Peek returns the time the next call to Now will return.
func (c *StepClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock so the next call to Now returns t.
func (c *StepClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Step returns the spacing between consecutive readings.
func (c *StepClock) Step() time.Duration {
	return c.step
}
