package helpers

import (
	"sync"
	"time"
)

// ManualClock is a clock that only moves when told to
type ManualClock struct {
	now time.Time
	mu  sync.Mutex
}

// Epoch is the default start time of a ManualClock
var Epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// NewManualClock creates a clock stopped at start
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the clock's current time
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// AdvanceMillis moves the clock forward by ms milliseconds
func (c *ManualClock) AdvanceMillis(ms int64) time.Time {
	return c.Advance(time.Duration(ms) * time.Millisecond)
}

// Set moves the clock to at, which may be in the past
func (c *ManualClock) Set(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = at
}
