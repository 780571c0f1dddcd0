package testfixtures

import (
	"sync"
	"time"
)

// Clock is a manually driven time source for services under test.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// NewClock returns a clock set to start, or to ReferenceTime when start is
// the zero value.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

// Now returns the time the clock is set to.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NowFunc returns Now as an injectable function. A nil clock falls back to
// the wall clock.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	return c.current
}

// AdvanceDays moves the clock forward by whole calendar days.
func (c *Clock) AdvanceDays(days int) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.AddDate(0, 0, days)
	return c.current
}
