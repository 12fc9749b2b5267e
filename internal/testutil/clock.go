package testutil

import (
	"sync"
	"time"
)

// DefaultEpoch is the first instant a DeterministicClock reports.
var DefaultEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock is a stepping wall clock for tests.
//
// Every call to Now advances the clock by one step, so consecutive catalog
// inserts get strictly increasing timestamps regardless of real time.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu   sync.Mutex
	base time.Time
	step time.Duration
	seq  int64
}

// NewDeterministicClock creates a clock starting at DefaultEpoch and
// stepping one second per call.
//
// The first call to Now() returns DefaultEpoch + 1s.
func NewDeterministicClock() *DeterministicClock {
	return NewDeterministicClockAt(DefaultEpoch, time.Second)
}

// NewDeterministicClockAt creates a clock with an explicit base and step.
func NewDeterministicClockAt(base time.Time, step time.Duration) *DeterministicClock {
	return &DeterministicClock{base: base, step: step}
}

// Now advances the clock and returns the new time.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.at(c.seq)
}

// Current returns the last time handed out by Now (the base before any call).
func (c *DeterministicClock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at(c.seq)
}

// Reset rewinds the clock to its base.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}

func (c *DeterministicClock) at(seq int64) time.Time {
	return c.base.Add(time.Duration(seq) * c.step)
}
