// Package timeutil abstracts wall-clock operations so loops that pace
// themselves with real sleeps stay testable.
package timeutil

import (
	"sync"
	"time"
)

// Clock is the time source handed to pacing code. Production code uses
// RealClock; tests substitute a MockClock to run hot.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the duration elapsed since t.
	Since(t time.Time) time.Duration

	// Sleep pauses the calling goroutine for d.
	Sleep(d time.Duration)
}

// RealClock delegates to the time package.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }

func (RealClock) Sleep(d time.Duration) { time.Sleep(d) }

// MockClock is a hand-driven Clock for tests. Sleep returns immediately
// and records the requested duration; Advance moves the reported time.
type MockClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

// NewMockClock returns a MockClock reporting t as the current time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Advance moves the clock forward by d.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Sleep records d and returns without blocking.
func (c *MockClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
}

// Sleeps returns a copy of every duration passed to Sleep so far.
func (c *MockClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}
