// Package testutil provides shared fixtures for pipeline tests: a frozen,
// manually-advanced clock and fused-state builders.
package testutil

import (
	"sync"
	"time"

	"github.com/Fayeq-qamar/velvet-app-sub002/internal/fusion"
)

// FakeClock is a manually-advanced clock. Safe for concurrent use.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock starts a clock at the given instant.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now implements signal.Clock.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// WorkdayMorning is a deterministic weekday-morning reference instant
// (Tuesday 10:00). Tests that need Monday or evening shift from here.
var WorkdayMorning = time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC)

// State builds a fused state with the given label and pressure, suitable
// defaults elsewhere.
func State(label string, pressure float64, at time.Time) fusion.State {
	return fusion.State{
		PrimaryLabel:     label,
		Confidence:       0.8,
		SocialLoad:       0.5,
		PressureLevel:    pressure,
		ExpectationLevel: 0.5,
		Timestamp:        at,
	}
}

// WorkState builds a work/meeting state with high pressure.
func WorkState(at time.Time) fusion.State {
	return fusion.State{
		PrimaryLabel:     "work",
		Confidence:       0.85,
		SubLabel:         "meeting",
		SocialLoad:       0.9,
		PressureLevel:    0.9,
		ExpectationLevel: 0.9,
		Timestamp:        at,
	}
}

// HomeState builds a low-pressure home state.
func HomeState(at time.Time) fusion.State {
	return fusion.State{
		PrimaryLabel:     "home",
		Confidence:       0.7,
		SocialLoad:       0.2,
		PressureLevel:    0.1,
		ExpectationLevel: 0.2,
		Timestamp:        at,
	}
}
