package testutil

import (
	"time"

	"github.com/light-bringer/supplytrace-ledger/internal/pkg/clock"
)

// Epoch is the start time of every test clock.
var Epoch = time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)

// NewFixedClock creates a mock clock fixed at the given time.
func NewFixedClock(t time.Time) clock.Clock {
	return clock.NewMockClock(t)
}

// NewMockClock creates a mock clock that can be controlled in tests.
func NewMockClock() *clock.MockClock {
	return clock.NewMockClock(Epoch)
}

// NewSteppingClock creates a clock that moves one second per reading, so
// every record in a test chain gets its own timestamp.
func NewSteppingClock() *clock.MockClock {
	return clock.NewSteppingClock(Epoch, time.Second)
}
