package mocks

import (
	"sync"
	"time"

	"github.com/mcoot/chessrelay/internal/dependencies/clock"
)

// MockClock is a mock implementation of Clock for testing.
// It is safe for concurrent use.
type MockClock struct {
	mu      sync.Mutex
	current time.Time
}

// Ensure MockClock implements Clock
var _ clock.Clock = (*MockClock)(nil)

// NewMockClock creates a MockClock set to the given time, normalized
// the same way the system clock is
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{current: clock.Normalize(t)}
}

// Now returns the mocked current time
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance moves the clock forward by the given duration
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// Set sets the clock to the given time
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = clock.Normalize(t)
}
