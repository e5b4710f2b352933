package clock

import "time"

// Precision is the resolution every stored timestamp is kept at.
// SQL, redis and JSON all round trip milliseconds exactly.
const Precision = time.Millisecond

// Clock provides time operations that can be mocked for testing
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC at Precision
type SystemClock struct{}

// New creates a new SystemClock
func New() *SystemClock {
	return &SystemClock{}
}

func (c *SystemClock) Now() time.Time {
	return Normalize(time.Now())
}

// Normalize converts t to the form SystemClock returns
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(Precision)
}
