package mocks

import (
	"sync"

	"github.com/mcoot/chessrelay/internal/dependencies/random"
)

// MockRandom returns queued values from Intn, then 0 once the queue is
// drained. It is safe for concurrent use.
type MockRandom struct {
	mu      sync.Mutex
	results []int
	calls   int
}

// Ensure MockRandom implements Random
var _ random.Random = (*MockRandom)(nil)

// NewMockRandom creates a new MockRandom
func NewMockRandom() *MockRandom {
	return &MockRandom{}
}

func (r *MockRandom) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if len(r.results) == 0 {
		return 0
	}
	result := r.results[0]
	r.results = r.results[1:]
	if n > 0 {
		result %= n
	}
	return result
}

// QueueIntn adds values to the Intn result queue
func (r *MockRandom) QueueIntn(values ...int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, values...)
}

// Calls reports how many times Intn has been called
func (r *MockRandom) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}
