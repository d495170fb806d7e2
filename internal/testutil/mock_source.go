package testutil

import (
	"context"
	"sync"
	"time"
)

// MockStep defines the behavior of a MockSource for one index.
type MockStep struct {
	Value any
	Err   error
	Delay time.Duration
}

// MockSource is a configurable producer for engine tests.
// Indexes without a configured step return Fallback.
type MockSource struct {
	mu       sync.Mutex
	steps    map[int]MockStep
	Fallback MockStep

	// Tracking
	CallCount int
	Indexes   []int
	Data      []any
	Contexts  []context.Context
}

// NewMockSource creates an empty mock source.
func NewMockSource() *MockSource {
	return &MockSource{steps: make(map[int]MockStep)}
}

// NewValuesSource creates a mock source returning values in order and
// end once they run out.
func NewValuesSource(end any, values ...any) *MockSource {
	m := NewMockSource()
	for i, v := range values {
		m.SetStep(i, MockStep{Value: v})
	}
	m.Fallback = MockStep{Value: end}
	return m
}

// SetStep configures the behavior for index.
func (m *MockSource) SetStep(index int, step MockStep) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps[index] = step
}

// Produce has the shape of a spex source or destination function.
func (m *MockSource) Produce(ctx context.Context, index int, data any, _ time.Duration) (any, error) {
	m.mu.Lock()
	m.CallCount++
	m.Indexes = append(m.Indexes, index)
	m.Data = append(m.Data, data)
	m.Contexts = append(m.Contexts, ctx)
	step, ok := m.steps[index]
	if !ok {
		step = m.Fallback
	}
	m.mu.Unlock()

	if step.Delay > 0 {
		time.Sleep(step.Delay)
	}
	return step.Value, step.Err
}

// GetCallCount returns the number of calls made so far.
func (m *MockSource) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// Reset clears all tracking state.
func (m *MockSource) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount = 0
	m.Indexes = nil
	m.Data = nil
	m.Contexts = nil
}
