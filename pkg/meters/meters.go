// Package meters accumulates statistics over the batches of an epoch:
// running loss averages, sequence error rates and wall-clock time.
package meters

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// RunningAverage tracks the mean of the values added since the last Reset.
type RunningAverage struct {
	mu     sync.Mutex
	values []float64
}

// NewRunningAverage creates an empty meter.
func NewRunningAverage() *RunningAverage {
	return &RunningAverage{}
}

// Add records one or more values.
func (m *RunningAverage) Add(values ...float64) {
	m.mu.Lock()
	m.values = append(m.values, values...)
	m.mu.Unlock()
}

// Value returns the mean, or 0 when nothing was added.
func (m *RunningAverage) Value() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.values) == 0 {
		return 0
	}
	return stat.Mean(m.values, nil)
}

// StdDev returns the sample standard deviation, or 0 with fewer than two values.
func (m *RunningAverage) StdDev() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.values) < 2 {
		return 0
	}
	return stat.StdDev(m.values, nil)
}

// Count returns the number of values added.
func (m *RunningAverage) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.values)
}

// Reset forgets every value.
func (m *RunningAverage) Reset() {
	m.mu.Lock()
	m.values = m.values[:0]
	m.mu.Unlock()
}

// Time measures the wall-clock time elapsed since the last Reset, up to the
// last Stop.
type Time struct {
	mu      sync.Mutex
	now     func() time.Time
	start   time.Time
	end     time.Time
	stopped bool
}

// NewTime creates a meter that starts counting immediately.
func NewTime() *Time {
	return newTime(time.Now)
}

func newTime(now func() time.Time) *Time {
	m := &Time{now: now}
	m.Reset()
	return m
}

// Reset restarts the measurement.
func (m *Time) Reset() {
	m.mu.Lock()
	m.start = m.now()
	m.stopped = false
	m.mu.Unlock()
}

// Stop freezes the measured time at the current instant. Further calls move
// the end point forward.
func (m *Time) Stop() {
	m.mu.Lock()
	m.end = m.now()
	m.stopped = true
	m.mu.Unlock()
}

// Elapsed returns the measured duration.
func (m *Time) Elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := m.end
	if !m.stopped {
		end = m.now()
	}
	return end.Sub(m.start)
}

// Value returns the measured time in seconds.
func (m *Time) Value() float64 {
	return m.Elapsed().Seconds()
}
