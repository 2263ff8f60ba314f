// Package clock supplies the time source for order timestamps.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Func adapts a plain function to Clock. Tests use it to pin time.
type Func func() time.Time

func (f Func) Now() time.Time { return f() }

// Monotonic never hands out the same instant twice and never goes backwards,
// even when the wall clock does. Orders created in the same process therefore
// have strictly increasing created_at values.
type Monotonic struct {
	mu     sync.Mutex
	source func() time.Time
	last   time.Time
}

// NewMonotonic wraps source, or time.Now when source is nil.
func NewMonotonic(source func() time.Time) *Monotonic {
	if source == nil {
		source = time.Now
	}
	return &Monotonic{source: source}
}

func (m *Monotonic) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.source().UTC().Round(time.Microsecond)
	if !now.After(m.last) {
		now = m.last.Add(time.Microsecond)
	}
	m.last = now
	return now
}
