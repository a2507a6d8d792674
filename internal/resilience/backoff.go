package resilience

import (
	"sync"
	"time"
)

const (
	DefaultBackoffFloor = 1 * time.Second
	DefaultBackoffCap   = 5 * time.Second
)

// Backoff is a doubling reconnect delay bounded by a floor and a cap.
// It is safe for concurrent use.
type Backoff struct {
	floor   time.Duration
	cap     time.Duration
	current time.Duration
	mu      sync.Mutex
}

// NewBackoff creates a backoff starting at floor. Non-positive values use
// the defaults and a cap below the floor is raised to it.
func NewBackoff(floor, cap time.Duration) *Backoff {
	if floor <= 0 {
		floor = DefaultBackoffFloor
	}
	if cap <= 0 {
		cap = DefaultBackoffCap
	}
	if cap < floor {
		cap = floor
	}
	return &Backoff{floor: floor, cap: cap, current: floor}
}

// Next returns the delay to wait before the next attempt and doubles the
// delay for the one after.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.current
	b.current *= 2
	if b.current > b.cap {
		b.current = b.cap
	}
	return delay
}

// Current returns the delay the next call to Next will return
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Reset returns the delay to the floor after a successful attempt
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.floor
}
