package scheduler

import (
	"sync"
	"time"
)

const (
	DefaultBackoffFloor = 200 * time.Millisecond
	DefaultBackoffMax   = 60 * time.Second
)

// Backoff is the idle poll interval: doubled after every empty poll up to max and
// reset to floor whenever work is found.
type Backoff struct {
	floor time.Duration
	max   time.Duration

	mu      sync.Mutex
	current time.Duration
}

func NewBackoff(floor, maxDelay time.Duration) *Backoff {
	if floor <= 0 {
		floor = DefaultBackoffFloor
	}

	if maxDelay < floor {
		maxDelay = floor
	}

	return &Backoff{floor: floor, max: maxDelay, current: floor}
}

func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.current
}

// Increase doubles the interval, capped at max, and returns the new value.
func (b *Backoff) Increase() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = min(b.current*2, b.max)

	return b.current
}

func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = b.floor
}
