package engine

import (
	"sync"
	"time"
)

// Throttle bounds how many channel-open attempts may start inside a rolling
// window, across all orders.
type Throttle struct {
	mu       sync.Mutex
	window   time.Duration
	max      int
	attempts []time.Time
	now      func() time.Time
}

func NewThrottle(max int, window time.Duration) *Throttle {
	return &Throttle{
		window: window,
		max:    max,
		now:    time.Now,
	}
}

// Allow records an attempt if the rolling window has headroom and reports
// whether the caller may proceed.
func (t *Throttle) Allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	cutoff := now.Add(-t.window)

	kept := t.attempts[:0]
	for _, ts := range t.attempts {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	t.attempts = kept

	if len(t.attempts) >= t.max {
		return false
	}
	t.attempts = append(t.attempts, now)
	return true
}
