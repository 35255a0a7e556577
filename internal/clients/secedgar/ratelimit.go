package secedgar

import (
	"context"
	"sync"
	"time"
)

// RateLimiter enforces the SEC fair-access policy: at most maxRequests
// requests inside a sliding time window. Unlike a token bucket, a sliding
// window never lets a refilled burst exceed the cap within any single
// window, which is what the SEC measures.
type RateLimiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	timestamps  []time.Time
}

// NewRateLimiter creates a limiter that admits maxRequests per window.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		timestamps:  make([]time.Time, 0, maxRequests),
	}
}

// Acquire blocks until a request slot is available inside the current
// window, or until the context is cancelled. On success the slot is
// consumed immediately.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := time.Now()
		cutoff := now.Add(-l.window)

		// Evict timestamps that have left the window.
		kept := l.timestamps[:0]
		for _, ts := range l.timestamps {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		l.timestamps = kept

		if len(l.timestamps) < l.maxRequests {
			l.timestamps = append(l.timestamps, now)
			l.mu.Unlock()
			return nil
		}

		// Window is full: wait until the oldest timestamp expires, then retry.
		wait := l.window - now.Sub(l.timestamps[0])
		l.mu.Unlock()

		if wait <= 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Pending returns how many requests are currently counted in the window.
// Used for logging and tests.
func (l *RateLimiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-l.window)
	count := 0
	for _, ts := range l.timestamps {
		if ts.After(cutoff) {
			count++
		}
	}
	return count
}
