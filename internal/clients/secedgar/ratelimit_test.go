package secedgar

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterAdmitsUpToMax(t *testing.T) {
	limiter := NewRateLimiter(10, time.Second)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 10; i++ {
		err := limiter.Acquire(ctx)
		require.NoError(t, err)
	}
	elapsed := time.Since(start)

	// The first 10 acquisitions fit in the window and must not block.
	assert.Less(t, elapsed, 200*time.Millisecond)
	assert.Equal(t, 10, limiter.Pending())
}

func TestRateLimiterBlocksOverMax(t *testing.T) {
	limiter := NewRateLimiter(3, 200*time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Acquire(ctx))
	}

	// The 4th acquisition must wait for the oldest slot to expire.
	start := time.Now()
	require.NoError(t, limiter.Acquire(ctx))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond, "4th request should block until the window frees a slot")
}

func TestRateLimiterNeverExceedsMaxInWindow(t *testing.T) {
	const max = 5
	window := 100 * time.Millisecond
	limiter := NewRateLimiter(max, window)
	ctx := context.Background()

	var mu sync.Mutex
	var timestamps []time.Time

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, limiter.Acquire(ctx))
			mu.Lock()
			timestamps = append(timestamps, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, timestamps, 20)

	// Count admissions inside every sliding window anchored at each admission.
	for i, anchor := range timestamps {
		count := 0
		for _, ts := range timestamps {
			diff := ts.Sub(anchor)
			if diff >= 0 && diff < window {
				count++
			}
		}
		// Small timing jitter between Acquire returning and the timestamp
		// being recorded can make one extra admission appear in-window.
		assert.LessOrEqual(t, count, max+1, "window anchored at admission %d admitted too many", i)
	}
}

func TestRateLimiterContextCancellation(t *testing.T) {
	limiter := NewRateLimiter(1, 10*time.Second)

	require.NoError(t, limiter.Acquire(context.Background()))

	// The next acquisition would block for ~10s; cancellation must free it.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := limiter.Acquire(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimiterSlotsFreeOverTime(t *testing.T) {
	limiter := NewRateLimiter(2, 80*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, limiter.Acquire(ctx))
	require.NoError(t, limiter.Acquire(ctx))
	assert.Equal(t, 2, limiter.Pending())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, limiter.Pending())

	// Both slots are free again.
	start := time.Now()
	require.NoError(t, limiter.Acquire(ctx))
	require.NoError(t, limiter.Acquire(ctx))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}
