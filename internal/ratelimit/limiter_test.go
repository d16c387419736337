package ratelimit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sendlater/internal/ratelimit"
)

func TestHourlyLimiter_Disabled(t *testing.T) {
	t.Parallel()

	limiter := ratelimit.NewHourlyLimiter(ratelimit.NewMemoryCounters(), false, 1)

	for range 5 {
		allowed, count, err := limiter.CheckAndIncrement(context.Background(), "alice@example.com")
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Zero(t, count)
	}
}

func TestHourlyLimiter_CapEnforced(t *testing.T) {
	t.Parallel()

	limiter := ratelimit.NewHourlyLimiter(ratelimit.NewMemoryCounters(), true, 2)
	ctx := context.Background()

	allowed, count, err := limiter.CheckAndIncrement(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.EqualValues(t, 1, count)

	allowed, count, err = limiter.CheckAndIncrement(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.EqualValues(t, 2, count)

	allowed, count, err = limiter.CheckAndIncrement(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.EqualValues(t, 3, count)

	// A different sender has its own bucket.
	allowed, _, err = limiter.CheckAndIncrement(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestHourlyLimiter_BucketRollsOver(t *testing.T) {
	t.Parallel()

	current := time.Date(2025, 3, 14, 10, 59, 0, 0, time.UTC)
	limiter := ratelimit.NewHourlyLimiter(ratelimit.NewMemoryCounters(), true, 1,
		ratelimit.WithClock(func() time.Time { return current }))

	ctx := context.Background()

	allowed, _, err := limiter.CheckAndIncrement(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, _, err = limiter.CheckAndIncrement(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.False(t, allowed)

	// The next hour is a fresh bucket.
	current = current.Add(time.Hour)

	allowed, count, err := limiter.CheckAndIncrement(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.EqualValues(t, 1, count)
}

func TestHourlyLimiter_NextAvailableTime(t *testing.T) {
	t.Parallel()

	limiter := ratelimit.NewHourlyLimiter(ratelimit.NewMemoryCounters(), true, 1,
		ratelimit.WithClock(func() time.Time {
			return time.Date(2025, 3, 14, 10, 42, 17, 500, time.UTC)
		}))

	next := limiter.NextAvailableTime()
	assert.Equal(t, time.Date(2025, 3, 14, 11, 0, 0, 0, time.UTC), next)
}

func TestMemoryCounters_ConcurrentIncrements(t *testing.T) {
	t.Parallel()

	counters := ratelimit.NewMemoryCounters()
	const n = 100

	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := counters.Incr(context.Background(), "email:hourly:alice@example.com:2025-03-14-10", time.Hour)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	count, err := counters.Incr(context.Background(), "email:hourly:alice@example.com:2025-03-14-10", time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, n+1, count)
}

func TestMemoryCounters_TTLExpiry(t *testing.T) {
	t.Parallel()

	counters := ratelimit.NewMemoryCounters()
	ctx := context.Background()

	count, err := counters.Incr(ctx, "k", 10*time.Millisecond)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	time.Sleep(25 * time.Millisecond)

	count, err = counters.Incr(ctx, "k", 10*time.Millisecond)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}
