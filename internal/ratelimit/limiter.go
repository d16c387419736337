// Package ratelimit enforces the per-sender hourly send quota. Counts live in
// fixed one-hour UTC buckets keyed by sender address; the counter store must
// increment atomically so concurrent dispatchers never lose updates.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

const bucketTTL = time.Hour

// Counters is the atomic counter store backing the limiter.
type Counters interface {
	// Incr atomically increments the counter at key, creating it with the
	// given TTL on first touch, and returns the new value.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// HourlyLimiter caps how many emails a sender may dispatch per UTC hour.
type HourlyLimiter struct {
	counters   Counters
	enabled    bool
	maxPerHour int64
	now        func() time.Time
}

// Option configures an HourlyLimiter.
type Option func(*HourlyLimiter)

// WithClock overrides the limiter's time source. Tests use it to pin the
// bucket an increment lands in.
func WithClock(now func() time.Time) Option {
	return func(l *HourlyLimiter) {
		l.now = now
	}
}

func NewHourlyLimiter(counters Counters, enabled bool, maxPerHour int, opts ...Option) *HourlyLimiter {
	l := &HourlyLimiter{
		counters:   counters,
		enabled:    enabled,
		maxPerHour: int64(maxPerHour),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// CheckAndIncrement counts one send attempt against the sender's current hour
// bucket and reports whether the send may proceed. When limiting is disabled
// it always allows without touching counters.
func (l *HourlyLimiter) CheckAndIncrement(ctx context.Context, senderEmail string) (bool, int64, error) {
	if !l.enabled {
		return true, 0, nil
	}

	count, err := l.counters.Incr(ctx, bucketKey(senderEmail, l.now()), bucketTTL)
	if err != nil {
		return false, 0, fmt.Errorf("increment hourly counter: %w", err)
	}

	return count <= l.maxPerHour, count, nil
}

// NextAvailableTime returns the start of the next UTC hour, the earliest
// instant at which a denied sender gets a fresh bucket.
func (l *HourlyLimiter) NextAvailableTime() time.Time {
	return l.now().UTC().Truncate(time.Hour).Add(time.Hour)
}

func bucketKey(senderEmail string, now time.Time) string {
	return fmt.Sprintf("email:hourly:%s:%s", senderEmail, now.UTC().Format("2006-01-02-15"))
}
