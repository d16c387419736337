package ratelimit

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	value     int64
	expiresAt time.Time
}

// MemoryCounters implements Counters in memory for tests and local
// development. Expired entries are dropped lazily on the next increment.
type MemoryCounters struct {
	mu       sync.Mutex
	counters map[string]*counter
}

func NewMemoryCounters() *MemoryCounters {
	return &MemoryCounters{counters: make(map[string]*counter)}
}

func (c *MemoryCounters) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	entry, ok := c.counters[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &counter{expiresAt: now.Add(ttl)}
		c.counters[key] = entry
	}

	entry.value++
	return entry.value, nil
}
