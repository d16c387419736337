package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue implements DelayQueue in memory for tests and local development.
// Pull waits on a timer armed for the earliest pending due time and is woken
// early when an Enqueue moves that due time forward.
type MemoryQueue struct {
	mu      sync.Mutex
	entries map[string]time.Time
	wake    chan struct{}
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		entries: make(map[string]time.Time),
		wake:    make(chan struct{}, 1),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, jobID string, due time.Time) error {
	q.mu.Lock()
	q.entries[jobID] = due
	q.mu.Unlock()

	q.notify()
	return nil
}

func (q *MemoryQueue) Pull(ctx context.Context) (string, error) {
	for {
		id, wait := q.claimDue()
		if id != "" {
			return id, nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-q.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// claimDue removes and returns the earliest due entry, or the duration to
// sleep before anything becomes due.
func (q *MemoryQueue) claimDue() (string, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	wait := time.Hour

	var bestID string
	var bestDue time.Time
	for id, due := range q.entries {
		if due.After(now) {
			if d := due.Sub(now); d < wait {
				wait = d
			}
			continue
		}
		if bestID == "" || due.Before(bestDue) {
			bestID = id
			bestDue = due
		}
	}

	if bestID != "" {
		delete(q.entries, bestID)
		return bestID, 0
	}

	return "", wait
}

func (q *MemoryQueue) Remove(ctx context.Context, jobID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.entries[jobID]; !ok {
		return false, nil
	}

	delete(q.entries, jobID)
	return true, nil
}

func (q *MemoryQueue) Contains(ctx context.Context, jobID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, ok := q.entries[jobID]
	return ok, nil
}

// Len reports the number of pending entries.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.entries)
}

func (q *MemoryQueue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
