// Package queue provides the delay queue holding pending job ids ordered by
// due time. Entries are keyed by job id: re-adding an id replaces its due time
// instead of duplicating the entry. Delivery is at-least-once; the dispatcher
// guards against redelivery with the job's terminal-state check.
package queue

import (
	"context"
	"time"
)

// DelayQueue holds (jobID, dueTime) pairs and releases ids at or after their
// due time.
type DelayQueue interface {
	// Enqueue inserts or replaces the entry for jobID with the given due time.
	Enqueue(ctx context.Context, jobID string, due time.Time) error

	// Pull blocks until an entry is due or ctx is cancelled, then claims and
	// returns exactly one job id. A claimed entry is delivered to a single
	// caller per insertion.
	Pull(ctx context.Context) (string, error)

	// Remove deletes the entry for jobID if present.
	Remove(ctx context.Context, jobID string) (bool, error)

	// Contains reports whether an entry for jobID is pending.
	Contains(ctx context.Context, jobID string) (bool, error)
}
