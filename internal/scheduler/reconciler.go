package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"sendlater/internal/db"
	"sendlater/internal/metrics"
	"sendlater/internal/queue"
)

// Reconciler repairs the window between a job store write and its queue
// insert: a crash there leaves a pending job with no queue entry, invisible
// to the dispatcher. The sweep finds pending jobs whose due time has passed
// and re-enqueues any that the queue no longer holds.
type Reconciler struct {
	store db.JobStore
	queue queue.DelayQueue
	log   *zap.Logger
}

func NewReconciler(store db.JobStore, q queue.DelayQueue, log *zap.Logger) *Reconciler {
	return &Reconciler{store: store, queue: q, log: log}
}

// Run sweeps once per interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.log.Error("reconciliation sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep performs a single reconciliation pass and returns the first error
// encountered while listing; per-job enqueue errors are logged and skipped.
func (r *Reconciler) Sweep(ctx context.Context) error {
	jobs, err := r.store.ListDuePending(ctx, time.Now())
	if err != nil {
		return err
	}

	for _, job := range jobs {
		queued, err := r.queue.Contains(ctx, job.ID)
		if err != nil {
			return err
		}
		if queued {
			continue
		}

		if err := r.queue.Enqueue(ctx, job.ID, job.ScheduledAt); err != nil {
			r.log.Warn("failed to re-enqueue orphaned job",
				zap.String("job_id", job.ID),
				zap.Error(err),
			)
			continue
		}

		metrics.JobsReconciled.Inc()
		r.log.Info("re-enqueued orphaned job",
			zap.String("job_id", job.ID),
			zap.Time("due", job.ScheduledAt),
		)
	}

	return nil
}
