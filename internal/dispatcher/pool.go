package dispatcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"sendlater/internal/db"
	"sendlater/internal/email"
	"sendlater/internal/metrics"
	"sendlater/internal/models"
	"sendlater/internal/queue"
	"sendlater/internal/ratelimit"
)

// Dispatcher pulls due jobs from the delay queue and drives each through
// SCHEDULED -> SENDING -> SENT|FAILED, with RATE_LIMITED jobs looping back
// via a reschedule to the next hour boundary. Worker slots bound how many
// sends are in flight; the shared pacing limiter bounds how often a new pull
// is acted on, so both constraints hold at once.
type Dispatcher struct {
	store   db.JobStore
	queue   queue.DelayQueue
	limiter *ratelimit.HourlyLimiter
	pace    *rate.Limiter
	sender  email.Sender
	log     *zap.Logger

	sendAttempts int
	retryInitial time.Duration
}

// pullRetryDelay spaces out retries after a transient queue error so a
// flapping backend is not hammered.
const pullRetryDelay = 500 * time.Millisecond

func New(
	store db.JobStore,
	q queue.DelayQueue,
	limiter *ratelimit.HourlyLimiter,
	pace *rate.Limiter,
	sender email.Sender,
	log *zap.Logger,
	sendAttempts int,
	retryInitial time.Duration,
) *Dispatcher {

	return &Dispatcher{
		store:        store,
		queue:        q,
		limiter:      limiter,
		pace:         pace,
		sender:       sender,
		log:          log,
		sendAttempts: sendAttempts,
		retryInitial: retryInitial,
	}
}

// StartPool launches the worker goroutines. Each worker blocks only on the
// queue pull, the pacing gate and its own I/O; one slot waiting never stalls
// the others.
func (d *Dispatcher) StartPool(ctx context.Context, wg *sync.WaitGroup, workers int) {
	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func(id int) {
			defer wg.Done()

			d.log.Info("worker started", zap.Int("worker_id", id))

			for {
				jobID, err := d.queue.Pull(ctx)
				if err != nil {
					if ctx.Err() != nil {
						d.log.Info("worker shutting down", zap.Int("worker_id", id))
						return
					}

					// A transient queue error must not retire the
					// slot; due jobs still need a puller.
					d.log.Error("failed to pull from delay queue",
						zap.Int("worker_id", id),
						zap.Error(err),
					)

					select {
					case <-ctx.Done():
						d.log.Info("worker shutting down", zap.Int("worker_id", id))
						return
					case <-time.After(pullRetryDelay):
					}
					continue
				}

				// ----------------------------
				// Global pacing gate
				// ----------------------------
				if err := d.pace.Wait(ctx); err != nil {
					d.log.Warn("pacing gate stopped by context",
						zap.Int("worker_id", id),
						zap.Error(err),
					)
					return
				}

				d.Process(ctx, id, jobID)
			}
		}(i)
	}
}

// Process runs the dispatch state machine for one pulled job id. The queue
// delivers at least once; the terminal-state check and the conditional
// SENDING claim make redelivery a no-op.
func (d *Dispatcher) Process(ctx context.Context, workerID int, jobID string) {
	job, err := d.store.GetJob(ctx, jobID)
	if errors.Is(err, db.ErrNotFound) {
		d.log.Debug("pulled unknown job", zap.String("job_id", jobID))
		return
	}
	if err != nil {
		d.log.Error("failed to load job",
			zap.String("job_id", jobID),
			zap.Error(err),
		)
		return
	}

	if job.Status.Terminal() {
		d.log.Debug("job already processed",
			zap.String("job_id", jobID),
			zap.String("status", string(job.Status)),
		)
		return
	}

	// ----------------------------
	// Per-sender hourly quota
	// ----------------------------
	allowed, count, err := d.limiter.CheckAndIncrement(ctx, job.SenderEmail)
	if err != nil {
		// Leave the job pending with its past due time; the
		// reconciliation sweep re-enqueues it.
		d.log.Error("rate limiter unavailable",
			zap.String("job_id", jobID),
			zap.Error(err),
		)
		return
	}

	if !allowed {
		d.reschedule(ctx, job, count)
		return
	}

	// ----------------------------
	// Claim: SCHEDULED -> SENDING
	// ----------------------------
	claimed, err := d.store.ClaimSending(ctx, jobID)
	if err != nil {
		d.log.Error("failed to claim job",
			zap.String("job_id", jobID),
			zap.Error(err),
		)
		return
	}
	if !claimed {
		d.log.Debug("job claimed by another worker", zap.String("job_id", jobID))
		return
	}

	// ----------------------------
	// Send
	// ----------------------------
	result, err := email.SendWithRetry(ctx, d.sender, email.Message{
		From:    job.SenderEmail,
		To:      job.RecipientEmail,
		Subject: job.Subject,
		HTML:    job.Body,
	}, d.sendAttempts, d.retryInitial)

	if err != nil {
		d.log.Error("email send failed",
			zap.Int("worker_id", workerID),
			zap.String("job_id", jobID),
			zap.String("to", job.RecipientEmail),
			zap.Error(err),
		)

		if _, dbErr := d.store.MarkFailed(ctx, jobID, err.Error()); dbErr != nil {
			d.log.Error("failed to update failure status",
				zap.String("job_id", jobID),
				zap.Error(dbErr),
			)
		}

		metrics.EmailFailures.Inc()
		return
	}

	if _, err := d.store.MarkSent(ctx, jobID, time.Now(), result.MessageID, result.PreviewURL); err != nil {
		d.log.Error("failed to update sent status",
			zap.String("job_id", jobID),
			zap.Error(err),
		)
	}

	d.log.Info("email sent successfully",
		zap.Int("worker_id", workerID),
		zap.String("job_id", jobID),
		zap.String("to", job.RecipientEmail),
		zap.String("message_id", result.MessageID),
	)

	metrics.EmailsSent.Inc()
}

// reschedule pushes a quota-denied job to the sender's next hour bucket.
// No send attempt is made.
func (d *Dispatcher) reschedule(ctx context.Context, job *models.Job, count int64) {
	next := d.limiter.NextAvailableTime()

	ok, err := d.store.RescheduleRateLimited(ctx, job.ID, next)
	if err != nil {
		d.log.Error("failed to mark job rate limited",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
		return
	}
	if !ok {
		// The job moved on, picked up by another worker or cancelled.
		return
	}

	if err := d.queue.Enqueue(ctx, job.ID, next); err != nil {
		// The job stays RATE_LIMITED with a future due time; the sweep
		// picks it up once that time passes.
		d.log.Warn("failed to requeue rate limited job",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	}

	metrics.EmailsRateLimited.Inc()
	d.log.Warn("sender over hourly quota, job deferred",
		zap.String("job_id", job.ID),
		zap.String("sender", job.SenderEmail),
		zap.Int64("count", count),
		zap.Time("next_attempt", next),
	)
}
