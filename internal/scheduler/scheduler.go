// Package scheduler turns a schedule request into persisted jobs and delay
// queue entries, staggering a batch so recipients are spread out by a fixed
// interval instead of all falling due at the same instant.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sendlater/internal/db"
	"sendlater/internal/metrics"
	"sendlater/internal/models"
	"sendlater/internal/queue"
)

var (
	ErrInvalidSender    = errors.New("invalid sender address")
	ErrInvalidRecipient = errors.New("invalid recipient address")
	ErrNoRecipients     = errors.New("at least one recipient is required")
	ErrEmptySubject     = errors.New("subject must not be empty")
	ErrEmptyBody        = errors.New("body must not be empty")
	ErrNothingScheduled = errors.New("no jobs could be scheduled")
	ErrNotCancellable   = errors.New("job is not in a cancellable state")
)

// Request is a validated-on-entry schedule request. A zero StartTime defaults
// to now plus a small buffer; a nil Delay defaults to the configured
// per-recipient stagger.
type Request struct {
	SenderEmail string
	Recipients  []string
	Subject     string
	Body        string
	StartTime   time.Time
	Delay       *time.Duration
}

type Scheduler struct {
	store db.JobStore
	queue queue.DelayQueue
	log   *zap.Logger

	startBuffer  time.Duration
	defaultDelay time.Duration
	now          func() time.Time
}

func New(
	store db.JobStore,
	q queue.DelayQueue,
	log *zap.Logger,
	startBuffer time.Duration,
	defaultDelay time.Duration,
) *Scheduler {

	return &Scheduler{
		store:        store,
		queue:        q,
		log:          log,
		startBuffer:  startBuffer,
		defaultDelay: defaultDelay,
		now:          time.Now,
	}
}

// Schedule validates the request, creates one SCHEDULED job per recipient at
// staggered due times and enqueues each by its id. An enqueue failure after
// the store write is logged and left to the reconciliation sweep; it never
// fails the request. A store failure skips that recipient only.
func (s *Scheduler) Schedule(ctx context.Context, req Request) ([]models.Job, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	start := req.StartTime
	if start.IsZero() {
		start = s.now().Add(s.startBuffer)
	}

	delay := s.defaultDelay
	if req.Delay != nil {
		delay = *req.Delay
	}

	jobs := make([]models.Job, 0, len(req.Recipients))

	for i, recipient := range req.Recipients {
		job := models.Job{
			ID:             uuid.NewString(),
			SenderEmail:    req.SenderEmail,
			RecipientEmail: recipient,
			Subject:        req.Subject,
			Body:           req.Body,
			Status:         models.StatusScheduled,
			ScheduledAt:    start.Add(time.Duration(i) * delay),
		}

		if err := s.store.CreateJob(ctx, &job); err != nil {
			s.log.Error("failed to persist job",
				zap.String("recipient", recipient),
				zap.Error(err),
			)
			continue
		}

		if err := s.queue.Enqueue(ctx, job.ID, job.ScheduledAt); err != nil {
			// The job exists but has no queue entry. The reconciliation
			// sweep re-enqueues it once its due time passes.
			s.log.Warn("job persisted but not enqueued",
				zap.String("job_id", job.ID),
				zap.Error(err),
			)
		}

		metrics.EmailsScheduled.Inc()
		jobs = append(jobs, job)
	}

	if len(jobs) == 0 {
		return nil, ErrNothingScheduled
	}

	s.log.Info("batch scheduled",
		zap.String("sender", req.SenderEmail),
		zap.Int("count", len(jobs)),
		zap.Time("start", start),
		zap.Duration("stagger", delay),
	)

	return jobs, nil
}

// Cancel withdraws a pending job (SCHEDULED or RATE_LIMITED) before its due
// time. Jobs already picked up or terminal are rejected.
func (s *Scheduler) Cancel(ctx context.Context, jobID string) error {
	cancelled, err := s.store.CancelScheduled(ctx, jobID)
	if err != nil {
		return fmt.Errorf("cancel job %s: %w", jobID, err)
	}

	if !cancelled {
		if _, err := s.store.GetJob(ctx, jobID); err != nil {
			return err
		}
		return ErrNotCancellable
	}

	if _, err := s.queue.Remove(ctx, jobID); err != nil {
		s.log.Warn("cancelled job still has a queue entry",
			zap.String("job_id", jobID),
			zap.Error(err),
		)
	}

	s.log.Info("job cancelled", zap.String("job_id", jobID))
	return nil
}

func validate(req Request) error {
	if _, err := mail.ParseAddress(req.SenderEmail); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidSender, req.SenderEmail)
	}
	if len(req.Recipients) == 0 {
		return ErrNoRecipients
	}
	for _, recipient := range req.Recipients {
		if _, err := mail.ParseAddress(recipient); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidRecipient, recipient)
		}
	}
	if req.Subject == "" {
		return ErrEmptySubject
	}
	if req.Body == "" {
		return ErrEmptyBody
	}

	return nil
}
