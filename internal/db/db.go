package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sendlater/internal/models"
)

// ErrNotFound is returned when no job exists for the given id.
var ErrNotFound = errors.New("job not found")

// JobStore is the persistence contract for scheduled email jobs. Every
// status-changing method is a single conditional update so that concurrent
// dispatcher instances can never double-process the same job: the caller that
// receives false lost the race and must discard the job.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)

	// ClaimSending transitions SCHEDULED|RATE_LIMITED -> SENDING.
	ClaimSending(ctx context.Context, id string) (bool, error)

	// MarkSent transitions SENDING -> SENT and records the transport result.
	MarkSent(ctx context.Context, id string, sentAt time.Time, messageID, previewURL string) (bool, error)

	// MarkFailed transitions SENDING -> FAILED with a reason.
	MarkFailed(ctx context.Context, id string, reason string) (bool, error)

	// RescheduleRateLimited transitions SCHEDULED -> RATE_LIMITED with a new
	// due time; the job loops back through ClaimSending on the next pull.
	RescheduleRateLimited(ctx context.Context, id string, due time.Time) (bool, error)

	// CancelScheduled transitions SCHEDULED|RATE_LIMITED -> FAILED with
	// reason "cancelled". Jobs already SENDING or terminal are left
	// untouched.
	CancelScheduled(ctx context.Context, id string) (bool, error)

	// ListScheduled returns pending jobs (SCHEDULED and RATE_LIMITED) ordered
	// by due time ascending.
	ListScheduled(ctx context.Context) ([]models.Job, error)

	// ListCompleted returns terminal jobs (SENT and FAILED) ordered by sent
	// time descending.
	ListCompleted(ctx context.Context) ([]models.Job, error)

	// ListDuePending returns pending jobs whose due time is at or before the
	// given instant. Used by the reconciliation sweep.
	ListDuePending(ctx context.Context, before time.Time) ([]models.Job, error)
}

// Store is the postgres-backed JobStore.
type Store struct {
	Pool *pgxpool.Pool
}

func New(conn string) (*Store, error) {
	pool, err := pgxpool.New(context.Background(), conn)
	if err != nil {
		return nil, err
	}

	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

const jobColumns = `id, sender_email, recipient_email, subject, body,
	 status, scheduled_at, sent_at, failure_reason, message_id, preview_url,
	 created_at, updated_at`

func (s *Store) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO email_jobs
		 (id, sender_email, recipient_email, subject, body, status, scheduled_at, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW())`,
		job.ID,
		job.SenderEmail,
		job.RecipientEmail,
		job.Subject,
		job.Body,
		job.Status,
		job.ScheduledAt,
	)

	return err
}

func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM email_jobs WHERE id=$1`, id)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return job, nil
}

func (s *Store) ClaimSending(ctx context.Context, id string) (bool, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE email_jobs
		 SET status=$1,
		     updated_at=NOW()
		 WHERE id=$2 AND status IN ($3,$4)`,
		models.StatusSending,
		id,
		models.StatusScheduled,
		models.StatusRateLimited,
	)

	return tag.RowsAffected() == 1, err
}

func (s *Store) MarkSent(ctx context.Context, id string, sentAt time.Time, messageID, previewURL string) (bool, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE email_jobs
		 SET status=$1,
		     sent_at=$2,
		     message_id=$3,
		     preview_url=$4,
		     updated_at=NOW()
		 WHERE id=$5 AND status=$6`,
		models.StatusSent,
		sentAt,
		messageID,
		previewURL,
		id,
		models.StatusSending,
	)

	return tag.RowsAffected() == 1, err
}

func (s *Store) MarkFailed(ctx context.Context, id string, reason string) (bool, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE email_jobs
		 SET status=$1,
		     failure_reason=$2,
		     updated_at=NOW()
		 WHERE id=$3 AND status=$4`,
		models.StatusFailed,
		reason,
		id,
		models.StatusSending,
	)

	return tag.RowsAffected() == 1, err
}

func (s *Store) RescheduleRateLimited(ctx context.Context, id string, due time.Time) (bool, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE email_jobs
		 SET status=$1,
		     scheduled_at=$2,
		     updated_at=NOW()
		 WHERE id=$3 AND status IN ($4,$5)`,
		models.StatusRateLimited,
		due,
		id,
		models.StatusScheduled,
		models.StatusRateLimited,
	)

	return tag.RowsAffected() == 1, err
}

func (s *Store) CancelScheduled(ctx context.Context, id string) (bool, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE email_jobs
		 SET status=$1,
		     failure_reason='cancelled',
		     updated_at=NOW()
		 WHERE id=$2 AND status IN ($3,$4)`,
		models.StatusFailed,
		id,
		models.StatusScheduled,
		models.StatusRateLimited,
	)

	return tag.RowsAffected() == 1, err
}

func (s *Store) ListScheduled(ctx context.Context) ([]models.Job, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT `+jobColumns+` FROM email_jobs
		 WHERE status IN ($1,$2)
		 ORDER BY scheduled_at ASC`,
		models.StatusScheduled,
		models.StatusRateLimited,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (s *Store) ListCompleted(ctx context.Context) ([]models.Job, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT `+jobColumns+` FROM email_jobs
		 WHERE status IN ($1,$2)
		 ORDER BY sent_at DESC NULLS LAST`,
		models.StatusSent,
		models.StatusFailed,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (s *Store) ListDuePending(ctx context.Context, before time.Time) ([]models.Job, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT `+jobColumns+` FROM email_jobs
		 WHERE status IN ($1,$2) AND scheduled_at <= $3
		 ORDER BY scheduled_at ASC`,
		models.StatusScheduled,
		models.StatusRateLimited,
		before,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var job models.Job
	err := row.Scan(
		&job.ID,
		&job.SenderEmail,
		&job.RecipientEmail,
		&job.Subject,
		&job.Body,
		&job.Status,
		&job.ScheduledAt,
		&job.SentAt,
		&job.FailureReason,
		&job.MessageID,
		&job.PreviewURL,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &job, nil
}

func scanJobs(rows pgx.Rows) ([]models.Job, error) {
	var jobs []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}

	return jobs, rows.Err()
}
