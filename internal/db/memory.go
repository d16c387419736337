package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"sendlater/internal/models"
)

// MemoryStore implements JobStore in memory for tests and local development.
// Conditional transitions hold the same mutex as reads, which gives the same
// lost-update protection the postgres store gets from single-row updates.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*models.Job)}
}

func (m *MemoryStore) CreateJob(ctx context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	cp := *job
	cp.CreatedAt = now
	cp.UpdatedAt = now
	m.jobs[job.ID] = &cp

	return nil
}

func (m *MemoryStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}

	cp := *job
	return &cp, nil
}

func (m *MemoryStore) ClaimSending(ctx context.Context, id string) (bool, error) {
	return m.transition(id, func(job *models.Job) bool {
		if job.Status != models.StatusScheduled && job.Status != models.StatusRateLimited {
			return false
		}
		job.Status = models.StatusSending
		return true
	})
}

func (m *MemoryStore) MarkSent(ctx context.Context, id string, sentAt time.Time, messageID, previewURL string) (bool, error) {
	return m.transition(id, func(job *models.Job) bool {
		if job.Status != models.StatusSending {
			return false
		}
		job.Status = models.StatusSent
		job.SentAt = &sentAt
		job.MessageID = messageID
		job.PreviewURL = previewURL
		return true
	})
}

func (m *MemoryStore) MarkFailed(ctx context.Context, id string, reason string) (bool, error) {
	return m.transition(id, func(job *models.Job) bool {
		if job.Status != models.StatusSending {
			return false
		}
		job.Status = models.StatusFailed
		job.FailureReason = reason
		return true
	})
}

func (m *MemoryStore) RescheduleRateLimited(ctx context.Context, id string, due time.Time) (bool, error) {
	return m.transition(id, func(job *models.Job) bool {
		if job.Status != models.StatusScheduled && job.Status != models.StatusRateLimited {
			return false
		}
		job.Status = models.StatusRateLimited
		job.ScheduledAt = due
		return true
	})
}

func (m *MemoryStore) CancelScheduled(ctx context.Context, id string) (bool, error) {
	return m.transition(id, func(job *models.Job) bool {
		if job.Status != models.StatusScheduled && job.Status != models.StatusRateLimited {
			return false
		}
		job.Status = models.StatusFailed
		job.FailureReason = "cancelled"
		return true
	})
}

func (m *MemoryStore) ListScheduled(ctx context.Context) ([]models.Job, error) {
	jobs := m.filter(func(job *models.Job) bool {
		return job.Status == models.StatusScheduled || job.Status == models.StatusRateLimited
	})

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].ScheduledAt.Before(jobs[j].ScheduledAt)
	})

	return jobs, nil
}

func (m *MemoryStore) ListCompleted(ctx context.Context) ([]models.Job, error) {
	jobs := m.filter(func(job *models.Job) bool {
		return job.Status.Terminal()
	})

	sort.Slice(jobs, func(i, j int) bool {
		ti, tj := time.Time{}, time.Time{}
		if jobs[i].SentAt != nil {
			ti = *jobs[i].SentAt
		}
		if jobs[j].SentAt != nil {
			tj = *jobs[j].SentAt
		}
		return ti.After(tj)
	})

	return jobs, nil
}

func (m *MemoryStore) ListDuePending(ctx context.Context, before time.Time) ([]models.Job, error) {
	jobs := m.filter(func(job *models.Job) bool {
		if job.Status != models.StatusScheduled && job.Status != models.StatusRateLimited {
			return false
		}
		return !job.ScheduledAt.After(before)
	})

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].ScheduledAt.Before(jobs[j].ScheduledAt)
	})

	return jobs, nil
}

func (m *MemoryStore) transition(id string, apply func(*models.Job) bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return false, nil
	}

	if !apply(job) {
		return false, nil
	}

	job.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) filter(keep func(*models.Job) bool) []models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	var jobs []models.Job
	for _, job := range m.jobs {
		if keep(job) {
			jobs = append(jobs, *job)
		}
	}

	return jobs
}
