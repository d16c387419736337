package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sendlater/internal/api"
	"sendlater/internal/db"
	"sendlater/internal/models"
	"sendlater/internal/queue"
	"sendlater/internal/scheduler"
)

func newServer(t *testing.T) (*httptest.Server, *db.MemoryStore) {
	t.Helper()

	store := db.NewMemoryStore()
	q := queue.NewMemoryQueue()

	handler := &api.Handler{
		Scheduler: scheduler.New(store, q, zap.NewNop(), 5*time.Second, 2*time.Second),
		Store:     store,
		Log:       zap.NewNop(),
	}

	mux := http.NewServeMux()
	handler.Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv, store
}

func TestHandler_Schedule(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t)

	body := `{
		"senderEmail": "alice@example.com",
		"recipients": ["bob@example.com", "carol@example.com"],
		"subject": "hello",
		"body": "<p>hi</p>",
		"startTime": "2030-01-01T10:00:00Z",
		"delayBetweenEmails": 1000
	}`

	resp, err := http.Post(srv.URL+"/emails/schedule", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var out struct {
		Count  int          `json:"count"`
		JobIDs []string     `json:"jobIds"`
		Jobs   []models.Job `json:"jobs"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	assert.Equal(t, 2, out.Count)
	require.Len(t, out.Jobs, 2)
	assert.Equal(t, time.Second, out.Jobs[1].ScheduledAt.Sub(out.Jobs[0].ScheduledAt))
}

func TestHandler_ScheduleValidationError(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t)

	body := `{"senderEmail": "nope", "recipients": ["bob@example.com"], "subject": "s", "body": "b"}`

	resp, err := http.Post(srv.URL+"/emails/schedule", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Contains(t, out["error"], "invalid sender address")
}

func TestHandler_QueryByStatus(t *testing.T) {
	t.Parallel()

	srv, store := newServer(t)
	ctx := context.Background()

	sentAt := time.Now()
	require.NoError(t, store.CreateJob(ctx, &models.Job{
		ID: "pending", SenderEmail: "a@example.com", RecipientEmail: "b@example.com",
		Subject: "s", Body: "b", Status: models.StatusScheduled,
		ScheduledAt: time.Now().Add(time.Hour),
	}))
	require.NoError(t, store.CreateJob(ctx, &models.Job{
		ID: "done", SenderEmail: "a@example.com", RecipientEmail: "c@example.com",
		Subject: "s", Body: "b", Status: models.StatusSent,
		ScheduledAt: time.Now().Add(-time.Hour), SentAt: &sentAt,
	}))

	resp, err := http.Get(srv.URL + "/emails/scheduled")
	require.NoError(t, err)
	defer resp.Body.Close()

	var pending []models.Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pending))
	require.Len(t, pending, 1)
	assert.Equal(t, "pending", pending[0].ID)

	resp, err = http.Get(srv.URL + "/emails/sent")
	require.NoError(t, err)
	defer resp.Body.Close()

	var completed []models.Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&completed))
	require.Len(t, completed, 1)
	assert.Equal(t, "done", completed[0].ID)
}

func TestHandler_Cancel(t *testing.T) {
	t.Parallel()

	srv, store := newServer(t)
	ctx := context.Background()

	require.NoError(t, store.CreateJob(ctx, &models.Job{
		ID: "job-1", SenderEmail: "a@example.com", RecipientEmail: "b@example.com",
		Subject: "s", Body: "b", Status: models.StatusScheduled,
		ScheduledAt: time.Now().Add(time.Hour),
	}))

	resp, err := http.Post(srv.URL+"/emails/job-1/cancel", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	job, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, job.Status)
	assert.Equal(t, "cancelled", job.FailureReason)

	// Already terminal now.
	resp, err = http.Post(srv.URL+"/emails/job-1/cancel", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/emails/missing/cancel", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandler_Health(t *testing.T) {
	t.Parallel()

	store := db.NewMemoryStore()
	q := queue.NewMemoryQueue()

	healthy := func(ctx context.Context) error { return nil }
	broken := func(ctx context.Context) error { return errors.New("down") }

	handler := &api.Handler{
		Scheduler:    scheduler.New(store, q, zap.NewNop(), time.Second, time.Second),
		Store:        store,
		Log:          zap.NewNop(),
		HealthChecks: []func(ctx context.Context) error{healthy},
	}

	mux := http.NewServeMux()
	handler.Register(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	handler.HealthChecks = append(handler.HealthChecks, broken)

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
