package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"sendlater/internal/db"
	"sendlater/internal/models"
	"sendlater/internal/scheduler"
)

type Handler struct {
	Scheduler *scheduler.Scheduler
	Store     db.JobStore
	Log       *zap.Logger

	// HealthChecks are pinged by the health endpoint (postgres, redis).
	HealthChecks []func(ctx context.Context) error
}

// Register mounts all routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /emails/schedule", h.Schedule)
	mux.HandleFunc("GET /emails/scheduled", h.Scheduled)
	mux.HandleFunc("GET /emails/sent", h.Sent)
	mux.HandleFunc("POST /emails/{id}/cancel", h.Cancel)
	mux.HandleFunc("GET /health", h.Health)
}

type scheduleRequest struct {
	SenderEmail        string   `json:"senderEmail"`
	Recipients         []string `json:"recipients"`
	Subject            string   `json:"subject"`
	Body               string   `json:"body"`
	StartTime          string   `json:"startTime,omitempty"`
	DelayBetweenEmails *int64   `json:"delayBetweenEmails,omitempty"` // milliseconds
}

type scheduleResponse struct {
	Count  int          `json:"count"`
	JobIDs []string     `json:"jobIds"`
	Jobs   []models.Job `json:"jobs"`
}

func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	var body scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req := scheduler.Request{
		SenderEmail: body.SenderEmail,
		Recipients:  body.Recipients,
		Subject:     body.Subject,
		Body:        body.Body,
	}

	if body.StartTime != "" {
		start, err := time.Parse(time.RFC3339, body.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "startTime must be RFC 3339")
			return
		}
		req.StartTime = start
	}

	if body.DelayBetweenEmails != nil {
		delay := time.Duration(*body.DelayBetweenEmails) * time.Millisecond
		if delay < 0 {
			writeError(w, http.StatusBadRequest, "delayBetweenEmails must not be negative")
			return
		}
		req.Delay = &delay
	}

	jobs, err := h.Scheduler.Schedule(r.Context(), req)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, scheduler.ErrNothingScheduled) {
			status = http.StatusInternalServerError
		}
		writeError(w, status, err.Error())
		return
	}

	ids := make([]string, len(jobs))
	for i, job := range jobs {
		ids[i] = job.ID
	}

	writeJSON(w, http.StatusCreated, scheduleResponse{
		Count:  len(jobs),
		JobIDs: ids,
		Jobs:   jobs,
	})
}

func (h *Handler) Scheduled(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.Store.ListScheduled(r.Context())
	if err != nil {
		h.Log.Error("failed to list scheduled jobs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list scheduled jobs")
		return
	}

	writeJSON(w, http.StatusOK, jobs)
}

func (h *Handler) Sent(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.Store.ListCompleted(r.Context())
	if err != nil {
		h.Log.Error("failed to list completed jobs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list completed jobs")
		return
	}

	writeJSON(w, http.StatusOK, jobs)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	err := h.Scheduler.Cancel(r.Context(), jobID)
	switch {
	case errors.Is(err, db.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, scheduler.ErrNotCancellable):
		writeError(w, http.StatusConflict, "job is not in a cancellable state")
	case err != nil:
		h.Log.Error("failed to cancel job", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to cancel job")
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	for _, check := range h.HealthChecks {
		if err := check(r.Context()); err != nil {
			h.Log.Error("health check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "dependency unavailable")
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
