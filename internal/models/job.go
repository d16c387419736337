package models

import "time"

type JobStatus string

const (
	StatusScheduled   JobStatus = "SCHEDULED"
	StatusSending     JobStatus = "SENDING"
	StatusSent        JobStatus = "SENT"
	StatusFailed      JobStatus = "FAILED"
	StatusRateLimited JobStatus = "RATE_LIMITED"
)

// Terminal reports whether the status permits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == StatusSent || s == StatusFailed
}

// Job is one scheduled send of one email to one recipient. The id doubles as
// the idempotency key for delay-queue insertion.
type Job struct {
	ID             string    `json:"id"`
	SenderEmail    string    `json:"sender_email"`
	RecipientEmail string    `json:"recipient_email"`
	Subject        string    `json:"subject"`
	Body           string    `json:"body"`

	Status        JobStatus  `json:"status"`
	ScheduledAt   time.Time  `json:"scheduled_at"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	MessageID     string     `json:"message_id,omitempty"`
	PreviewURL    string     `json:"preview_url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
