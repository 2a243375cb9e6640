package model

import "time"

// JobKind is the type of queued task.
type JobKind string

const (
	JobKindPublish JobKind = "publish"
	JobKindSweep   JobKind = "sweep"
)

// JobStatus tracks a queued task through the worker.
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

// Job is a queued publish or sweep task.
type Job struct {
	ID        int64     `json:"id"`
	Kind      JobKind   `json:"kind"`
	PostID    *int64    `json:"post_id,omitempty"`
	Status    JobStatus `json:"status"`
	Attempts  int       `json:"attempts"`
	RunAt     time.Time `json:"run_at"`
	LastError *string   `json:"last_error,omitempty"`
	DedupeKey *string   `json:"dedupe_key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Task is the broker-neutral payload of a job.
type Task struct {
	Kind    JobKind `json:"kind"`
	PostID  int64   `json:"post_id,omitempty"`
	Attempt int     `json:"attempt"`
}

// ResultEvent is broadcast whenever a Result row changes.
type ResultEvent struct {
	Type           string       `json:"type"`
	UserID         string       `json:"user_id"`
	PostID         int64        `json:"post_id"`
	Platform       Platform     `json:"platform"`
	Status         ResultStatus `json:"status"`
	PlatformPostID *string      `json:"platform_post_id,omitempty"`
	URL            *string      `json:"url,omitempty"`
	Error          *string      `json:"error,omitempty"`
}

// NewResultEvent maps a stored result to its broadcast form.
func NewResultEvent(userID string, r *PublishResult) ResultEvent {
	return ResultEvent{
		Type:           "publish_result",
		UserID:         userID,
		PostID:         r.PostID,
		Platform:       r.Platform,
		Status:         r.Status,
		PlatformPostID: r.PlatformPostID,
		URL:            r.URL,
		Error:          r.ErrorMessage,
	}
}

// Task extracts the broker-neutral payload.
func (j *Job) Task() Task {
	t := Task{Kind: j.Kind, Attempt: j.Attempts}
	if j.PostID != nil {
		t.PostID = *j.PostID
	}
	if t.Attempt < 1 {
		t.Attempt = 1
	}
	return t
}
