package model

import "time"

// ResultStatus is the state of one (post, platform) publish.
type ResultStatus string

const (
	ResultStatusPending ResultStatus = "pending"
	ResultStatusPosted  ResultStatus = "posted"
	ResultStatusFailed  ResultStatus = "failed"
)

// PublishSuccess is the success half of an adapter outcome.
type PublishSuccess struct {
	PlatformPostID string
	URL            string
}

// PublishResult is the current outcome of publishing a post to one platform.
type PublishResult struct {
	ID             int64        `json:"id"`
	PostID         int64        `json:"post_id"`
	Platform       Platform     `json:"platform"`
	Status         ResultStatus `json:"status"`
	PlatformPostID *string      `json:"platform_post_id,omitempty"`
	URL            *string      `json:"url,omitempty"`
	FailureKind    *FailureKind `json:"failure_kind,omitempty"`
	ErrorMessage   *string      `json:"error_message,omitempty"`
	ContentSent    string       `json:"content_sent"`
	AttemptCount   int          `json:"attempt_count"`
	PostedAt       *time.Time   `json:"posted_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// NewPostedResult builds a posted result. A posted result always carries a
// platform post id.
func NewPostedResult(postID int64, platform Platform, content string, s PublishSuccess, at time.Time) (*PublishResult, error) {
	if s.PlatformPostID == "" {
		return nil, ErrMissingPlatformPostID
	}
	id := s.PlatformPostID
	r := &PublishResult{
		PostID:         postID,
		Platform:       platform,
		Status:         ResultStatusPosted,
		PlatformPostID: &id,
		ContentSent:    content,
		PostedAt:       &at,
	}
	if s.URL != "" {
		u := s.URL
		r.URL = &u
	}
	return r, nil
}

// NewFailedResult builds a failed result from a classified error.
func NewFailedResult(postID int64, platform Platform, content string, pe *PublishError) *PublishResult {
	kind := pe.Kind
	msg := pe.UserMessage()
	return &PublishResult{
		PostID:       postID,
		Platform:     platform,
		Status:       ResultStatusFailed,
		FailureKind:  &kind,
		ErrorMessage: &msg,
		ContentSent:  content,
	}
}

// Settled reports whether the platform must not be attempted again for the
// current post: it already succeeded or failed permanently.
func (r *PublishResult) Settled() bool {
	if r.Status == ResultStatusPosted {
		return true
	}
	if r.Status == ResultStatusFailed && r.FailureKind != nil {
		return !r.FailureKind.Retryable()
	}
	return false
}

// PublishAttempt is one append-only entry in the attempt history.
type PublishAttempt struct {
	PostID         int64        `json:"post_id" bson:"post_id"`
	Platform       Platform     `json:"platform" bson:"platform"`
	Attempt        int          `json:"attempt" bson:"attempt"`
	Status         ResultStatus `json:"status" bson:"status"`
	PlatformPostID string       `json:"platform_post_id,omitempty" bson:"platform_post_id,omitempty"`
	URL            string       `json:"url,omitempty" bson:"url,omitempty"`
	FailureKind    FailureKind  `json:"failure_kind,omitempty" bson:"failure_kind,omitempty"`
	ErrorMessage   string       `json:"error_message,omitempty" bson:"error_message,omitempty"`
	DurationMillis int64        `json:"duration_ms" bson:"duration_ms"`
	AttemptedAt    time.Time    `json:"attempted_at" bson:"attempted_at"`
}
