package model

import (
	"fmt"
	"strings"
	"time"
)

// PostStatus is the aggregate lifecycle state of a post.
type PostStatus string

const (
	PostStatusDraft     PostStatus = "draft"
	PostStatusScheduled PostStatus = "scheduled"
	PostStatusPosting   PostStatus = "posting"
	PostStatusPosted    PostStatus = "posted"
	PostStatusPartial   PostStatus = "partial"
	PostStatusFailed    PostStatus = "failed"
)

// Terminal reports whether the status ends a publish attempt.
func (s PostStatus) Terminal() bool {
	return s == PostStatusPosted || s == PostStatusPartial || s == PostStatusFailed
}

// CanTransition encodes the post state machine. Terminal states never move.
func (s PostStatus) CanTransition(to PostStatus) bool {
	switch s {
	case PostStatusDraft:
		return to == PostStatusScheduled || to == PostStatusPosting
	case PostStatusScheduled:
		return to == PostStatusPosting || to == PostStatusScheduled || to == PostStatusDraft
	case PostStatusPosting:
		return to.Terminal()
	case PostStatusPosted, PostStatusPartial, PostStatusFailed:
		return false
	}
	return false
}

// Post is a unit of content a user wants published to several platforms.
type Post struct {
	ID           int64               `json:"id"`
	UserID       string              `json:"user_id"`
	Text         string              `json:"text"`
	EnhancedText map[Platform]string `json:"enhanced_text,omitempty"`
	Platforms    []Platform          `json:"platforms"`
	ImageURLs    []string            `json:"image_urls"`
	VideoURLs    []string            `json:"video_urls"`
	ScheduledFor *time.Time          `json:"scheduled_for,omitempty"`
	Status       PostStatus          `json:"status"`
	ErrorMessage *string             `json:"error_message,omitempty"`
	PlatformURLs map[Platform]string `json:"platform_urls,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// TextFor returns the platform-tailored text, falling back to the original.
func (p *Post) TextFor(platform Platform) string {
	if t, ok := p.EnhancedText[platform]; ok && strings.TrimSpace(t) != "" {
		return t
	}
	return p.Text
}

// Targets returns the de-duplicated target platforms.
func (p *Post) Targets() []Platform {
	seen := make(map[Platform]struct{}, len(p.Platforms))
	out := make([]Platform, 0, len(p.Platforms))
	for _, pl := range p.Platforms {
		if _, ok := seen[pl]; ok {
			continue
		}
		seen[pl] = struct{}{}
		out = append(out, pl)
	}
	return out
}

// Validate checks the creation invariants.
func (p *Post) Validate() error {
	if len(p.Platforms) == 0 {
		return ErrPlatformsRequired
	}
	for _, pl := range p.Platforms {
		if !pl.Valid() {
			return fmt.Errorf("%w: %q", ErrUnsupportedPlatform, pl)
		}
	}
	return nil
}
