package model

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrPostNotFound          = errors.New("post not found")
	ErrConnectionNotFound    = errors.New("platform connection not found")
	ErrNoConnectedPlatforms  = errors.New("no connected platforms")
	ErrUnsupportedPlatform   = errors.New("unsupported platform")
	ErrInvalidTransition     = errors.New("invalid post status transition")
	ErrStaleAttempt          = errors.New("post is no longer posting")
	ErrPlatformsRequired     = errors.New("at least one target platform is required")
	ErrScheduleInPast        = errors.New("scheduled time must be in the future")
	ErrLockNotAcquired       = errors.New("lock not acquired")
	ErrNoJobAvailable        = errors.New("no job available")
	ErrMissingPlatformPostID = errors.New("posted result requires a platform post id")
	ErrRefreshRejected       = errors.New("refresh credential rejected")
	ErrRefreshUnavailable    = errors.New("platform has no refresh protocol")
	ErrInvalidCredential     = errors.New("invalid platform credential")
)

// FailureKind classifies why publishing to one platform failed.
type FailureKind string

const (
	FailureConfig            FailureKind = "config"
	FailureAuth              FailureKind = "auth"
	FailureValidation        FailureKind = "validation"
	FailureTransient         FailureKind = "transient"
	FailureRejected          FailureKind = "rejected"
	FailureProcessingTimeout FailureKind = "processing_timeout"
	FailureInternal          FailureKind = "internal"
)

// Retryable reports whether a task-level retry can change the outcome.
func (k FailureKind) Retryable() bool {
	switch k {
	case FailureTransient:
		return true
	case FailureConfig, FailureAuth, FailureValidation, FailureRejected, FailureProcessingTimeout, FailureInternal:
		return false
	}
	return false
}

// PublishError is the failure half of an adapter outcome.
type PublishError struct {
	Platform Platform
	Kind     FailureKind
	Message  string
	Err      error
}

func (e *PublishError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s error: %s: %v", e.Platform, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s error: %s", e.Platform, e.Kind, e.Message)
}

func (e *PublishError) Unwrap() error { return e.Err }

func NewPublishError(platform Platform, kind FailureKind, message string, err error) *PublishError {
	return &PublishError{Platform: platform, Kind: kind, Message: message, Err: err}
}

func NewValidationError(platform Platform, message string) *PublishError {
	return NewPublishError(platform, FailureValidation, message, nil)
}

func NewConfigError(platform Platform, message string) *PublishError {
	return NewPublishError(platform, FailureConfig, message, nil)
}

func NewAuthError(platform Platform, message string, err error) *PublishError {
	return NewPublishError(platform, FailureAuth, message, err)
}

func NewTransientError(platform Platform, message string, err error) *PublishError {
	return NewPublishError(platform, FailureTransient, message, err)
}

func NewProcessingTimeoutError(platform Platform, message string) *PublishError {
	return NewPublishError(platform, FailureProcessingTimeout,
		message+"; the platform accepted the upload and the content may still appear later", nil)
}

// AsPublishError converts any error into a PublishError, keeping typed
// errors intact and treating unknown ones as internal failures.
func AsPublishError(platform Platform, err error) *PublishError {
	var pe *PublishError
	if errors.As(err, &pe) {
		if pe.Platform == "" {
			pe.Platform = platform
		}
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTransientError(platform, "request timed out", err)
	}
	return NewPublishError(platform, FailureInternal, "unexpected error", err)
}

// UserMessage is the text stored on Result rows and shown to the post owner.
func (e *PublishError) UserMessage() string {
	msg := e.Message
	if e.Err != nil && e.Kind != FailureValidation {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return msg
}
