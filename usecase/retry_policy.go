package usecase

import (
	"time"

	"social-publisher/domain/model"
	"social-publisher/infrastructure/utils"
)

// RetryPolicy bounds task-level retries with exponential backoff.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// CanRetry reports whether another attempt may follow attempt.
func (p RetryPolicy) CanRetry(attempt int) bool {
	return attempt < p.MaxAttempts
}

// Delay is base*2^(attempt-1) capped at MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	return utils.Backoff(attempt, p.BaseDelay, p.MaxDelay)
}

// Next returns the follow-up task and when it should run.
func (p RetryPolicy) Next(task model.Task, now time.Time) (model.Task, time.Time) {
	next := task
	next.Attempt = task.Attempt + 1
	return next, now.Add(p.Delay(task.Attempt))
}
