package utils

import (
	"context"
	"errors"
	"time"
)

// ErrPollTimeout is returned when the attempt budget runs out before the
// predicate reports done.
var ErrPollTimeout = errors.New("polling budget exhausted")

// PollConfig bounds a status poll.
type PollConfig struct {
	Interval    time.Duration
	MaxAttempts int
}

// Poll calls check until it reports done, returns an error, the attempt
// budget runs out or ctx is cancelled. check may return a positive wait to
// override the next interval (Twitter's check_after_secs).
//
// The budget is also capped by ctx's deadline: when the next wait would not
// fit, or the deadline fires mid-poll, Poll returns ErrPollTimeout so callers
// report the upload as still processing instead of as a plain timeout.
func Poll(ctx context.Context, cfg PollConfig, check func(ctx context.Context, attempt int) (done bool, wait time.Duration, err error)) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		done, wait, err := check(ctx, attempt)
		if err != nil {
			if deadlineHit(ctx) {
				return ErrPollTimeout
			}
			return err
		}
		if done {
			return nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		if wait <= 0 {
			wait = cfg.Interval
		}
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= wait {
			return ErrPollTimeout
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			if deadlineHit(ctx) {
				return ErrPollTimeout
			}
			return ctx.Err()
		case <-timer.C:
		}
	}
	return ErrPollTimeout
}

func deadlineHit(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded)
}

// Backoff returns base*2^(attempt-1) capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
