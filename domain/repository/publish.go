package repository

import (
	"context"
	"time"

	"social-publisher/domain/dto"
	"social-publisher/domain/model"
)

// IPlatformAdapter encapsulates one platform's posting protocol
type IPlatformAdapter interface {
	Platform() model.Platform
	// Post publishes the content. Failures are *model.PublishError.
	Post(ctx context.Context, cred model.Credential, content dto.PublishContent) (*model.PublishSuccess, error)
	// ValidateToken is a side-effect free liveness probe of the credential.
	ValidateToken(ctx context.Context, cred model.Credential) bool
}

// IMediaFetcher downloads attachment bytes from storage URLs
type IMediaFetcher interface {
	Download(ctx context.Context, url string, timeout time.Duration) (*dto.MediaFile, error)
}

// ITokenRefresher runs one platform's refresh protocol
type ITokenRefresher interface {
	Refresh(ctx context.Context, conn *model.PlatformConnection) (*RefreshedToken, error)
}

// IRefresherTable resolves the refresher for a platform, or returns
// model.ErrRefreshUnavailable.
type IRefresherTable interface {
	For(platform model.Platform) (ITokenRefresher, error)
}

// RefreshedToken is the credential material returned by a refresh endpoint.
type RefreshedToken struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// ILocker provides mutual exclusion across worker processes
type ILocker interface {
	// Acquire blocks until the lock is held or ctx is done. The returned
	// func releases it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// ITaskQueue enqueues work for the background workers
type ITaskQueue interface {
	EnqueuePublish(ctx context.Context, postID int64) error
	// EnqueueRetry schedules another publish attempt at runAt.
	EnqueueRetry(ctx context.Context, task model.Task, runAt time.Time, lastErr string) error
	// EnqueueSweep schedules the next scheduler sweep. At most one sweep is pending.
	EnqueueSweep(ctx context.Context, runAt time.Time) error
}

// IJobSource is the consumer side of the Postgres task queue
type IJobSource interface {
	// Claim atomically takes the next due job, or returns model.ErrNoJobAvailable.
	Claim(ctx context.Context, now time.Time) (*model.Job, error)
	Complete(ctx context.Context, jobID int64) error
	// Fail records errMsg and hands the job out again after a delay, up to a
	// bounded number of redeliveries.
	Fail(ctx context.Context, jobID int64, errMsg string) error
	// RequeueStale returns jobs stuck in running since before `before` to pending.
	RequeueStale(ctx context.Context, before time.Time) (int64, error)
}

// IResultNotifier is told about every stored result
type IResultNotifier interface {
	NotifyResult(ctx context.Context, event model.ResultEvent)
}
