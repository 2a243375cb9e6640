package repository

import (
	"context"
	"time"

	"social-publisher/domain/model"
)

// IPost defines persistence operations on posts
type IPost interface {
	Create(ctx context.Context, post *model.Post) error
	GetByID(ctx context.Context, id int64) (*model.Post, error)
	// ListDueScheduled returns scheduled posts whose time has passed, oldest first.
	ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*model.Post, error)
	// TransitionStatus moves the post to `to` only if its current status is
	// one of `from`. It reports whether the row was updated.
	TransitionStatus(ctx context.Context, id int64, from []model.PostStatus, to model.PostStatus) (bool, error)
	// Reschedule sets a new schedule on a draft or scheduled post.
	Reschedule(ctx context.Context, id int64, at time.Time) (bool, error)
	// FinishAttempt writes the aggregate outcome, only while the post is posting.
	FinishAttempt(ctx context.Context, id int64, status model.PostStatus, errMsg *string, urls map[model.Platform]string) (bool, error)
}

// IConnection defines persistence operations on platform connections
type IConnection interface {
	// Connect deactivates any active connection for (user, platform) and stores the new one.
	Connect(ctx context.Context, conn *model.PlatformConnection) error
	GetByID(ctx context.Context, id int64) (*model.PlatformConnection, error)
	ListActiveByUser(ctx context.Context, userID string) ([]*model.PlatformConnection, error)
	UpdateCredentials(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt *time.Time) error
	Deactivate(ctx context.Context, id int64) error
}

// IResult defines persistence operations on per-platform results
type IResult interface {
	// Upsert stores the current outcome for (post, platform) and bumps the attempt count.
	Upsert(ctx context.Context, result *model.PublishResult) error
	ListByPost(ctx context.Context, postID int64) ([]*model.PublishResult, error)
}

// IAttemptLog is the append-only attempt history
type IAttemptLog interface {
	Append(ctx context.Context, attempt *model.PublishAttempt) error
	ListByPost(ctx context.Context, postID int64) ([]model.PublishAttempt, error)
}
