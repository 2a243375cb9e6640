package usecase

import (
	"context"
	"fmt"
	"time"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/logger"
)

// ISchedulerUsecase promotes due scheduled posts into publish tasks.
type ISchedulerUsecase interface {
	// Sweep claims every due scheduled post and enqueues it. It returns the
	// number of posts claimed by this caller.
	Sweep(ctx context.Context) (int, error)
	// RunSweep is the recurring job body: sweep, then enqueue the next sweep.
	RunSweep(ctx context.Context) error
	// Bootstrap seeds the recurring sweep job.
	Bootstrap(ctx context.Context) error
}

type schedulerUsecase struct {
	posts     repository.IPost
	queue     repository.ITaskQueue
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func NewSchedulerUsecase(posts repository.IPost, queue repository.ITaskQueue, interval time.Duration, batchSize int) ISchedulerUsecase {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &schedulerUsecase{posts: posts, queue: queue, interval: interval, batchSize: batchSize, now: time.Now}
}

func (u *schedulerUsecase) Sweep(ctx context.Context) (int, error) {
	now := u.now().UTC()
	due, err := u.posts.ListDueScheduled(ctx, now, u.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list due posts: %w", err)
	}
	claimed := 0
	for _, post := range due {
		ok, err := u.posts.TransitionStatus(ctx, post.ID, []model.PostStatus{model.PostStatusScheduled}, model.PostStatusPosting)
		if err != nil {
			logger.GetLogger().WithField("post_id", post.ID).WithField("error", err).Error("Error while claiming scheduled post")
			continue
		}
		if !ok {
			// another sweeper won, or the post was rescheduled or published
			continue
		}
		claimed++
		if err := u.queue.EnqueuePublish(ctx, post.ID); err != nil {
			failEnqueue(ctx, u.posts, post.ID, err)
		}
	}
	if claimed > 0 {
		logger.GetLogger().WithField("claimed", claimed).WithField("due", len(due)).Info("Scheduled posts promoted")
	}
	return claimed, nil
}

func (u *schedulerUsecase) RunSweep(ctx context.Context) error {
	_, sweepErr := u.Sweep(ctx)
	if err := u.queue.EnqueueSweep(ctx, u.now().Add(u.interval)); err != nil {
		return fmt.Errorf("enqueue next sweep: %w", err)
	}
	return sweepErr
}

func (u *schedulerUsecase) Bootstrap(ctx context.Context) error {
	return u.queue.EnqueueSweep(ctx, u.now())
}

// failEnqueue finalises a claimed post whose publish task could not be
// queued, so it does not sit in posting forever.
func failEnqueue(ctx context.Context, posts repository.IPost, postID int64, cause error) {
	lg := logger.GetLogger().WithField("post_id", postID).WithField("error", cause)
	lg.Error("Error while enqueueing publish task")
	msg := "could not queue publish task: " + cause.Error()
	if _, err := posts.FinishAttempt(ctx, postID, model.PostStatusFailed, &msg, nil); err != nil {
		lg.WithField("finish_error", err).Error("Error while failing unqueued post")
	}
}
