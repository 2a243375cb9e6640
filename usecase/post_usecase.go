package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"social-publisher/domain/dto"
	"social-publisher/domain/model"
	"social-publisher/domain/repository"
)

// PostView is a post with its per-platform results.
type PostView struct {
	*model.Post
	Results []*model.PublishResult `json:"results"`
}

type IPostUsecase interface {
	Create(ctx context.Context, userID string, req dto.CreatePostRequest) (*model.Post, error)
	Get(ctx context.Context, userID string, id int64) (*PostView, error)
	Schedule(ctx context.Context, userID string, id int64, at time.Time) (*model.Post, error)
	// PublishNow moves a draft or scheduled post to posting and queues it.
	PublishNow(ctx context.Context, userID string, id int64) (*model.Post, error)
	Attempts(ctx context.Context, userID string, id int64) ([]model.PublishAttempt, error)
}

type postUsecase struct {
	posts    repository.IPost
	results  repository.IResult
	attempts repository.IAttemptLog
	queue    repository.ITaskQueue
	now      func() time.Time
}

func NewPostUsecase(posts repository.IPost, results repository.IResult, attempts repository.IAttemptLog, queue repository.ITaskQueue) IPostUsecase {
	return &postUsecase{posts: posts, results: results, attempts: attempts, queue: queue, now: time.Now}
}

func (u *postUsecase) Create(ctx context.Context, userID string, req dto.CreatePostRequest) (*model.Post, error) {
	post := &model.Post{
		UserID:    userID,
		Text:      req.Text,
		ImageURLs: trimURLs(req.ImageURLs),
		VideoURLs: trimURLs(req.VideoURLs),
		Status:    model.PostStatusDraft,
	}
	for _, raw := range req.Platforms {
		p, err := model.ParsePlatform(raw)
		if err != nil {
			return nil, err
		}
		post.Platforms = append(post.Platforms, p)
	}
	post.Platforms = post.Targets()
	if len(req.EnhancedText) > 0 {
		post.EnhancedText = make(map[model.Platform]string, len(req.EnhancedText))
		for raw, text := range req.EnhancedText {
			p, err := model.ParsePlatform(raw)
			if err != nil {
				return nil, err
			}
			post.EnhancedText[p] = text
		}
	}
	if req.ScheduledFor != nil {
		if !req.ScheduledFor.After(u.now()) {
			return nil, model.ErrScheduleInPast
		}
		at := req.ScheduledFor.UTC()
		post.ScheduledFor = &at
		post.Status = model.PostStatusScheduled
	}
	if err := post.Validate(); err != nil {
		return nil, err
	}
	if err := u.posts.Create(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

func (u *postUsecase) owned(ctx context.Context, userID string, id int64) (*model.Post, error) {
	post, err := u.posts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if post.UserID != userID {
		return nil, model.ErrPostNotFound
	}
	return post, nil
}

func (u *postUsecase) Get(ctx context.Context, userID string, id int64) (*PostView, error) {
	post, err := u.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	results, err := u.results.ListByPost(ctx, id)
	if err != nil {
		return nil, err
	}
	return &PostView{Post: post, Results: results}, nil
}

func (u *postUsecase) Schedule(ctx context.Context, userID string, id int64, at time.Time) (*model.Post, error) {
	if !at.After(u.now()) {
		return nil, model.ErrScheduleInPast
	}
	if _, err := u.owned(ctx, userID, id); err != nil {
		return nil, err
	}
	ok, err := u.posts.Reschedule(ctx, id, at)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.ErrInvalidTransition
	}
	return u.posts.GetByID(ctx, id)
}

func (u *postUsecase) PublishNow(ctx context.Context, userID string, id int64) (*model.Post, error) {
	if _, err := u.owned(ctx, userID, id); err != nil {
		return nil, err
	}
	from := []model.PostStatus{model.PostStatusDraft, model.PostStatusScheduled}
	ok, err := u.posts.TransitionStatus(ctx, id, from, model.PostStatusPosting)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.ErrInvalidTransition
	}
	if err := u.queue.EnqueuePublish(ctx, id); err != nil {
		failEnqueue(ctx, u.posts, id, err)
		return nil, fmt.Errorf("queue publish: %w", err)
	}
	return u.posts.GetByID(ctx, id)
}

func (u *postUsecase) Attempts(ctx context.Context, userID string, id int64) ([]model.PublishAttempt, error) {
	if _, err := u.owned(ctx, userID, id); err != nil {
		return nil, err
	}
	return u.attempts.ListByPost(ctx, id)
}

func trimURLs(in []string) []string {
	out := make([]string, 0, len(in))
	for _, u := range in {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}
