package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"social-publisher/domain/dto"
	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/logger"
	"social-publisher/infrastructure/metrics"
)

// PublishOutcome is the result of one publish attempt.
type PublishOutcome struct {
	PostID  int64
	Attempt int
	// Status is the aggregate status; empty while a retry is pending.
	Status  model.PostStatus
	Results []*model.PublishResult
	// Retry is set when transient failures remain and attempts are left.
	Retry     bool
	RetryAt   time.Time
	LastError string
}

// IPublishUsecase fans a posting post out to its connected platforms.
type IPublishUsecase interface {
	Publish(ctx context.Context, task model.Task) (*PublishOutcome, error)
	// Abort finalises a posting post as failed with a top-level error.
	Abort(ctx context.Context, postID int64, reason string) error
}

type PublishConfig struct {
	MaxConcurrency int
	Timeouts       Timeouts
	Retry          RetryPolicy
}

type publishUsecase struct {
	posts       repository.IPost
	connections repository.IConnection
	results     repository.IResult
	attempts    repository.IAttemptLog
	notifier    repository.IResultNotifier
	broker      ITokenBroker
	adapters    AdapterTable
	cfg         PublishConfig
	now         func() time.Time
}

func NewPublishUsecase(
	posts repository.IPost,
	connections repository.IConnection,
	results repository.IResult,
	attempts repository.IAttemptLog,
	notifier repository.IResultNotifier,
	broker ITokenBroker,
	adapters AdapterTable,
	cfg PublishConfig,
) IPublishUsecase {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 6
	}
	return &publishUsecase{
		posts:       posts,
		connections: connections,
		results:     results,
		attempts:    attempts,
		notifier:    notifier,
		broker:      broker,
		adapters:    adapters,
		cfg:         cfg,
		now:         time.Now,
	}
}

func (u *publishUsecase) Publish(ctx context.Context, task model.Task) (*PublishOutcome, error) {
	lg := logger.GetLogger().WithField("post_id", task.PostID).WithField("attempt", task.Attempt)
	post, err := u.posts.GetByID(ctx, task.PostID)
	if err != nil {
		return nil, err
	}
	if post.Status != model.PostStatusPosting {
		lg.WithField("status", post.Status).Info("Post is not posting, dropping task")
		return nil, model.ErrStaleAttempt
	}

	conns, err := u.connections.ListActiveByUser(ctx, post.UserID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	byPlatform := make(map[model.Platform]*model.PlatformConnection, len(conns))
	for _, c := range conns {
		byPlatform[c.Platform] = c
	}

	// results from earlier attempts; settled platforms are never re-run
	previous, err := u.results.ListByPost(ctx, post.ID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	current := make(map[model.Platform]*model.PublishResult, len(previous))
	for _, r := range previous {
		current[r.Platform] = r
	}

	var targets []model.Platform
	var pending []*model.PlatformConnection
	for _, p := range post.Targets() {
		prev, attempted := current[p]
		c, connected := byPlatform[p]
		switch {
		case attempted && prev.Settled():
			targets = append(targets, p)
		case connected:
			targets = append(targets, p)
			pending = append(pending, c)
		case attempted:
			// disconnected since the last attempt; its failure stands
			targets = append(targets, p)
		default:
			lg.WithField("platform", p).Info("Target platform not connected, skipping")
		}
	}

	outcome := &PublishOutcome{PostID: post.ID, Attempt: task.Attempt}
	if len(targets) == 0 {
		outcome.Status = model.PostStatusFailed
		if err := u.finish(ctx, post.ID, model.PostStatusFailed, model.ErrNoConnectedPlatforms.Error(), nil); err != nil {
			return nil, err
		}
		return outcome, nil
	}

	fresh := make([]*model.PublishResult, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.cfg.MaxConcurrency)
	for i, conn := range pending {
		g.Go(func() error {
			fresh[i] = u.publishOne(gctx, post, conn, task.Attempt)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range fresh {
		current[r.Platform] = r
	}
	for _, p := range targets {
		outcome.Results = append(outcome.Results, current[p])
	}

	summary := failureSummary(targets, current)
	if hasRetryable(fresh) && u.cfg.Retry.CanRetry(task.Attempt) {
		outcome.Retry = true
		outcome.RetryAt = u.now().Add(u.cfg.Retry.Delay(task.Attempt))
		outcome.LastError = summary
		lg.WithField("retry_at", outcome.RetryAt).Info("Transient failures, retry scheduled")
		return outcome, nil
	}

	outcome.Status = aggregate(outcome.Results)
	urls := make(map[model.Platform]string)
	for _, r := range outcome.Results {
		if r.Status == model.ResultStatusPosted && r.URL != nil {
			urls[r.Platform] = *r.URL
		}
	}
	if err := u.finish(ctx, post.ID, outcome.Status, summary, urls); err != nil {
		return nil, err
	}
	return outcome, nil
}

func (u *publishUsecase) Abort(ctx context.Context, postID int64, reason string) error {
	return u.finish(ctx, postID, model.PostStatusFailed, reason, nil)
}

func (u *publishUsecase) finish(ctx context.Context, postID int64, status model.PostStatus, summary string, urls map[model.Platform]string) error {
	var errMsg *string
	if summary != "" {
		errMsg = &summary
	}
	ok, err := u.posts.FinishAttempt(ctx, postID, status, errMsg, urls)
	if err != nil {
		return fmt.Errorf("finish post %d: %w", postID, err)
	}
	if !ok {
		logger.GetLogger().WithField("post_id", postID).Warn("Post left posting before the attempt finished")
		return nil
	}
	metrics.ObservePost(status)
	logger.GetLogger().WithField("post_id", postID).WithField("status", status).Info("Post publish finished")
	return nil
}

// publishOne never returns nil; every failure becomes a failed result.
func (u *publishUsecase) publishOne(ctx context.Context, post *model.Post, conn *model.PlatformConnection, attempt int) (res *model.PublishResult) {
	platform := conn.Platform
	content := dto.PublishContent{
		Text:      post.TextFor(platform),
		ImageURLs: post.ImageURLs,
		VideoURLs: post.VideoURLs,
	}
	started := u.now()
	lg := logger.GetLogger().WithField("post_id", post.ID).WithField("platform", platform)

	defer func() {
		if r := recover(); r != nil {
			lg.WithField("panic", r).Error("Platform publish panicked")
			res = model.NewFailedResult(post.ID, platform, content.Text,
				model.NewPublishError(platform, model.FailureInternal, "unexpected error", fmt.Errorf("panic: %v", r)))
		}
		u.record(ctx, post, res, attempt, started)
	}()

	success, err := u.callAdapter(ctx, conn, content)
	if err != nil {
		pe := model.AsPublishError(platform, err)
		lg.WithField("kind", pe.Kind).WithField("error", pe.Error()).Warn("Platform publish failed")
		return model.NewFailedResult(post.ID, platform, content.Text, pe)
	}
	posted, err := model.NewPostedResult(post.ID, platform, content.Text, *success, u.now().UTC())
	if err != nil {
		return model.NewFailedResult(post.ID, platform, content.Text,
			model.NewPublishError(platform, model.FailureInternal, "platform returned no post id", err))
	}
	lg.WithField("platform_post_id", success.PlatformPostID).Info("Platform publish succeeded")
	return posted
}

func (u *publishUsecase) callAdapter(ctx context.Context, conn *model.PlatformConnection, content dto.PublishContent) (*model.PublishSuccess, error) {
	adapter, err := u.adapters.For(conn.Platform)
	if err != nil {
		return nil, err
	}
	conn, err = u.broker.EnsureValid(ctx, conn)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, u.cfg.Timeouts.For(content))
	defer cancel()
	return adapter.Post(callCtx, conn.Credential(), content)
}

// record stores the result, appends the attempt log and notifies listeners.
// Storage errors are logged; the outcome still counts toward the aggregate.
func (u *publishUsecase) record(ctx context.Context, post *model.Post, res *model.PublishResult, attempt int, started time.Time) {
	lg := logger.GetLogger().WithField("post_id", post.ID).WithField("platform", res.Platform)
	// a cancelled run must still record what happened
	ctx = context.WithoutCancel(ctx)

	if err := u.results.Upsert(ctx, res); err != nil {
		lg.WithField("error", err).Error("Error while storing publish result")
	}

	entry := &model.PublishAttempt{
		PostID:         post.ID,
		Platform:       res.Platform,
		Attempt:        attempt,
		Status:         res.Status,
		DurationMillis: u.now().Sub(started).Milliseconds(),
		AttemptedAt:    started.UTC(),
	}
	var pe *model.PublishError
	if res.PlatformPostID != nil {
		entry.PlatformPostID = *res.PlatformPostID
	}
	if res.URL != nil {
		entry.URL = *res.URL
	}
	if res.FailureKind != nil {
		entry.FailureKind = *res.FailureKind
		pe = &model.PublishError{Platform: res.Platform, Kind: *res.FailureKind}
	}
	if res.ErrorMessage != nil {
		entry.ErrorMessage = *res.ErrorMessage
	}
	if err := u.attempts.Append(ctx, entry); err != nil {
		lg.WithField("error", err).Error("Error while appending attempt log")
	}
	metrics.ObservePlatform(res.Platform, pe, started)

	if u.notifier != nil {
		u.notifier.NotifyResult(ctx, model.NewResultEvent(post.UserID, res))
	}
}

func hasRetryable(results []*model.PublishResult) bool {
	for _, r := range results {
		if r.Status == model.ResultStatusFailed && !r.Settled() {
			return true
		}
	}
	return false
}

// aggregate is posted iff every platform succeeded, failed iff none did.
func aggregate(results []*model.PublishResult) model.PostStatus {
	posted := 0
	for _, r := range results {
		if r.Status == model.ResultStatusPosted {
			posted++
		}
	}
	switch {
	case posted == len(results):
		return model.PostStatusPosted
	case posted == 0:
		return model.PostStatusFailed
	}
	return model.PostStatusPartial
}

// failureSummary joins "PLATFORM: message" for every failed platform.
func failureSummary(order []model.Platform, results map[model.Platform]*model.PublishResult) string {
	var parts []string
	for _, p := range order {
		r := results[p]
		if r == nil || r.Status != model.ResultStatusFailed {
			continue
		}
		msg := "failed"
		if r.ErrorMessage != nil {
			msg = *r.ErrorMessage
		}
		parts = append(parts, fmt.Sprintf("%s: %s", p, msg))
	}
	return strings.Join(parts, "; ")
}
