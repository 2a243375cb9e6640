package usecase_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"social-publisher/domain/dto"
	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/usecase"
)

type MockPostRepository struct{ mock.Mock }

func (m *MockPostRepository) Create(ctx context.Context, post *model.Post) error {
	args := m.Called(ctx, post)
	return args.Error(0)
}

func (m *MockPostRepository) GetByID(ctx context.Context, id int64) (*model.Post, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Post), args.Error(1)
}

func (m *MockPostRepository) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*model.Post, error) {
	args := m.Called(ctx, now, limit)
	return args.Get(0).([]*model.Post), args.Error(1)
}

func (m *MockPostRepository) TransitionStatus(ctx context.Context, id int64, from []model.PostStatus, to model.PostStatus) (bool, error) {
	args := m.Called(ctx, id, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *MockPostRepository) Reschedule(ctx context.Context, id int64, at time.Time) (bool, error) {
	args := m.Called(ctx, id, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockPostRepository) FinishAttempt(ctx context.Context, id int64, status model.PostStatus, errMsg *string, urls map[model.Platform]string) (bool, error) {
	args := m.Called(ctx, id, status, errMsg, urls)
	return args.Bool(0), args.Error(1)
}

type MockConnectionRepository struct{ mock.Mock }

func (m *MockConnectionRepository) Connect(ctx context.Context, conn *model.PlatformConnection) error {
	args := m.Called(ctx, conn)
	return args.Error(0)
}

func (m *MockConnectionRepository) GetByID(ctx context.Context, id int64) (*model.PlatformConnection, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PlatformConnection), args.Error(1)
}

func (m *MockConnectionRepository) ListActiveByUser(ctx context.Context, userID string) ([]*model.PlatformConnection, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]*model.PlatformConnection), args.Error(1)
}

func (m *MockConnectionRepository) UpdateCredentials(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt *time.Time) error {
	args := m.Called(ctx, id, accessToken, refreshToken, expiresAt)
	return args.Error(0)
}

func (m *MockConnectionRepository) Deactivate(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockResultRepository struct{ mock.Mock }

func (m *MockResultRepository) Upsert(ctx context.Context, result *model.PublishResult) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

func (m *MockResultRepository) ListByPost(ctx context.Context, postID int64) ([]*model.PublishResult, error) {
	args := m.Called(ctx, postID)
	return args.Get(0).([]*model.PublishResult), args.Error(1)
}

type MockAttemptLog struct{ mock.Mock }

func (m *MockAttemptLog) Append(ctx context.Context, attempt *model.PublishAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

func (m *MockAttemptLog) ListByPost(ctx context.Context, postID int64) ([]model.PublishAttempt, error) {
	args := m.Called(ctx, postID)
	return args.Get(0).([]model.PublishAttempt), args.Error(1)
}

type MockNotifier struct{ mock.Mock }

func (m *MockNotifier) NotifyResult(ctx context.Context, event model.ResultEvent) {
	m.Called(ctx, event)
}

type MockAdapter struct {
	mock.Mock
	platform model.Platform
}

func (m *MockAdapter) Platform() model.Platform { return m.platform }

func (m *MockAdapter) Post(ctx context.Context, cred model.Credential, content dto.PublishContent) (*model.PublishSuccess, error) {
	args := m.Called(ctx, cred, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PublishSuccess), args.Error(1)
}

func (m *MockAdapter) ValidateToken(ctx context.Context, cred model.Credential) bool {
	args := m.Called(ctx, cred)
	return args.Bool(0)
}

type MockRefresher struct{ mock.Mock }

func (m *MockRefresher) Refresh(ctx context.Context, conn *model.PlatformConnection) (*repository.RefreshedToken, error) {
	args := m.Called(ctx, conn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.RefreshedToken), args.Error(1)
}

type MockTaskQueue struct{ mock.Mock }

func (m *MockTaskQueue) EnqueuePublish(ctx context.Context, postID int64) error {
	args := m.Called(ctx, postID)
	return args.Error(0)
}

func (m *MockTaskQueue) EnqueueRetry(ctx context.Context, task model.Task, runAt time.Time, lastErr string) error {
	args := m.Called(ctx, task, runAt, lastErr)
	return args.Error(0)
}

func (m *MockTaskQueue) EnqueueSweep(ctx context.Context, runAt time.Time) error {
	args := m.Called(ctx, runAt)
	return args.Error(0)
}

type MockJobSource struct{ mock.Mock }

func (m *MockJobSource) Claim(ctx context.Context, now time.Time) (*model.Job, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Job), args.Error(1)
}

func (m *MockJobSource) Complete(ctx context.Context, jobID int64) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *MockJobSource) Fail(ctx context.Context, jobID int64, errMsg string) error {
	args := m.Called(ctx, jobID, errMsg)
	return args.Error(0)
}

func (m *MockJobSource) RequeueStale(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

type MockPublishUsecase struct{ mock.Mock }

func (m *MockPublishUsecase) Publish(ctx context.Context, task model.Task) (*usecase.PublishOutcome, error) {
	args := m.Called(ctx, task)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.PublishOutcome), args.Error(1)
}

func (m *MockPublishUsecase) Abort(ctx context.Context, postID int64, reason string) error {
	args := m.Called(ctx, postID, reason)
	return args.Error(0)
}

type MockScheduler struct{ mock.Mock }

func (m *MockScheduler) Sweep(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockScheduler) RunSweep(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockScheduler) Bootstrap(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
