package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"social-publisher/domain/dto"
	"social-publisher/domain/model"
	httpHandler "social-publisher/interfaces/http"
	"social-publisher/usecase"
)

type MockPostUsecase struct{ mock.Mock }

func (m *MockPostUsecase) Create(ctx context.Context, userID string, req dto.CreatePostRequest) (*model.Post, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Post), args.Error(1)
}

func (m *MockPostUsecase) Get(ctx context.Context, userID string, id int64) (*usecase.PostView, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.PostView), args.Error(1)
}

func (m *MockPostUsecase) Schedule(ctx context.Context, userID string, id int64, at time.Time) (*model.Post, error) {
	args := m.Called(ctx, userID, id, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Post), args.Error(1)
}

func (m *MockPostUsecase) PublishNow(ctx context.Context, userID string, id int64) (*model.Post, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Post), args.Error(1)
}

func (m *MockPostUsecase) Attempts(ctx context.Context, userID string, id int64) ([]model.PublishAttempt, error) {
	args := m.Called(ctx, userID, id)
	return args.Get(0).([]model.PublishAttempt), args.Error(1)
}

type MockConnectionUsecase struct{ mock.Mock }

func (m *MockConnectionUsecase) Connect(ctx context.Context, userID string, req dto.ConnectRequest) (*model.PlatformConnection, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PlatformConnection), args.Error(1)
}

func (m *MockConnectionUsecase) List(ctx context.Context, userID string) ([]*model.PlatformConnection, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]*model.PlatformConnection), args.Error(1)
}

func (m *MockConnectionUsecase) Disconnect(ctx context.Context, userID string, id int64) error {
	args := m.Called(ctx, userID, id)
	return args.Error(0)
}

func (m *MockConnectionUsecase) Validate(ctx context.Context, userID string, id int64) (bool, error) {
	args := m.Called(ctx, userID, id)
	return args.Bool(0), args.Error(1)
}

func init() {
	gin.SetMode(gin.TestMode)
}

// newRouter mounts the handlers behind a stub auth that sets user_id.
func newRouter(posts httpHandler.IPostHandler, conns httpHandler.IConnectionHandler) *gin.Engine {
	r := gin.New()
	api := r.Group("/api", func(c *gin.Context) {
		if uid := c.GetHeader("X-User"); uid != "" {
			c.Set("user_id", uid)
		}
		c.Next()
	})
	api.POST("/posts", posts.Create)
	api.GET("/posts/:id", posts.Get)
	api.POST("/posts/:id/schedule", posts.Schedule)
	api.POST("/posts/:id/publish", posts.Publish)
	api.GET("/posts/:id/attempts", posts.Attempts)
	api.POST("/connections", conns.Connect)
	api.GET("/connections", conns.List)
	api.DELETE("/connections/:id", conns.Disconnect)
	api.POST("/connections/:id/validate", conns.Validate)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User", "user-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPostHandler_Create(t *testing.T) {
	posts := new(MockPostUsecase)
	r := newRouter(httpHandler.NewPostHandler(posts), httpHandler.NewConnectionHandler(new(MockConnectionUsecase)))
	req := dto.CreatePostRequest{Text: "Hello World", Platforms: []string{"twitter"}}
	posts.On("Create", mock.Anything, "user-1", req).
		Return(&model.Post{ID: 1, UserID: "user-1", Text: "Hello World", Platforms: []model.Platform{model.PlatformTwitter}, Status: model.PostStatusDraft}, nil)

	w := do(r, http.MethodPost, "/api/posts", `{"text":"Hello World","platforms":["twitter"]}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var got model.Post
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, int64(1), got.ID)
	assert.Equal(t, model.PostStatusDraft, got.Status)
}

func TestPostHandler_CreateErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"missing text", `{"platforms":["twitter"]}`, nil, http.StatusBadRequest},
		{"unsupported platform", `{"text":"x","platforms":["myspace"]}`, model.ErrUnsupportedPlatform, http.StatusBadRequest},
		{"storage failure", `{"text":"x","platforms":["twitter"]}`, errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			posts := new(MockPostUsecase)
			if tt.err != nil {
				posts.On("Create", mock.Anything, "user-1", mock.Anything).Return(nil, tt.err)
			}
			r := newRouter(httpHandler.NewPostHandler(posts), httpHandler.NewConnectionHandler(new(MockConnectionUsecase)))
			w := do(r, http.MethodPost, "/api/posts", tt.body)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestPostHandler_GetWithResults(t *testing.T) {
	posts := new(MockPostUsecase)
	r := newRouter(httpHandler.NewPostHandler(posts), httpHandler.NewConnectionHandler(new(MockConnectionUsecase)))
	id := "12345"
	posts.On("Get", mock.Anything, "user-1", int64(7)).Return(&usecase.PostView{
		Post:    &model.Post{ID: 7, UserID: "user-1", Status: model.PostStatusPosted},
		Results: []*model.PublishResult{{PostID: 7, Platform: model.PlatformTwitter, Status: model.ResultStatusPosted, PlatformPostID: &id}},
	}, nil)

	w := do(r, http.MethodGet, "/api/posts/7", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		ID      int64                  `json:"id"`
		Status  string                 `json:"status"`
		Results []*model.PublishResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(7), body.ID)
	assert.Equal(t, "posted", body.Status)
	require.Len(t, body.Results, 1)
	assert.Equal(t, "12345", *body.Results[0].PlatformPostID)
}

func TestPostHandler_GetNotFoundAndBadID(t *testing.T) {
	posts := new(MockPostUsecase)
	r := newRouter(httpHandler.NewPostHandler(posts), httpHandler.NewConnectionHandler(new(MockConnectionUsecase)))
	posts.On("Get", mock.Anything, "user-1", int64(8)).Return(nil, model.ErrPostNotFound)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/posts/8", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/posts/abc", "").Code)
}

func TestPostHandler_Publish(t *testing.T) {
	posts := new(MockPostUsecase)
	r := newRouter(httpHandler.NewPostHandler(posts), httpHandler.NewConnectionHandler(new(MockConnectionUsecase)))
	posts.On("PublishNow", mock.Anything, "user-1", int64(1)).Return(&model.Post{ID: 1, Status: model.PostStatusPosting}, nil).Once()
	posts.On("PublishNow", mock.Anything, "user-1", int64(1)).Return(nil, model.ErrInvalidTransition).Once()

	assert.Equal(t, http.StatusAccepted, do(r, http.MethodPost, "/api/posts/1/publish", "").Code)
	assert.Equal(t, http.StatusConflict, do(r, http.MethodPost, "/api/posts/1/publish", "").Code)
}

func TestPostHandler_Schedule(t *testing.T) {
	posts := new(MockPostUsecase)
	r := newRouter(httpHandler.NewPostHandler(posts), httpHandler.NewConnectionHandler(new(MockConnectionUsecase)))
	at := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	posts.On("Schedule", mock.Anything, "user-1", int64(1), at).Return(&model.Post{ID: 1, ScheduledFor: &at, Status: model.PostStatusScheduled}, nil)

	w := do(r, http.MethodPost, "/api/posts/1/schedule", `{"scheduled_for":"2030-01-02T03:04:05Z"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	posts.AssertExpectations(t)
}

func TestPostHandler_Attempts(t *testing.T) {
	posts := new(MockPostUsecase)
	r := newRouter(httpHandler.NewPostHandler(posts), httpHandler.NewConnectionHandler(new(MockConnectionUsecase)))
	posts.On("Attempts", mock.Anything, "user-1", int64(1)).Return([]model.PublishAttempt(nil), nil)

	w := do(r, http.MethodGet, "/api/posts/1/attempts", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"post_id":1,"attempts":[]}`, w.Body.String())
}

func TestPostHandler_RequiresUser(t *testing.T) {
	r := newRouter(httpHandler.NewPostHandler(new(MockPostUsecase)), httpHandler.NewConnectionHandler(new(MockConnectionUsecase)))
	req := httptest.NewRequest(http.MethodGet, "/api/posts/1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestConnectionHandler(t *testing.T) {
	conns := new(MockConnectionUsecase)
	r := newRouter(httpHandler.NewPostHandler(new(MockPostUsecase)), httpHandler.NewConnectionHandler(conns))

	conns.On("Connect", mock.Anything, "user-1", dto.ConnectRequest{Platform: "twitter", AccessToken: "tok"}).
		Return(nil, model.ErrInvalidCredential)
	conns.On("List", mock.Anything, "user-1").Return([]*model.PlatformConnection{{ID: 1, Platform: model.PlatformTikTok, AccessToken: "secret", IsActive: true}}, nil)
	conns.On("Disconnect", mock.Anything, "user-1", int64(1)).Return(nil)
	conns.On("Disconnect", mock.Anything, "user-1", int64(2)).Return(model.ErrConnectionNotFound)
	conns.On("Validate", mock.Anything, "user-1", int64(1)).Return(true, nil)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/connections", `{"platform":"twitter","access_token":"tok"}`).Code)

	w := do(r, http.MethodGet, "/api/connections", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "secret")
	assert.Contains(t, w.Body.String(), `"platform":"TIKTOK"`)

	assert.Equal(t, http.StatusNoContent, do(r, http.MethodDelete, "/api/connections/1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodDelete, "/api/connections/2", "").Code)

	w = do(r, http.MethodPost, "/api/connections/1/validate", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":1,"valid":true}`, w.Body.String())
}

type failingPinger struct{ err error }

func (p failingPinger) PingContext(context.Context) error { return p.err }

func TestHealthHandler(t *testing.T) {
	for name, tc := range map[string]struct {
		db   httpHandler.Pinger
		want int
	}{
		"no db":   {nil, http.StatusOK},
		"healthy": {failingPinger{}, http.StatusOK},
		"down":    {failingPinger{err: errors.New("connection refused")}, http.StatusServiceUnavailable},
	} {
		t.Run(name, func(t *testing.T) {
			r := gin.New()
			r.GET("/healthz", httpHandler.NewHealthHandler(tc.db).Healthz)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, tc.want, w.Code)
		})
	}
}
