package tiktok

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-publisher/domain/dto"
	"social-publisher/domain/model"
	"social-publisher/infrastructure/clients/media"
	"social-publisher/infrastructure/utils"
)

const videoBytes = "0123456789"

type fakeTikTok struct {
	srv       *httptest.Server
	mu        sync.Mutex
	videoInit videoInitRequest
	photoInit photoInitRequest
	uploadHdr http.Header
	uploaded  string
	polls     int
	statuses  []string
	initErr   string
}

func newFakeTikTok(t *testing.T) *fakeTikTok {
	f := &fakeTikTok{statuses: []string{"PROCESSING_UPLOAD", "PUBLISH_COMPLETE"}}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/media/") {
			w.Header().Set("Content-Type", "video/mp4")
			_, _ = w.Write([]byte(videoBytes))
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v2/post/publish/video/init/":
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.videoInit))
			if f.initErr != "" {
				_, _ = w.Write([]byte(`{"data":{},"error":{"code":"` + f.initErr + `","message":"nope"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"data":{"publish_id":"pub1","upload_url":"` + f.srv.URL + `/upload"},"error":{"code":"ok"}}`))
		case "/v2/post/publish/content/init/":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.photoInit))
			_, _ = w.Write([]byte(`{"data":{"publish_id":"pub2"},"error":{"code":"ok"}}`))
		case "/upload":
			f.uploadHdr = r.Header.Clone()
			b, _ := io.ReadAll(r.Body)
			f.uploaded = string(b)
			w.WriteHeader(http.StatusCreated)
		case "/v2/post/publish/status/fetch/":
			i := f.polls
			if i >= len(f.statuses) {
				i = len(f.statuses) - 1
			}
			f.polls++
			status := f.statuses[i]
			if status == "PUBLISH_COMPLETE" {
				_, _ = w.Write([]byte(`{"data":{"status":"PUBLISH_COMPLETE","publicaly_available_post_id":[7301234567890123456]},"error":{"code":"ok"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"data":{"status":"` + status + `","fail_reason":"video_pull_failed"},"error":{"code":"ok"}}`))
		case "/v2/user/info/":
			assert.Equal(t, "open_id", r.URL.Query().Get("fields"))
			_, _ = w.Write([]byte(`{"data":{"user":{"open_id":"o1"}},"error":{"code":"ok"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	return f
}

func (f *fakeTikTok) adapter(maxPolls int) *client {
	cfg := Config{BaseURL: f.srv.URL, Poll: utils.PollConfig{Interval: time.Millisecond, MaxAttempts: maxPolls}}
	return NewClient(cfg, f.srv.Client(), media.NewFetcher(f.srv.Client(), 0)).(*client)
}

var cred = model.Credential{AccessToken: "tok", AccountID: "o1", AccountName: "creator"}

func TestPostVideo(t *testing.T) {
	f := newFakeTikTok(t)
	defer f.srv.Close()

	res, err := f.adapter(5).Post(context.Background(), cred, dto.PublishContent{Text: "dance", VideoURLs: []string{f.srv.URL + "/media/v.mp4"}})
	require.NoError(t, err)
	assert.Equal(t, "7301234567890123456", res.PlatformPostID)
	assert.Equal(t, "https://www.tiktok.com/@creator/video/7301234567890123456", res.URL)

	assert.Equal(t, "FILE_UPLOAD", f.videoInit.SourceInfo.Source)
	assert.Equal(t, int64(len(videoBytes)), f.videoInit.SourceInfo.VideoSize)
	assert.Equal(t, 1, f.videoInit.SourceInfo.TotalChunkCount)
	assert.Equal(t, "SELF_ONLY", f.videoInit.PostInfo.PrivacyLevel)
	assert.Equal(t, "dance", f.videoInit.PostInfo.Title)

	assert.Equal(t, "video/mp4", f.uploadHdr.Get("Content-Type"))
	assert.Equal(t, "bytes 0-9/10", f.uploadHdr.Get("Content-Range"))
	assert.Equal(t, videoBytes, f.uploaded)
	assert.Equal(t, 2, f.polls)
}

func TestPostPhotos(t *testing.T) {
	f := newFakeTikTok(t)
	defer f.srv.Close()

	content := dto.PublishContent{
		Text:      "Sunday\nfull caption",
		ImageURLs: []string{"https://cdn/1.jpg", "https://cdn/2.jpg"},
		Options:   map[string]string{"privacy": "PUBLIC_TO_EVERYONE"},
	}
	_, err := f.adapter(5).Post(context.Background(), cred, content)
	require.NoError(t, err)
	assert.Equal(t, "PULL_FROM_URL", f.photoInit.SourceInfo.Source)
	assert.Equal(t, content.ImageURLs, f.photoInit.SourceInfo.PhotoImages)
	assert.Equal(t, "PHOTO", f.photoInit.MediaType)
	assert.Equal(t, "DIRECT_POST", f.photoInit.PostMode)
	assert.Equal(t, "Sunday", f.photoInit.PostInfo.Title)
	assert.Equal(t, "PUBLIC_TO_EVERYONE", f.photoInit.PostInfo.PrivacyLevel)
}

func TestPostPollTimeout(t *testing.T) {
	f := newFakeTikTok(t)
	defer f.srv.Close()
	f.statuses = []string{"PROCESSING_UPLOAD"}

	_, err := f.adapter(4).Post(context.Background(), cred, dto.PublishContent{VideoURLs: []string{f.srv.URL + "/media/v.mp4"}})
	var pe *model.PublishError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, model.FailureProcessingTimeout, pe.Kind)
	assert.Contains(t, pe.UserMessage(), "may still appear later")
	assert.Equal(t, 4, f.polls)
}

func TestPostFailedStatus(t *testing.T) {
	f := newFakeTikTok(t)
	defer f.srv.Close()
	f.statuses = []string{"FAILED"}

	_, err := f.adapter(4).Post(context.Background(), cred, dto.PublishContent{VideoURLs: []string{f.srv.URL + "/media/v.mp4"}})
	var pe *model.PublishError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, model.FailureRejected, pe.Kind)
	assert.Contains(t, pe.Message, "video_pull_failed")
}

func TestPostInitErrorCodes(t *testing.T) {
	f := newFakeTikTok(t)
	defer f.srv.Close()
	f.initErr = "access_token_invalid"

	_, err := f.adapter(4).Post(context.Background(), cred, dto.PublishContent{VideoURLs: []string{f.srv.URL + "/media/v.mp4"}})
	var pe *model.PublishError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, model.FailureAuth, pe.Kind)
	assert.Empty(t, f.uploaded)
}

func TestPostRequiresMedia(t *testing.T) {
	f := newFakeTikTok(t)
	defer f.srv.Close()

	_, err := f.adapter(4).Post(context.Background(), cred, dto.PublishContent{Text: "text only"})
	var pe *model.PublishError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, model.FailureValidation, pe.Kind)
}

func TestValidateToken(t *testing.T) {
	f := newFakeTikTok(t)
	defer f.srv.Close()
	assert.True(t, f.adapter(1).ValidateToken(context.Background(), cred))
}

func TestPostDeadlineWhileProcessing(t *testing.T) {
	f := newFakeTikTok(t)
	defer f.srv.Close()
	f.statuses = []string{"PROCESSING_DOWNLOAD"}

	cfg := Config{BaseURL: f.srv.URL, Poll: utils.PollConfig{Interval: 50 * time.Millisecond, MaxAttempts: 60}}
	c := NewClient(cfg, f.srv.Client(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err := c.Post(ctx, cred, dto.PublishContent{Text: "photos", ImageURLs: []string{"https://cdn/1.jpg"}})
	var pe *model.PublishError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, model.FailureProcessingTimeout, pe.Kind)
	assert.False(t, pe.Kind.Retryable())

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Positive(t, f.polls)
	assert.Less(t, f.polls, 60)
}

func TestPostSentToInbox(t *testing.T) {
	f := newFakeTikTok(t)
	defer f.srv.Close()
	f.statuses = []string{"PROCESSING_UPLOAD", "SEND_TO_USER_INBOX"}

	_, err := f.adapter(5).Post(context.Background(), cred, dto.PublishContent{VideoURLs: []string{f.srv.URL + "/media/v.mp4"}})
	var pe *model.PublishError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, model.FailureRejected, pe.Kind)
	assert.Contains(t, pe.Message, "inbox")
}
