package media

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-publisher/domain/model"
)

func newMediaServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/image.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("\x89PNG\r\n\x1a\nfake"))
		case "/raw":
			_, _ = w.Write([]byte("GIF89a-raw-bytes"))
		case "/empty":
			w.WriteHeader(http.StatusOK)
		case "/big":
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		case "/slow":
			time.Sleep(200 * time.Millisecond)
			_, _ = w.Write([]byte("late"))
		case "/down":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestFetcherDownload(t *testing.T) {
	srv := newMediaServer()
	defer srv.Close()
	f := NewFetcher(srv.Client(), 32)
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		file, err := f.Download(ctx, srv.URL+"/image.png", time.Second)
		require.NoError(t, err)
		assert.Equal(t, "image/png", file.ContentType)
		assert.Equal(t, int64(12), file.Size())
	})

	t.Run("sniffs_content_type", func(t *testing.T) {
		file, err := f.Download(ctx, srv.URL+"/raw", time.Second)
		require.NoError(t, err)
		assert.Equal(t, "image/gif", file.ContentType)
	})

	t.Run("empty_is_distinct", func(t *testing.T) {
		_, err := f.Download(ctx, srv.URL+"/empty", time.Second)
		require.ErrorIs(t, err, ErrEmptyMedia)
		assert.Equal(t, model.FailureRejected, AsPublishError(model.PlatformTwitter, err).Kind)
	})

	t.Run("too_large", func(t *testing.T) {
		_, err := f.Download(ctx, srv.URL+"/big", time.Second)
		require.ErrorIs(t, err, ErrMediaTooLarge)
		assert.Equal(t, model.FailureValidation, AsPublishError(model.PlatformTwitter, err).Kind)
	})

	t.Run("timeout", func(t *testing.T) {
		_, err := f.Download(ctx, srv.URL+"/slow", 20*time.Millisecond)
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "deadline"))
		assert.Equal(t, model.FailureTransient, AsPublishError(model.PlatformTikTok, err).Kind)
	})

	t.Run("http_failures", func(t *testing.T) {
		_, err := f.Download(ctx, srv.URL+"/missing", time.Second)
		var fe *FetchError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, http.StatusNotFound, fe.StatusCode)
		assert.Equal(t, model.FailureRejected, AsPublishError(model.PlatformLinkedIn, err).Kind)

		_, err = f.Download(ctx, srv.URL+"/down", time.Second)
		assert.Equal(t, model.FailureTransient, AsPublishError(model.PlatformLinkedIn, err).Kind)
	})
}

func TestDownloadAll(t *testing.T) {
	srv := newMediaServer()
	defer srv.Close()
	f := NewFetcher(srv.Client(), 0)

	files, err := DownloadAll(context.Background(), f, []string{srv.URL + "/image.png", srv.URL + "/raw"}, time.Second)
	require.NoError(t, err)
	assert.Len(t, files, 2)

	_, err = DownloadAll(context.Background(), f, []string{srv.URL + "/image.png", srv.URL + "/missing"}, time.Second)
	require.Error(t, err)
}
