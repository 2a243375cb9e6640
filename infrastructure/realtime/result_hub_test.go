package realtime

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-publisher/domain/model"
)

func newStreamServer(h *Hub, userID string) *httptest.Server {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/stream", func(c *gin.Context) {
		if userID != "" {
			c.Set("user_id", userID)
		}
		h.Serve(c)
	})
	return httptest.NewServer(r)
}

func TestHub_StreamsOwnEvents(t *testing.T) {
	hub := NewResultHub()
	srv := newStreamServer(hub, "user-1")
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ":ok\n", line)

	require.Eventually(t, func() bool { return hub.Subscribers("user-1") == 1 }, time.Second, 10*time.Millisecond)

	hub.NotifyResult(ctx, model.ResultEvent{Type: "publish_result", UserID: "someone-else", PostID: 99})
	hub.NotifyResult(ctx, model.ResultEvent{Type: "publish_result", UserID: "user-1", PostID: 1, Platform: model.PlatformTwitter, Status: model.ResultStatusPosted})

	var got []string
	for len(got) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		if line != "" {
			got = append(got, line)
		}
	}
	assert.Equal(t, "event: publish_result", got[0])
	assert.Contains(t, got[1], `"post_id":1`)
	assert.NotContains(t, got[1], `"post_id":99`)

	cancel()
	assert.Eventually(t, func() bool { return hub.Subscribers("user-1") == 0 }, time.Second, 10*time.Millisecond)
}

func TestHub_RequiresUser(t *testing.T) {
	srv := newStreamServer(NewResultHub(), "")
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
