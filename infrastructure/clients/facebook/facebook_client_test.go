package facebook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-publisher/domain/dto"
	"social-publisher/domain/model"
	"social-publisher/infrastructure/clients/media"
)

type recorded struct {
	path string
	form url.Values
}

type fakeGraph struct {
	srv  *httptest.Server
	mu   sync.Mutex
	reqs []recorded
	n    int
}

func newFakeGraph(t *testing.T) *fakeGraph {
	f := &fakeGraph{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/media/") {
			_, _ = w.Write([]byte("video-bytes"))
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		rec := recorded{path: r.URL.Path}
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			assert.NoError(t, r.ParseMultipartForm(1<<20))
			rec.form = url.Values(r.MultipartForm.Value)
			_, _, err := r.FormFile("source")
			assert.NoError(t, err)
		} else if r.Method == http.MethodPost {
			assert.NoError(t, r.ParseForm())
			rec.form = r.PostForm
		}
		f.reqs = append(f.reqs, rec)
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.URL.Path == "/v19.0/me":
			if r.URL.Query().Get("access_token") != "page-token" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":{"message":"Invalid OAuth access token.","code":190}}`))
				return
			}
			_, _ = w.Write([]byte(`{"id":"page1"}`))
		case r.URL.Path == "/v19.0/page1/feed":
			_, _ = w.Write([]byte(`{"id":"page1_900"}`))
		case r.URL.Path == "/v19.0/page1/photos":
			f.n++
			if rec.form.Get("published") == "false" {
				_, _ = w.Write([]byte(`{"id":"photo` + string(rune('0'+f.n)) + `"}`))
				return
			}
			_, _ = w.Write([]byte(`{"id":"photo1","post_id":"page1_901"}`))
		case r.URL.Path == "/v19.0/page1/videos":
			_, _ = w.Write([]byte(`{"id":"vid77"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"Unsupported post request."}}`))
		}
	}))
	return f
}

func (f *fakeGraph) adapter() *client {
	return NewClient(Config{GraphBaseURL: f.srv.URL, VideoBaseURL: f.srv.URL}, f.srv.Client(), media.NewFetcher(f.srv.Client(), 0)).(*client)
}

var cred = model.Credential{AccessToken: "page-token", AccountID: "page1"}

func TestPostText(t *testing.T) {
	f := newFakeGraph(t)
	defer f.srv.Close()

	res, err := f.adapter().Post(context.Background(), cred, dto.PublishContent{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "page1_900", res.PlatformPostID)
	assert.Equal(t, "https://www.facebook.com/page1_900", res.URL)
	require.Len(t, f.reqs, 1)
	assert.Equal(t, "hello", f.reqs[0].form.Get("message"))
	assert.Equal(t, "page-token", f.reqs[0].form.Get("access_token"))
}

func TestPostSinglePhoto(t *testing.T) {
	f := newFakeGraph(t)
	defer f.srv.Close()

	res, err := f.adapter().Post(context.Background(), cred, dto.PublishContent{Text: "look", ImageURLs: []string{"https://cdn/x.jpg"}})
	require.NoError(t, err)
	assert.Equal(t, "page1_901", res.PlatformPostID)
	assert.Equal(t, "https://cdn/x.jpg", f.reqs[0].form.Get("url"))
	assert.Equal(t, "look", f.reqs[0].form.Get("caption"))
}

func TestPostAlbum(t *testing.T) {
	f := newFakeGraph(t)
	defer f.srv.Close()

	res, err := f.adapter().Post(context.Background(), cred, dto.PublishContent{Text: "album", ImageURLs: []string{"https://cdn/1.jpg", "https://cdn/2.jpg"}})
	require.NoError(t, err)
	assert.Equal(t, "page1_900", res.PlatformPostID)
	require.Len(t, f.reqs, 3)
	feed := f.reqs[2].form
	assert.Equal(t, `{"media_fbid":"photo1"}`, feed.Get("attached_media[0]"))
	assert.Equal(t, `{"media_fbid":"photo2"}`, feed.Get("attached_media[1]"))
	assert.Equal(t, "album", feed.Get("message"))
}

func TestPostVideo(t *testing.T) {
	f := newFakeGraph(t)
	defer f.srv.Close()

	res, err := f.adapter().Post(context.Background(), cred, dto.PublishContent{Text: "clip", VideoURLs: []string{f.srv.URL + "/media/v.mp4"}})
	require.NoError(t, err)
	assert.Equal(t, "vid77", res.PlatformPostID)
	assert.Equal(t, "clip", f.reqs[0].form.Get("description"))
}

func TestPostRequiresPage(t *testing.T) {
	f := newFakeGraph(t)
	defer f.srv.Close()

	_, err := f.adapter().Post(context.Background(), model.Credential{AccessToken: "t"}, dto.PublishContent{Text: "x"})
	var pe *model.PublishError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, model.FailureConfig, pe.Kind)
	assert.Empty(t, f.reqs)
}

func TestPostTooManyImages(t *testing.T) {
	f := newFakeGraph(t)
	defer f.srv.Close()

	_, err := f.adapter().Post(context.Background(), cred, dto.PublishContent{ImageURLs: make([]string, 11)})
	var pe *model.PublishError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, model.FailureValidation, pe.Kind)
}

func TestValidateToken(t *testing.T) {
	f := newFakeGraph(t)
	defer f.srv.Close()

	a := f.adapter()
	assert.True(t, a.ValidateToken(context.Background(), cred))
	assert.False(t, a.ValidateToken(context.Background(), model.Credential{AccessToken: "bad"}))
}
