package facebook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/google/go-querystring/query"

	"social-publisher/domain/dto"
	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/clients/apiclient"
	"social-publisher/infrastructure/clients/media"
)

const (
	defaultGraphBaseURL = "https://graph.facebook.com"
	defaultVideoBaseURL = "https://graph-video.facebook.com"
	defaultVersion      = "v19.0"
)

var Limits = model.MediaLimits{MaxTextLength: 63206, MaxImages: 10, MaxVideos: 1}

type Config struct {
	GraphBaseURL string
	VideoBaseURL string
	Version      string
	VideoTimeout time.Duration
}

type client struct {
	cfg     Config
	api     *apiclient.Client
	fetcher repository.IMediaFetcher
}

func NewClient(cfg Config, httpClient *http.Client, fetcher repository.IMediaFetcher) repository.IPlatformAdapter {
	if cfg.GraphBaseURL == "" {
		cfg.GraphBaseURL = defaultGraphBaseURL
	}
	if cfg.VideoBaseURL == "" {
		cfg.VideoBaseURL = defaultVideoBaseURL
	}
	if cfg.Version == "" {
		cfg.Version = defaultVersion
	}
	if cfg.VideoTimeout <= 0 {
		cfg.VideoTimeout = 10 * time.Minute
	}
	return &client{cfg: cfg, api: apiclient.New(model.PlatformFacebook, httpClient), fetcher: fetcher}
}

func (c *client) Platform() model.Platform { return model.PlatformFacebook }

type feedParams struct {
	Message     string `url:"message,omitempty"`
	AccessToken string `url:"access_token"`
}

type photoParams struct {
	URL         string `url:"url"`
	Caption     string `url:"caption,omitempty"`
	Published   *bool  `url:"published,omitempty"`
	AccessToken string `url:"access_token"`
}

type graphResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

func (c *client) Post(ctx context.Context, cred model.Credential, content dto.PublishContent) (*model.PublishSuccess, error) {
	if cred.AccountID == "" {
		return nil, model.NewConfigError(model.PlatformFacebook, "no Facebook page selected for this connection")
	}
	if err := Limits.Validate(model.PlatformFacebook, content.Text, len(content.ImageURLs), len(content.VideoURLs)); err != nil {
		return nil, err
	}

	var (
		id  string
		err error
	)
	switch {
	case content.HasVideo():
		id, err = c.postVideo(ctx, cred, content.Text, content.VideoURLs[0])
	case len(content.ImageURLs) == 1:
		id, err = c.postPhoto(ctx, cred, content.Text, content.ImageURLs[0])
	case len(content.ImageURLs) > 1:
		id, err = c.postAlbum(ctx, cred, content.Text, content.ImageURLs)
	default:
		id, err = c.postFeed(ctx, cred, feedParams{Message: content.Text, AccessToken: cred.AccessToken}, nil)
	}
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, model.NewPublishError(model.PlatformFacebook, model.FailureRejected, "Graph API returned no post id", nil)
	}
	return &model.PublishSuccess{PlatformPostID: id, URL: "https://www.facebook.com/" + id}, nil
}

func (c *client) ValidateToken(ctx context.Context, cred model.Credential) bool {
	endpoint := c.graphURL("me") + "?" + url.Values{"access_token": {cred.AccessToken}}.Encode()
	_, err := c.api.Get(ctx, endpoint, nil, nil)
	return err == nil
}

func (c *client) graphURL(parts ...string) string {
	return c.cfg.GraphBaseURL + "/" + path.Join(append([]string{c.cfg.Version}, parts...)...)
}

func (c *client) postFeed(ctx context.Context, cred model.Credential, params feedParams, extra url.Values) (string, error) {
	form, err := query.Values(params)
	if err != nil {
		return "", model.NewPublishError(model.PlatformFacebook, model.FailureInternal, "encode request", err)
	}
	for k, vs := range extra {
		form[k] = vs
	}
	var out graphResponse
	if _, err := c.api.PostForm(ctx, c.graphURL(cred.AccountID, "feed"), form, nil, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *client) uploadPhoto(ctx context.Context, cred model.Credential, params photoParams) (*graphResponse, error) {
	form, err := query.Values(params)
	if err != nil {
		return nil, model.NewPublishError(model.PlatformFacebook, model.FailureInternal, "encode request", err)
	}
	var out graphResponse
	if _, err := c.api.PostForm(ctx, c.graphURL(cred.AccountID, "photos"), form, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) postPhoto(ctx context.Context, cred model.Credential, caption, imageURL string) (string, error) {
	out, err := c.uploadPhoto(ctx, cred, photoParams{URL: imageURL, Caption: caption, AccessToken: cred.AccessToken})
	if err != nil {
		return "", err
	}
	if out.PostID != "" {
		return out.PostID, nil
	}
	return out.ID, nil
}

// postAlbum uploads every image unpublished and attaches them to one feed post.
func (c *client) postAlbum(ctx context.Context, cred model.Credential, message string, imageURLs []string) (string, error) {
	published := false
	extra := url.Values{}
	for i, u := range imageURLs {
		out, err := c.uploadPhoto(ctx, cred, photoParams{URL: u, Published: &published, AccessToken: cred.AccessToken})
		if err != nil {
			return "", err
		}
		if out.ID == "" {
			return "", model.NewPublishError(model.PlatformFacebook, model.FailureRejected, "photo upload returned no id", nil)
		}
		ref, _ := json.Marshal(map[string]string{"media_fbid": out.ID})
		extra.Set(fmt.Sprintf("attached_media[%d]", i), string(ref))
	}
	return c.postFeed(ctx, cred, feedParams{Message: message, AccessToken: cred.AccessToken}, extra)
}

func (c *client) postVideo(ctx context.Context, cred model.Credential, description, videoURL string) (string, error) {
	file, err := c.fetcher.Download(ctx, videoURL, c.cfg.VideoTimeout)
	if err != nil {
		return "", media.AsPublishError(model.PlatformFacebook, err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("access_token", cred.AccessToken)
	if description != "" {
		_ = w.WriteField("description", description)
	}
	part, err := w.CreateFormFile("source", "video.mp4")
	if err != nil {
		return "", model.NewPublishError(model.PlatformFacebook, model.FailureInternal, "encode upload", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return "", model.NewPublishError(model.PlatformFacebook, model.FailureInternal, "encode upload", err)
	}
	if err := w.Close(); err != nil {
		return "", model.NewPublishError(model.PlatformFacebook, model.FailureInternal, "encode upload", err)
	}

	endpoint := c.cfg.VideoBaseURL + "/" + path.Join(c.cfg.Version, cred.AccountID, "videos")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", model.NewPublishError(model.PlatformFacebook, model.FailureInternal, "build request", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	var out graphResponse
	if _, err := c.api.Do(req, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}
