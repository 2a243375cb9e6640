package instagram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/go-querystring/query"

	"social-publisher/domain/dto"
	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/clients/apiclient"
	"social-publisher/infrastructure/logger"
	"social-publisher/infrastructure/utils"
)

const (
	defaultGraphBaseURL = "https://graph.facebook.com"
	defaultVersion      = "v19.0"
	maxCarouselItems    = 10
)

var Limits = model.MediaLimits{MaxTextLength: 2200, MaxImages: maxCarouselItems, MaxVideos: maxCarouselItems, AllowMixed: true, RequireMedia: true}

type Config struct {
	GraphBaseURL string
	Version      string
	Poll         utils.PollConfig
}

type client struct {
	cfg Config
	api *apiclient.Client
}

// NewClient builds the Instagram adapter. Instagram pulls media from the
// URLs itself, so no fetcher is needed.
func NewClient(cfg Config, httpClient *http.Client) repository.IPlatformAdapter {
	if cfg.GraphBaseURL == "" {
		cfg.GraphBaseURL = defaultGraphBaseURL
	}
	if cfg.Version == "" {
		cfg.Version = defaultVersion
	}
	if cfg.Poll.MaxAttempts <= 0 {
		cfg.Poll = utils.PollConfig{Interval: 5 * time.Second, MaxAttempts: 60}
	}
	return &client{cfg: cfg, api: apiclient.New(model.PlatformInstagram, httpClient)}
}

func (c *client) Platform() model.Platform { return model.PlatformInstagram }

type containerParams struct {
	ImageURL       string `url:"image_url,omitempty"`
	VideoURL       string `url:"video_url,omitempty"`
	MediaType      string `url:"media_type,omitempty"`
	Caption        string `url:"caption,omitempty"`
	IsCarouselItem bool   `url:"is_carousel_item,omitempty"`
	Children       string `url:"children,omitempty"`
	AccessToken    string `url:"access_token"`
}

type publishParams struct {
	CreationID  string `url:"creation_id"`
	AccessToken string `url:"access_token"`
}

type idResponse struct {
	ID string `json:"id"`
}

type statusResponse struct {
	StatusCode string `json:"status_code"`
	Status     string `json:"status"`
}

type permalinkResponse struct {
	Permalink string `json:"permalink"`
}

func (c *client) Post(ctx context.Context, cred model.Credential, content dto.PublishContent) (*model.PublishSuccess, error) {
	if cred.AccountID == "" {
		return nil, model.NewConfigError(model.PlatformInstagram, "no Instagram business account linked to this connection")
	}
	if err := Limits.Validate(model.PlatformInstagram, content.Text, len(content.ImageURLs), len(content.VideoURLs)); err != nil {
		return nil, err
	}
	total := len(content.ImageURLs) + len(content.VideoURLs)
	if total > maxCarouselItems {
		return nil, model.NewValidationError(model.PlatformInstagram, fmt.Sprintf("%d media items exceeds limit of %d", total, maxCarouselItems))
	}

	var (
		containerID string
		err         error
	)
	switch {
	case total > 1:
		containerID, err = c.createCarousel(ctx, cred, content)
	case len(content.VideoURLs) == 1:
		containerID, err = c.createContainer(ctx, cred, containerParams{MediaType: "REELS", VideoURL: content.VideoURLs[0], Caption: content.Text})
		if err == nil {
			err = c.waitUntilFinished(ctx, cred, containerID)
		}
	default:
		containerID, err = c.createContainer(ctx, cred, containerParams{ImageURL: content.ImageURLs[0], Caption: content.Text})
	}
	if err != nil {
		return nil, err
	}

	form, err := query.Values(publishParams{CreationID: containerID, AccessToken: cred.AccessToken})
	if err != nil {
		return nil, model.NewPublishError(model.PlatformInstagram, model.FailureInternal, "encode request", err)
	}
	var published idResponse
	if _, err := c.api.PostForm(ctx, c.graphURL(cred.AccountID, "media_publish"), form, nil, &published); err != nil {
		return nil, err
	}
	if published.ID == "" {
		return nil, model.NewPublishError(model.PlatformInstagram, model.FailureRejected, "media_publish returned no id", nil)
	}
	return &model.PublishSuccess{PlatformPostID: published.ID, URL: c.permalink(ctx, cred, published.ID)}, nil
}

func (c *client) ValidateToken(ctx context.Context, cred model.Credential) bool {
	endpoint := c.graphURL("me") + "?" + url.Values{"fields": {"id"}, "access_token": {cred.AccessToken}}.Encode()
	_, err := c.api.Get(ctx, endpoint, nil, nil)
	return err == nil
}

func (c *client) graphURL(parts ...string) string {
	return c.cfg.GraphBaseURL + "/" + path.Join(append([]string{c.cfg.Version}, parts...)...)
}

func (c *client) createContainer(ctx context.Context, cred model.Credential, params containerParams) (string, error) {
	params.AccessToken = cred.AccessToken
	form, err := query.Values(params)
	if err != nil {
		return "", model.NewPublishError(model.PlatformInstagram, model.FailureInternal, "encode request", err)
	}
	var out idResponse
	if _, err := c.api.PostForm(ctx, c.graphURL(cred.AccountID, "media"), form, nil, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", model.NewPublishError(model.PlatformInstagram, model.FailureRejected, "container created without an id", nil)
	}
	return out.ID, nil
}

// createCarousel builds one child container per item, waits for video
// children, then creates the parent CAROUSEL container.
func (c *client) createCarousel(ctx context.Context, cred model.Credential, content dto.PublishContent) (string, error) {
	children := make([]string, 0, len(content.ImageURLs)+len(content.VideoURLs))
	for _, u := range content.ImageURLs {
		id, err := c.createContainer(ctx, cred, containerParams{ImageURL: u, IsCarouselItem: true})
		if err != nil {
			return "", err
		}
		children = append(children, id)
	}
	for _, u := range content.VideoURLs {
		id, err := c.createContainer(ctx, cred, containerParams{MediaType: "VIDEO", VideoURL: u, IsCarouselItem: true})
		if err != nil {
			return "", err
		}
		if err := c.waitUntilFinished(ctx, cred, id); err != nil {
			return "", err
		}
		children = append(children, id)
	}
	return c.createContainer(ctx, cred, containerParams{
		MediaType: "CAROUSEL",
		Children:  strings.Join(children, ","),
		Caption:   content.Text,
	})
}

func (c *client) waitUntilFinished(ctx context.Context, cred model.Credential, containerID string) error {
	endpoint := c.graphURL(containerID) + "?" + url.Values{"fields": {"status_code"}, "access_token": {cred.AccessToken}}.Encode()
	err := utils.Poll(ctx, c.cfg.Poll, func(ctx context.Context, attempt int) (bool, time.Duration, error) {
		var out statusResponse
		if _, err := c.api.Get(ctx, endpoint, nil, &out); err != nil {
			return false, 0, err
		}
		switch out.StatusCode {
		case "FINISHED", "PUBLISHED":
			return true, 0, nil
		case "ERROR", "EXPIRED":
			msg := "media container processing " + strings.ToLower(out.StatusCode)
			if out.Status != "" {
				msg = msg + ": " + out.Status
			}
			return false, 0, model.NewPublishError(model.PlatformInstagram, model.FailureRejected, msg, nil)
		}
		return false, 0, nil
	})
	if errors.Is(err, utils.ErrPollTimeout) {
		logger.GetLogger().WithField("container_id", containerID).Warn("Instagram container still processing after polling budget")
		return model.NewProcessingTimeoutError(model.PlatformInstagram, "media container was not ready in time")
	}
	return err
}

func (c *client) permalink(ctx context.Context, cred model.Credential, mediaID string) string {
	endpoint := c.graphURL(mediaID) + "?" + url.Values{"fields": {"permalink"}, "access_token": {cred.AccessToken}}.Encode()
	var out permalinkResponse
	if _, err := c.api.Get(ctx, endpoint, nil, &out); err != nil {
		logger.GetLogger().WithField("media_id", mediaID).WithField("error", err).Warn("Failed to fetch Instagram permalink")
		return ""
	}
	return out.Permalink
}
