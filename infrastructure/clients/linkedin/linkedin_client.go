package linkedin

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"social-publisher/domain/dto"
	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/clients/apiclient"
	"social-publisher/infrastructure/clients/media"
	"social-publisher/infrastructure/logger"
	"social-publisher/infrastructure/utils"
)

const (
	defaultBaseURL = "https://api.linkedin.com"

	recipeImage = "urn:li:digitalmediaRecipe:feedshare-image"
	recipeVideo = "urn:li:digitalmediaRecipe:feedshare-video"

	uploadMechanism = "com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"
	shareContent    = "com.linkedin.ugc.ShareContent"
	visibilityKey   = "com.linkedin.ugc.MemberNetworkVisibility"
)

var Limits = model.MediaLimits{MaxTextLength: 3000, MaxImages: 9, MaxVideos: 1}

type Config struct {
	BaseURL      string
	MediaTimeout time.Duration
	VideoTimeout time.Duration
	Poll         utils.PollConfig
}

type client struct {
	cfg     Config
	api     *apiclient.Client
	fetcher repository.IMediaFetcher
}

func NewClient(cfg Config, httpClient *http.Client, fetcher repository.IMediaFetcher) repository.IPlatformAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.MediaTimeout <= 0 {
		cfg.MediaTimeout = 2 * time.Minute
	}
	if cfg.VideoTimeout <= 0 {
		cfg.VideoTimeout = 10 * time.Minute
	}
	if cfg.Poll.MaxAttempts <= 0 {
		cfg.Poll = utils.PollConfig{Interval: 3 * time.Second, MaxAttempts: 40}
	}
	return &client{cfg: cfg, api: apiclient.New(model.PlatformLinkedIn, httpClient), fetcher: fetcher}
}

func (c *client) Platform() model.Platform { return model.PlatformLinkedIn }

func (c *client) headers(token string) map[string]string {
	h := apiclient.Bearer(token)
	h["X-Restli-Protocol-Version"] = "2.0.0"
	return h
}

func (c *client) Post(ctx context.Context, cred model.Credential, content dto.PublishContent) (*model.PublishSuccess, error) {
	if err := Limits.Validate(model.PlatformLinkedIn, content.Text, len(content.ImageURLs), len(content.VideoURLs)); err != nil {
		return nil, err
	}
	author, err := c.author(ctx, cred)
	if err != nil {
		return nil, err
	}

	category := "NONE"
	var assets []string
	switch {
	case content.HasVideo():
		category = "VIDEO"
		asset, err := c.uploadAsset(ctx, cred, author, recipeVideo, content.VideoURLs[0], c.cfg.VideoTimeout)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	case len(content.ImageURLs) > 0:
		category = "IMAGE"
		for _, u := range content.ImageURLs {
			asset, err := c.uploadAsset(ctx, cred, author, recipeImage, u, c.cfg.MediaTimeout)
			if err != nil {
				return nil, err
			}
			assets = append(assets, asset)
		}
	}

	id, err := c.createPost(ctx, cred, author, content.Text, category, assets)
	if err != nil {
		return nil, err
	}
	return &model.PublishSuccess{PlatformPostID: id, URL: "https://www.linkedin.com/feed/update/" + id}, nil
}

func (c *client) ValidateToken(ctx context.Context, cred model.Credential) bool {
	_, err := c.api.Get(ctx, c.cfg.BaseURL+"/v2/userinfo", apiclient.Bearer(cred.AccessToken), nil)
	return err == nil
}

type userInfo struct {
	Sub string `json:"sub"`
}

// author is the connection's stored URN, or the member URN resolved from
// the OpenID userinfo endpoint.
func (c *client) author(ctx context.Context, cred model.Credential) (string, error) {
	if cred.AccountID != "" {
		if strings.HasPrefix(cred.AccountID, "urn:li:") {
			return cred.AccountID, nil
		}
		return "urn:li:person:" + cred.AccountID, nil
	}
	var info userInfo
	if _, err := c.api.Get(ctx, c.cfg.BaseURL+"/v2/userinfo", apiclient.Bearer(cred.AccessToken), &info); err != nil {
		return "", err
	}
	if info.Sub == "" {
		return "", model.NewAuthError(model.PlatformLinkedIn, "could not resolve LinkedIn member id; reconnect the account", nil)
	}
	return "urn:li:person:" + info.Sub, nil
}

type registerUploadRequest struct {
	RegisterUploadRequest registerUpload `json:"registerUploadRequest"`
}

type registerUpload struct {
	Recipes              []string              `json:"recipes"`
	Owner                string                `json:"owner"`
	ServiceRelationships []serviceRelationship `json:"serviceRelationships"`
}

type serviceRelationship struct {
	RelationshipType string `json:"relationshipType"`
	Identifier       string `json:"identifier"`
}

type registerUploadResponse struct {
	Value struct {
		Asset           string `json:"asset"`
		UploadMechanism map[string]struct {
			UploadURL string            `json:"uploadUrl"`
			Headers   map[string]string `json:"headers"`
		} `json:"uploadMechanism"`
	} `json:"value"`
}

type assetStatus struct {
	Recipes []struct {
		Recipe string `json:"recipe"`
		Status string `json:"status"`
	} `json:"recipes"`
}

// uploadAsset registers an upload, PUTs the binary and waits until the
// asset is AVAILABLE. It returns the asset URN.
func (c *client) uploadAsset(ctx context.Context, cred model.Credential, owner, recipe, mediaURL string, timeout time.Duration) (string, error) {
	file, err := c.fetcher.Download(ctx, mediaURL, timeout)
	if err != nil {
		return "", media.AsPublishError(model.PlatformLinkedIn, err)
	}

	body := registerUploadRequest{RegisterUploadRequest: registerUpload{
		Recipes: []string{recipe},
		Owner:   owner,
		ServiceRelationships: []serviceRelationship{{
			RelationshipType: "OWNER",
			Identifier:       "urn:li:userGeneratedContent",
		}},
	}}
	var reg registerUploadResponse
	if _, err := c.api.PostJSON(ctx, c.cfg.BaseURL+"/v2/assets?action=registerUpload", body, c.headers(cred.AccessToken), &reg); err != nil {
		return "", err
	}
	mech, ok := reg.Value.UploadMechanism[uploadMechanism]
	if !ok || mech.UploadURL == "" || reg.Value.Asset == "" {
		return "", model.NewPublishError(model.PlatformLinkedIn, model.FailureRejected, "registerUpload returned no upload URL", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, mech.UploadURL, bytes.NewReader(file.Data))
	if err != nil {
		return "", model.NewPublishError(model.PlatformLinkedIn, model.FailureInternal, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	if file.ContentType != "" {
		req.Header.Set("Content-Type", file.ContentType)
	}
	for k, v := range mech.Headers {
		req.Header.Set(k, v)
	}
	if _, err := c.api.Do(req, nil); err != nil {
		return "", err
	}

	if err := c.waitAvailable(ctx, cred, reg.Value.Asset); err != nil {
		return "", err
	}
	return reg.Value.Asset, nil
}

func (c *client) waitAvailable(ctx context.Context, cred model.Credential, asset string) error {
	id := asset[strings.LastIndex(asset, ":")+1:]
	endpoint := c.cfg.BaseURL + "/v2/assets/" + url.PathEscape(id)
	err := utils.Poll(ctx, c.cfg.Poll, func(ctx context.Context, attempt int) (bool, time.Duration, error) {
		var out assetStatus
		if _, err := c.api.Get(ctx, endpoint, c.headers(cred.AccessToken), &out); err != nil {
			return false, 0, err
		}
		for _, r := range out.Recipes {
			switch r.Status {
			case "AVAILABLE":
				return true, 0, nil
			case "CLIENT_ERROR", "SERVER_ERROR", "INCOMPLETE":
				return false, 0, model.NewPublishError(model.PlatformLinkedIn, model.FailureRejected, "asset processing failed: "+r.Status, nil)
			}
		}
		return false, 0, nil
	})
	if errors.Is(err, utils.ErrPollTimeout) {
		logger.GetLogger().WithField("asset", asset).Warn("LinkedIn asset still processing after polling budget")
		return model.NewProcessingTimeoutError(model.PlatformLinkedIn, "media asset was not available in time")
	}
	return err
}

type ugcPost struct {
	Author          string              `json:"author"`
	LifecycleState  string              `json:"lifecycleState"`
	SpecificContent map[string]ugcShare `json:"specificContent"`
	Visibility      map[string]string   `json:"visibility"`
}

type ugcShare struct {
	ShareCommentary    ugcText    `json:"shareCommentary"`
	ShareMediaCategory string     `json:"shareMediaCategory"`
	Media              []ugcMedia `json:"media,omitempty"`
}

type ugcText struct {
	Text string `json:"text"`
}

type ugcMedia struct {
	Status string `json:"status"`
	Media  string `json:"media"`
}

func (c *client) createPost(ctx context.Context, cred model.Credential, author, text, category string, assets []string) (string, error) {
	share := ugcShare{ShareCommentary: ugcText{Text: text}, ShareMediaCategory: category}
	for _, a := range assets {
		share.Media = append(share.Media, ugcMedia{Status: "READY", Media: a})
	}
	body := ugcPost{
		Author:          author,
		LifecycleState:  "PUBLISHED",
		SpecificContent: map[string]ugcShare{shareContent: share},
		Visibility:      map[string]string{visibilityKey: "PUBLIC"},
	}
	var out struct {
		ID string `json:"id"`
	}
	resp, err := c.api.PostJSON(ctx, c.cfg.BaseURL+"/v2/ugcPosts", body, c.headers(cred.AccessToken), &out)
	if err != nil {
		return "", err
	}
	id := resp.Header.Get("X-RestLi-Id")
	if id == "" {
		id = out.ID
	}
	if id == "" {
		return "", model.NewPublishError(model.PlatformLinkedIn, model.FailureRejected, "ugcPosts returned no id", nil)
	}
	return id, nil
}
