package tiktok

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
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
	defaultBaseURL = "https://open.tiktokapis.com"
	// SELF_ONLY is the only level unaudited clients may post with.
	defaultPrivacy = "SELF_ONLY"
	maxPhotoTitle  = 90
)

var Limits = model.MediaLimits{MaxTextLength: 2200, MaxImages: 35, MaxVideos: 1, RequireMedia: true}

type Config struct {
	BaseURL      string
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
	if cfg.VideoTimeout <= 0 {
		cfg.VideoTimeout = 10 * time.Minute
	}
	if cfg.Poll.MaxAttempts <= 0 {
		cfg.Poll = utils.PollConfig{Interval: 5 * time.Second, MaxAttempts: 60}
	}
	return &client{cfg: cfg, api: apiclient.New(model.PlatformTikTok, httpClient), fetcher: fetcher}
}

func (c *client) Platform() model.Platform { return model.PlatformTikTok }

// apiError is the envelope every TikTok v2 response carries.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	LogID   string `json:"log_id"`
}

func (e apiError) check() error {
	if e.Code == "" || e.Code == "ok" {
		return nil
	}
	msg := e.Code
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	switch e.Code {
	case "access_token_invalid", "scope_not_authorized", "scope_permission_missed":
		return model.NewAuthError(model.PlatformTikTok, msg, nil)
	case "rate_limit_exceeded", "internal_error":
		return model.NewTransientError(model.PlatformTikTok, msg, nil)
	}
	return model.NewPublishError(model.PlatformTikTok, model.FailureRejected, msg, nil)
}

type postInfo struct {
	Title          string `json:"title,omitempty"`
	Description    string `json:"description,omitempty"`
	PrivacyLevel   string `json:"privacy_level"`
	DisableComment bool   `json:"disable_comment"`
	DisableDuet    bool   `json:"disable_duet,omitempty"`
	DisableStitch  bool   `json:"disable_stitch,omitempty"`
}

type videoSource struct {
	Source          string `json:"source"`
	VideoSize       int64  `json:"video_size"`
	ChunkSize       int64  `json:"chunk_size"`
	TotalChunkCount int    `json:"total_chunk_count"`
}

type videoInitRequest struct {
	PostInfo   postInfo    `json:"post_info"`
	SourceInfo videoSource `json:"source_info"`
}

type photoSource struct {
	Source          string   `json:"source"`
	PhotoCoverIndex int      `json:"photo_cover_index"`
	PhotoImages     []string `json:"photo_images"`
}

type photoInitRequest struct {
	PostInfo   postInfo    `json:"post_info"`
	SourceInfo photoSource `json:"source_info"`
	PostMode   string      `json:"post_mode"`
	MediaType  string      `json:"media_type"`
}

type initResponse struct {
	Data struct {
		PublishID string `json:"publish_id"`
		UploadURL string `json:"upload_url"`
	} `json:"data"`
	Error apiError `json:"error"`
}

type statusResponse struct {
	Data struct {
		Status     string `json:"status"`
		FailReason string `json:"fail_reason"`
		// TikTok's field name is misspelled.
		PublicPostIDs []json.Number `json:"publicaly_available_post_id"`
	} `json:"data"`
	Error apiError `json:"error"`
}

func (c *client) Post(ctx context.Context, cred model.Credential, content dto.PublishContent) (*model.PublishSuccess, error) {
	if err := Limits.Validate(model.PlatformTikTok, content.Text, len(content.ImageURLs), len(content.VideoURLs)); err != nil {
		return nil, err
	}
	privacy := content.Option("privacy", defaultPrivacy)

	var (
		publishID string
		err       error
	)
	if content.HasVideo() {
		publishID, err = c.initVideo(ctx, cred, content.Text, privacy, content.VideoURLs[0])
	} else {
		publishID, err = c.initPhotos(ctx, cred, content.Text, privacy, content.ImageURLs)
	}
	if err != nil {
		return nil, err
	}

	postID, err := c.waitPublished(ctx, cred, publishID)
	if err != nil {
		return nil, err
	}
	res := &model.PublishSuccess{PlatformPostID: postID}
	if postID != publishID && cred.AccountName != "" {
		res.URL = fmt.Sprintf("https://www.tiktok.com/@%s/video/%s", url.PathEscape(cred.AccountName), postID)
	}
	return res, nil
}

func (c *client) ValidateToken(ctx context.Context, cred model.Credential) bool {
	var out struct {
		Error apiError `json:"error"`
	}
	if _, err := c.api.Get(ctx, c.cfg.BaseURL+"/v2/user/info/?fields=open_id", apiclient.Bearer(cred.AccessToken), &out); err != nil {
		return false
	}
	return out.Error.check() == nil
}

// initVideo starts a FILE_UPLOAD publish and sends the binary as one chunk.
func (c *client) initVideo(ctx context.Context, cred model.Credential, text, privacy, videoURL string) (string, error) {
	file, err := c.fetcher.Download(ctx, videoURL, c.cfg.VideoTimeout)
	if err != nil {
		return "", media.AsPublishError(model.PlatformTikTok, err)
	}
	size := file.Size()
	body := videoInitRequest{
		PostInfo: postInfo{Title: text, PrivacyLevel: privacy},
		SourceInfo: videoSource{
			Source:          "FILE_UPLOAD",
			VideoSize:       size,
			ChunkSize:       size,
			TotalChunkCount: 1,
		},
	}
	var out initResponse
	if _, err := c.api.PostJSON(ctx, c.cfg.BaseURL+"/v2/post/publish/video/init/", body, apiclient.Bearer(cred.AccessToken), &out); err != nil {
		return "", err
	}
	if err := out.Error.check(); err != nil {
		return "", err
	}
	if out.Data.PublishID == "" || out.Data.UploadURL == "" {
		return "", model.NewPublishError(model.PlatformTikTok, model.FailureRejected, "video init returned no upload URL", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, out.Data.UploadURL, bytes.NewReader(file.Data))
	if err != nil {
		return "", model.NewPublishError(model.PlatformTikTok, model.FailureInternal, "build request", err)
	}
	req.Header.Set("Content-Type", "video/mp4")
	req.Header.Set("Content-Length", strconv.FormatInt(size, 10))
	req.Header.Set("Content-Range", fmt.Sprintf("bytes 0-%d/%d", size-1, size))
	if _, err := c.api.Do(req, nil); err != nil {
		return "", err
	}
	return out.Data.PublishID, nil
}

// initPhotos starts a PULL_FROM_URL photo post; TikTok fetches the images.
func (c *client) initPhotos(ctx context.Context, cred model.Credential, text, privacy string, imageURLs []string) (string, error) {
	body := photoInitRequest{
		PostInfo: postInfo{
			Title:        utils.Truncate(utils.FirstLine(text), maxPhotoTitle),
			Description:  text,
			PrivacyLevel: privacy,
		},
		SourceInfo: photoSource{Source: "PULL_FROM_URL", PhotoImages: imageURLs},
		PostMode:   "DIRECT_POST",
		MediaType:  "PHOTO",
	}
	var out initResponse
	if _, err := c.api.PostJSON(ctx, c.cfg.BaseURL+"/v2/post/publish/content/init/", body, apiclient.Bearer(cred.AccessToken), &out); err != nil {
		return "", err
	}
	if err := out.Error.check(); err != nil {
		return "", err
	}
	if out.Data.PublishID == "" {
		return "", model.NewPublishError(model.PlatformTikTok, model.FailureRejected, "photo init returned no publish id", nil)
	}
	return out.Data.PublishID, nil
}

// waitPublished polls the publish status until PUBLISH_COMPLETE. It returns
// the public post id, or the publish id when the post is not publicly visible.
func (c *client) waitPublished(ctx context.Context, cred model.Credential, publishID string) (string, error) {
	postID := publishID
	err := utils.Poll(ctx, c.cfg.Poll, func(ctx context.Context, attempt int) (bool, time.Duration, error) {
		var out statusResponse
		if _, err := c.api.PostJSON(ctx, c.cfg.BaseURL+"/v2/post/publish/status/fetch/", map[string]string{"publish_id": publishID}, apiclient.Bearer(cred.AccessToken), &out); err != nil {
			return false, 0, err
		}
		if err := out.Error.check(); err != nil {
			return false, 0, err
		}
		switch out.Data.Status {
		case "PUBLISH_COMPLETE":
			if len(out.Data.PublicPostIDs) > 0 && out.Data.PublicPostIDs[0].String() != "" {
				postID = out.Data.PublicPostIDs[0].String()
			}
			return true, 0, nil
		case "SEND_TO_USER_INBOX":
			// a direct post that lands in the inbox is a draft, not a post
			return false, 0, model.NewPublishError(model.PlatformTikTok, model.FailureRejected,
				"TikTok sent the post to the creator's inbox instead of publishing it", nil)
		case "FAILED":
			msg := "publish failed"
			if out.Data.FailReason != "" {
				msg = msg + ": " + out.Data.FailReason
			}
			return false, 0, model.NewPublishError(model.PlatformTikTok, model.FailureRejected, msg, nil)
		}
		return false, 0, nil
	})
	if errors.Is(err, utils.ErrPollTimeout) {
		logger.GetLogger().WithField("publish_id", publishID).Warn("TikTok publish still processing after polling budget")
		return "", model.NewProcessingTimeoutError(model.PlatformTikTok, "publish did not complete in time")
	}
	if err != nil {
		return "", err
	}
	return postID, nil
}
