package twitter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dghubble/oauth1"

	"social-publisher/domain/dto"
	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/clients/apiclient"
	"social-publisher/infrastructure/clients/media"
	"social-publisher/infrastructure/logger"
	"social-publisher/infrastructure/utils"
)

const (
	defaultAPIBaseURL    = "https://api.twitter.com"
	defaultUploadBaseURL = "https://upload.twitter.com"
	chunkSize            = 4 * 1024 * 1024
)

// Limits are enforced before any network call.
var Limits = model.MediaLimits{MaxTextLength: 280, MaxImages: 4, MaxVideos: 1}

type Config struct {
	ConsumerKey    string
	ConsumerSecret string
	APIBaseURL     string
	UploadBaseURL  string
	MediaTimeout   time.Duration
	Poll           utils.PollConfig
}

type client struct {
	cfg        Config
	oauth      *oauth1.Config
	httpClient *http.Client
	fetcher    repository.IMediaFetcher
}

func NewClient(cfg Config, httpClient *http.Client, fetcher repository.IMediaFetcher) repository.IPlatformAdapter {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	if cfg.UploadBaseURL == "" {
		cfg.UploadBaseURL = defaultUploadBaseURL
	}
	if cfg.MediaTimeout <= 0 {
		cfg.MediaTimeout = 2 * time.Minute
	}
	if cfg.Poll.MaxAttempts <= 0 {
		cfg.Poll = utils.PollConfig{Interval: 5 * time.Second, MaxAttempts: 60}
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &client{
		cfg:        cfg,
		oauth:      oauth1.NewConfig(cfg.ConsumerKey, cfg.ConsumerSecret),
		httpClient: httpClient,
		fetcher:    fetcher,
	}
}

// signed returns an API client whose transport signs every request with the
// user's token pair. Form bodies are part of the signature, multipart and
// JSON bodies are not.
func (c *client) signed(ctx context.Context, cred model.Credential) *apiclient.Client {
	ctx = context.WithValue(ctx, oauth1.HTTPClient, c.httpClient)
	hc := c.oauth.Client(ctx, oauth1.NewToken(cred.AccessToken, cred.AccessTokenSecret))
	hc.Timeout = c.httpClient.Timeout
	return apiclient.New(model.PlatformTwitter, hc)
}

func (c *client) Platform() model.Platform { return model.PlatformTwitter }

func (c *client) Post(ctx context.Context, cred model.Credential, content dto.PublishContent) (*model.PublishSuccess, error) {
	if c.cfg.ConsumerKey == "" || c.cfg.ConsumerSecret == "" {
		return nil, model.NewConfigError(model.PlatformTwitter, "Twitter consumer key and secret are not configured")
	}
	if cred.AccessToken == "" || cred.AccessTokenSecret == "" {
		return nil, model.NewAuthError(model.PlatformTwitter, "Twitter connection is missing its OAuth 1.0a token pair; reconnect the account", nil)
	}
	if err := Limits.Validate(model.PlatformTwitter, content.Text, len(content.ImageURLs), len(content.VideoURLs)); err != nil {
		return nil, err
	}
	api := c.signed(ctx, cred)

	var mediaIDs []string
	if content.HasVideo() {
		id, err := c.uploadVideo(ctx, api, content.VideoURLs[0])
		if err != nil {
			return nil, err
		}
		mediaIDs = append(mediaIDs, id)
	} else {
		for _, u := range content.ImageURLs {
			id, err := c.uploadImage(ctx, api, u)
			if err != nil {
				return nil, err
			}
			mediaIDs = append(mediaIDs, id)
		}
	}

	id, err := c.createTweet(ctx, api, content.Text, mediaIDs)
	if err != nil {
		return nil, err
	}
	return &model.PublishSuccess{PlatformPostID: id, URL: tweetURL(cred.AccountName, id)}, nil
}

func (c *client) ValidateToken(ctx context.Context, cred model.Credential) bool {
	_, err := c.signed(ctx, cred).Get(ctx, c.cfg.APIBaseURL+"/2/users/me", nil, nil)
	return err == nil
}

type tweetRequest struct {
	Text  string      `json:"text"`
	Media *tweetMedia `json:"media,omitempty"`
}

type tweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

func (c *client) createTweet(ctx context.Context, api *apiclient.Client, text string, mediaIDs []string) (string, error) {
	endpoint := c.cfg.APIBaseURL + "/2/tweets"
	body := tweetRequest{Text: text}
	if len(mediaIDs) > 0 {
		body.Media = &tweetMedia{MediaIDs: mediaIDs}
	}
	var out tweetResponse
	if _, err := api.PostJSON(ctx, endpoint, body, nil, &out); err != nil {
		return "", err
	}
	if out.Data.ID == "" {
		return "", model.NewPublishError(model.PlatformTwitter, model.FailureRejected, "tweet created without an id", nil)
	}
	return out.Data.ID, nil
}

type uploadResponse struct {
	MediaIDString  string          `json:"media_id_string"`
	ProcessingInfo *processingInfo `json:"processing_info,omitempty"`
}

type processingInfo struct {
	State          string `json:"state"`
	CheckAfterSecs int    `json:"check_after_secs"`
	Error          *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *client) uploadURL() string {
	return c.cfg.UploadBaseURL + "/1.1/media/upload.json"
}

func (c *client) uploadImage(ctx context.Context, api *apiclient.Client, imageURL string) (string, error) {
	file, err := c.fetcher.Download(ctx, imageURL, c.cfg.MediaTimeout)
	if err != nil {
		return "", media.AsPublishError(model.PlatformTwitter, err)
	}
	var out uploadResponse
	if err := c.postMultipart(ctx, api, nil, "media", file.Data, &out); err != nil {
		return "", err
	}
	if out.MediaIDString == "" {
		return "", model.NewPublishError(model.PlatformTwitter, model.FailureRejected, "media upload returned no id", nil)
	}
	return out.MediaIDString, nil
}

// uploadVideo runs the chunked INIT/APPEND/FINALIZE sequence and waits for
// server side processing to finish.
func (c *client) uploadVideo(ctx context.Context, api *apiclient.Client, videoURL string) (string, error) {
	file, err := c.fetcher.Download(ctx, videoURL, c.cfg.MediaTimeout)
	if err != nil {
		return "", media.AsPublishError(model.PlatformTwitter, err)
	}
	mediaType := file.ContentType
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = "video/mp4"
	}

	var initResp uploadResponse
	if err := c.postSignedForm(ctx, api, url.Values{
		"command":        {"INIT"},
		"total_bytes":    {strconv.FormatInt(file.Size(), 10)},
		"media_type":     {mediaType},
		"media_category": {"tweet_video"},
	}, &initResp); err != nil {
		return "", err
	}
	mediaID := initResp.MediaIDString
	if mediaID == "" {
		return "", model.NewPublishError(model.PlatformTwitter, model.FailureRejected, "video INIT returned no media id", nil)
	}

	for segment, offset := 0, 0; offset < len(file.Data); segment++ {
		end := offset + chunkSize
		if end > len(file.Data) {
			end = len(file.Data)
		}
		fields := map[string]string{
			"command":       "APPEND",
			"media_id":      mediaID,
			"segment_index": strconv.Itoa(segment),
		}
		if err := c.postMultipart(ctx, api, fields, "media", file.Data[offset:end], nil); err != nil {
			return "", err
		}
		offset = end
	}

	var fin uploadResponse
	if err := c.postSignedForm(ctx, api, url.Values{"command": {"FINALIZE"}, "media_id": {mediaID}}, &fin); err != nil {
		return "", err
	}
	if fin.ProcessingInfo == nil {
		return mediaID, nil
	}
	if err := c.waitForProcessing(ctx, api, mediaID, fin.ProcessingInfo); err != nil {
		return "", err
	}
	return mediaID, nil
}

func (c *client) waitForProcessing(ctx context.Context, api *apiclient.Client, mediaID string, info *processingInfo) error {
	current := info
	err := utils.Poll(ctx, c.cfg.Poll, func(ctx context.Context, attempt int) (bool, time.Duration, error) {
		if attempt > 1 {
			endpoint := c.uploadURL() + "?" + url.Values{"command": {"STATUS"}, "media_id": {mediaID}}.Encode()
			var out uploadResponse
			if _, err := api.Get(ctx, endpoint, nil, &out); err != nil {
				return false, 0, err
			}
			if out.ProcessingInfo == nil {
				return true, 0, nil
			}
			current = out.ProcessingInfo
		}
		switch current.State {
		case "succeeded":
			return true, 0, nil
		case "failed":
			msg := "video processing failed"
			if current.Error != nil && current.Error.Message != "" {
				msg = msg + ": " + current.Error.Message
			}
			return false, 0, model.NewPublishError(model.PlatformTwitter, model.FailureRejected, msg, nil)
		}
		return false, time.Duration(current.CheckAfterSecs) * time.Second, nil
	})
	if errors.Is(err, utils.ErrPollTimeout) {
		logger.GetLogger().WithField("media_id", mediaID).Warn("Twitter video still processing after polling budget")
		return model.NewProcessingTimeoutError(model.PlatformTwitter, "video processing did not finish in time")
	}
	return err
}

func (c *client) postSignedForm(ctx context.Context, api *apiclient.Client, form url.Values, out interface{}) error {
	_, err := api.PostForm(ctx, c.uploadURL(), form, nil, out)
	return err
}

// postMultipart uploads data under fileField.
func (c *client) postMultipart(ctx context.Context, api *apiclient.Client, fields map[string]string, fileField string, data []byte, out interface{}) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return model.NewPublishError(model.PlatformTwitter, model.FailureInternal, "encode upload", err)
		}
	}
	part, err := w.CreateFormFile(fileField, "blob")
	if err != nil {
		return model.NewPublishError(model.PlatformTwitter, model.FailureInternal, "encode upload", err)
	}
	if _, err := part.Write(data); err != nil {
		return model.NewPublishError(model.PlatformTwitter, model.FailureInternal, "encode upload", err)
	}
	if err := w.Close(); err != nil {
		return model.NewPublishError(model.PlatformTwitter, model.FailureInternal, "encode upload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL(), &buf)
	if err != nil {
		return model.NewPublishError(model.PlatformTwitter, model.FailureInternal, "build request", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	_, err = api.Do(req, out)
	return err
}

func tweetURL(screenName, id string) string {
	if screenName != "" {
		return fmt.Sprintf("https://twitter.com/%s/status/%s", url.PathEscape(screenName), id)
	}
	return "https://twitter.com/i/web/status/" + id
}
