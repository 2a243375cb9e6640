package youtube

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"social-publisher/domain/dto"
	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/clients/apiclient"
	"social-publisher/infrastructure/clients/media"
	"social-publisher/infrastructure/logger"
	"social-publisher/infrastructure/utils"
)

const (
	maxTitle       = 100
	maxDescription = 5000
	defaultPrivacy = "public"
	// People & Blogs
	defaultCategory = "22"
)

var Limits = model.MediaLimits{MaxTextLength: maxDescription, MaxImages: 0, MaxVideos: 1, RequireMedia: true}

// Config represents YouTube upload configuration
type Config struct {
	// Endpoint overrides the API base URL, used by tests.
	Endpoint string
	// ChunkSize is the resumable upload chunk size in bytes.
	ChunkSize int
	// ResumableFrom is the file size at which uploads switch from a single
	// multipart request to the resumable protocol.
	ResumableFrom int64
	VideoTimeout  time.Duration
}

type client struct {
	cfg        Config
	httpClient *http.Client
	fetcher    repository.IMediaFetcher
}

func NewClient(cfg Config, httpClient *http.Client, fetcher repository.IMediaFetcher) repository.IPlatformAdapter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = googleapi.DefaultUploadChunkSize
	}
	if cfg.ResumableFrom <= 0 {
		cfg.ResumableFrom = 16 * 1024 * 1024
	}
	if cfg.VideoTimeout <= 0 {
		cfg.VideoTimeout = 10 * time.Minute
	}
	return &client{cfg: cfg, httpClient: httpClient, fetcher: fetcher}
}

func (c *client) Platform() model.Platform { return model.PlatformYouTube }

// service builds a Data API client authorised with the connection's token.
func (c *client) service(ctx context.Context, cred model.Credential) (*youtube.Service, error) {
	base := context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cred.AccessToken, TokenType: "Bearer"})
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(base, ts))}
	if c.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.cfg.Endpoint))
	}
	return youtube.NewService(ctx, opts...)
}

func (c *client) Post(ctx context.Context, cred model.Credential, content dto.PublishContent) (*model.PublishSuccess, error) {
	if len(content.ImageURLs) > 0 {
		return nil, model.NewValidationError(model.PlatformYouTube, "images are not supported")
	}
	if len(content.VideoURLs) != 1 {
		return nil, model.NewValidationError(model.PlatformYouTube, "exactly one video is required")
	}
	if err := Limits.Validate(model.PlatformYouTube, content.Text, 0, 1); err != nil {
		return nil, err
	}
	title := content.Option("title", utils.FirstLine(content.Text))
	if title == "" {
		title = "Untitled"
	}
	title = utils.Truncate(title, maxTitle)

	svc, err := c.service(ctx, cred)
	if err != nil {
		return nil, model.NewPublishError(model.PlatformYouTube, model.FailureInternal, "failed to create YouTube service", err)
	}
	file, err := c.fetcher.Download(ctx, content.VideoURLs[0], c.cfg.VideoTimeout)
	if err != nil {
		return nil, media.AsPublishError(model.PlatformYouTube, err)
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       title,
			Description: content.Text,
			CategoryId:  content.Option("category_id", defaultCategory),
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           content.Option("privacy", defaultPrivacy),
			SelfDeclaredMadeForKids: content.Option("made_for_kids", "false") == "true",
			ForceSendFields:         []string{"SelfDeclaredMadeForKids"},
		},
	}

	// ChunkSize(0) sends the whole file in one multipart request.
	chunk := 0
	if file.Size() >= c.cfg.ResumableFrom {
		chunk = c.cfg.ChunkSize
	}
	log := logger.GetLogger().WithField("bytes", file.Size()).WithField("resumable", chunk > 0)
	call := svc.Videos.Insert([]string{"snippet", "status"}, video).
		Media(bytes.NewReader(file.Data), googleapi.ChunkSize(chunk), googleapi.ContentType(file.ContentType)).
		ProgressUpdater(func(current, total int64) {
			log.WithField("sent", current).WithField("total", total).Debug("YouTube upload progress")
		}).
		Context(ctx)

	uploaded, err := call.Do()
	if err != nil {
		return nil, classify(err)
	}
	if uploaded.Id == "" {
		return nil, model.NewPublishError(model.PlatformYouTube, model.FailureRejected, "upload returned no video id", nil)
	}
	log.WithField("video_id", uploaded.Id).Info("YouTube video uploaded")
	return &model.PublishSuccess{PlatformPostID: uploaded.Id, URL: "https://www.youtube.com/watch?v=" + uploaded.Id}, nil
}

func (c *client) ValidateToken(ctx context.Context, cred model.Credential) bool {
	svc, err := c.service(ctx, cred)
	if err != nil {
		return false
	}
	resp, err := svc.Channels.List([]string{"id"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return false
	}
	return len(resp.Items) > 0
}

func classify(err error) *model.PublishError {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		pe := apiclient.ClassifyStatus(model.PlatformYouTube, gerr.Code, []byte(gerr.Body))
		if gerr.Message != "" {
			pe.Message = fmt.Sprintf("HTTP %d: %s", gerr.Code, gerr.Message)
		}
		// Quota errors arrive as 403 but clear on their own.
		for _, item := range gerr.Errors {
			if item.Reason == "quotaExceeded" || item.Reason == "rateLimitExceeded" {
				pe.Kind = model.FailureTransient
			}
		}
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return model.NewTransientError(model.PlatformYouTube, "upload timed out", err)
	}
	return apiclient.ClassifyTransport(model.PlatformYouTube, err)
}
