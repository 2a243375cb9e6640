package dto

import "time"

// PublishContent is what an adapter sends to its platform.
type PublishContent struct {
	Text      string
	ImageURLs []string
	VideoURLs []string
	// Options carries platform-specific knobs such as "privacy" or "title".
	Options map[string]string
}

// HasVideo reports whether the content includes at least one video.
func (c PublishContent) HasVideo() bool { return len(c.VideoURLs) > 0 }

// HasMedia reports whether the content includes any media.
func (c PublishContent) HasMedia() bool { return len(c.ImageURLs) > 0 || len(c.VideoURLs) > 0 }

// Option returns the option value or def when unset.
func (c PublishContent) Option(key, def string) string {
	if v, ok := c.Options[key]; ok && v != "" {
		return v
	}
	return def
}

// MediaFile is a downloaded attachment.
type MediaFile struct {
	URL         string
	Data        []byte
	ContentType string
}

// Size returns the byte length of the file.
func (f *MediaFile) Size() int64 { return int64(len(f.Data)) }

// CreatePostRequest is the body of POST /api/posts.
type CreatePostRequest struct {
	Text         string            `json:"text" binding:"required"`
	EnhancedText map[string]string `json:"enhanced_text"`
	Platforms    []string          `json:"platforms" binding:"required"`
	ImageURLs    []string          `json:"image_urls"`
	VideoURLs    []string          `json:"video_urls"`
	ScheduledFor *time.Time        `json:"scheduled_for"`
}

// ScheduleRequest is the body of POST /api/posts/:id/schedule.
type ScheduleRequest struct {
	ScheduledFor time.Time `json:"scheduled_for" binding:"required"`
}

// ConnectRequest is the body of POST /api/connections, pushed by the auth
// service after a successful OAuth callback.
type ConnectRequest struct {
	Platform          string     `json:"platform" binding:"required"`
	AccessToken       string     `json:"access_token" binding:"required"`
	AccessTokenSecret string     `json:"access_token_secret"`
	RefreshToken      string     `json:"refresh_token"`
	ExpiresAt         *time.Time `json:"expires_at"`
	AccountID         *string    `json:"account_id"`
	AccountName       *string    `json:"account_name"`
	Scopes            string     `json:"scopes"`
	TokenType         *string    `json:"token_type"`
}

// Res is the generic error envelope used by middleware.
type Res struct {
	ResponseCode    string      `json:"responseCode"`
	ResponseMessage string      `json:"responseMessage"`
	Data            interface{} `json:"data,omitempty"`
}
