package model

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Platform identifies a third-party network a post can be published to.
type Platform string

const (
	PlatformTwitter   Platform = "TWITTER"
	PlatformFacebook  Platform = "FACEBOOK"
	PlatformInstagram Platform = "INSTAGRAM"
	PlatformLinkedIn  Platform = "LINKEDIN"
	PlatformTikTok    Platform = "TIKTOK"
	PlatformYouTube   Platform = "YOUTUBE"
)

// AllPlatforms lists every supported platform in display order.
var AllPlatforms = []Platform{
	PlatformTwitter,
	PlatformFacebook,
	PlatformInstagram,
	PlatformLinkedIn,
	PlatformTikTok,
	PlatformYouTube,
}

// ParsePlatform normalizes user input ("twitter", "X", " LinkedIn ") into a Platform.
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TWITTER", "X":
		return PlatformTwitter, nil
	case "FACEBOOK":
		return PlatformFacebook, nil
	case "INSTAGRAM":
		return PlatformInstagram, nil
	case "LINKEDIN":
		return PlatformLinkedIn, nil
	case "TIKTOK":
		return PlatformTikTok, nil
	case "YOUTUBE":
		return PlatformYouTube, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedPlatform, s)
}

func (p Platform) Valid() bool {
	for _, known := range AllPlatforms {
		if p == known {
			return true
		}
	}
	return false
}

// MediaLimits describes what a platform accepts in a single post.
type MediaLimits struct {
	MaxTextLength int
	MaxImages     int
	MaxVideos     int
	// AllowMixed permits images and videos in the same post.
	AllowMixed bool
	// RequireMedia rejects text-only posts.
	RequireMedia bool
}

// Validate checks the content against the limits and returns a validation
// PublishError describing the first violation.
func (l MediaLimits) Validate(platform Platform, text string, images, videos int) error {
	if n := utf8.RuneCountInString(text); l.MaxTextLength > 0 && n > l.MaxTextLength {
		return NewValidationError(platform, fmt.Sprintf("text length %d exceeds limit of %d characters", n, l.MaxTextLength))
	}
	if images > l.MaxImages {
		if l.MaxImages == 0 {
			return NewValidationError(platform, "images are not supported")
		}
		return NewValidationError(platform, fmt.Sprintf("%d images exceeds limit of %d", images, l.MaxImages))
	}
	if videos > l.MaxVideos {
		if l.MaxVideos == 0 {
			return NewValidationError(platform, "videos are not supported")
		}
		return NewValidationError(platform, fmt.Sprintf("%d videos exceeds limit of %d", videos, l.MaxVideos))
	}
	if !l.AllowMixed && images > 0 && videos > 0 {
		return NewValidationError(platform, "images and videos cannot be combined in one post")
	}
	if l.RequireMedia && images == 0 && videos == 0 {
		return NewValidationError(platform, "at least one image or video is required")
	}
	return nil
}
