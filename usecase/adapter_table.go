package usecase

import (
	"time"

	"social-publisher/domain/dto"
	"social-publisher/domain/model"
	"social-publisher/domain/repository"
)

// AdapterTable holds one adapter per supported platform.
type AdapterTable struct {
	Twitter   repository.IPlatformAdapter
	Facebook  repository.IPlatformAdapter
	Instagram repository.IPlatformAdapter
	LinkedIn  repository.IPlatformAdapter
	TikTok    repository.IPlatformAdapter
	YouTube   repository.IPlatformAdapter
}

// For returns the adapter for platform. A platform with no adapter wired is
// a configuration failure.
func (t AdapterTable) For(platform model.Platform) (repository.IPlatformAdapter, error) {
	var a repository.IPlatformAdapter
	switch platform {
	case model.PlatformTwitter:
		a = t.Twitter
	case model.PlatformFacebook:
		a = t.Facebook
	case model.PlatformInstagram:
		a = t.Instagram
	case model.PlatformLinkedIn:
		a = t.LinkedIn
	case model.PlatformTikTok:
		a = t.TikTok
	case model.PlatformYouTube:
		a = t.YouTube
	default:
		return nil, model.NewConfigError(platform, "unsupported platform")
	}
	if a == nil {
		return nil, model.NewConfigError(platform, "platform adapter is not configured")
	}
	return a, nil
}

// Timeouts are the per-call budgets for an adapter call by content type.
type Timeouts struct {
	Text  time.Duration
	Media time.Duration
	Video time.Duration
}

func (t Timeouts) For(content dto.PublishContent) time.Duration {
	switch {
	case content.HasVideo():
		return t.Video
	case content.HasMedia():
		return t.Media
	}
	return t.Text
}
