package refresh

import (
	"errors"
	"fmt"
	"time"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
)

// Table maps each platform to its refresh protocol. Platforms without an
// entry (Twitter) have long-lived credentials.
type Table map[model.Platform]repository.ITokenRefresher

// For returns the refresher for platform or model.ErrRefreshUnavailable.
func (t Table) For(platform model.Platform) (repository.ITokenRefresher, error) {
	if r, ok := t[platform]; ok && r != nil {
		return r, nil
	}
	return nil, fmt.Errorf("%w: %s", model.ErrRefreshUnavailable, platform)
}

// rejected marks a definitive refusal from the token endpoint.
func rejected(platform model.Platform, err error) error {
	return fmt.Errorf("%w: %s: %v", model.ErrRefreshRejected, platform, err)
}

// fromAPIError keeps transient failures retryable and treats every other
// endpoint response as a rejection.
func fromAPIError(platform model.Platform, err error) error {
	var pe *model.PublishError
	if errors.As(err, &pe) && pe.Kind == model.FailureTransient {
		return fmt.Errorf("refresh %s: %w", platform, err)
	}
	return rejected(platform, err)
}

func expiry(now time.Time, expiresIn int64) *time.Time {
	if expiresIn <= 0 {
		return nil
	}
	t := now.Add(time.Duration(expiresIn) * time.Second)
	return &t
}
