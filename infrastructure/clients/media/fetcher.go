package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"social-publisher/domain/dto"
	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/logger"
)

// DefaultMaxBytes caps a single download (TikTok and YouTube videos are the largest).
const DefaultMaxBytes int64 = 1 << 30

var (
	ErrEmptyMedia    = errors.New("media file is empty")
	ErrMediaTooLarge = errors.New("media file exceeds size limit")
)

// FetchError is a failed download. StatusCode is zero for transport failures.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

type fetcher struct {
	client   *http.Client
	maxBytes int64
}

func NewFetcher(client *http.Client, maxBytes int64) repository.IMediaFetcher {
	if client == nil {
		client = &http.Client{}
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &fetcher{client: client, maxBytes: maxBytes}
}

// Download fetches url within timeout. It never retries.
func (f *fetcher) Download(ctx context.Context, url string, timeout time.Duration) (*dto.MediaFile, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}
	if resp.ContentLength > f.maxBytes {
		return nil, &FetchError{URL: url, Err: ErrMediaTooLarge}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	if int64(len(data)) > f.maxBytes {
		return nil, &FetchError{URL: url, Err: ErrMediaTooLarge}
	}
	if len(data) == 0 {
		return nil, &FetchError{URL: url, Err: ErrEmptyMedia}
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		contentType = http.DetectContentType(data)
	}
	logger.GetLogger().WithField("url", url).WithField("bytes", len(data)).Debug("Media downloaded")
	return &dto.MediaFile{URL: url, Data: data, ContentType: contentType}, nil
}

// DownloadAll fetches every url in order and stops at the first failure.
func DownloadAll(ctx context.Context, f repository.IMediaFetcher, urls []string, timeout time.Duration) ([]*dto.MediaFile, error) {
	files := make([]*dto.MediaFile, 0, len(urls))
	for _, u := range urls {
		file, err := f.Download(ctx, u, timeout)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, nil
}

// AsPublishError classifies a download failure for platform.
func AsPublishError(platform model.Platform, err error) *model.PublishError {
	var fe *FetchError
	if !errors.As(err, &fe) {
		return model.AsPublishError(platform, err)
	}
	switch {
	case errors.Is(err, ErrEmptyMedia):
		return model.NewPublishError(platform, model.FailureRejected, "media file is empty: "+fe.URL, nil)
	case errors.Is(err, ErrMediaTooLarge):
		return model.NewValidationError(platform, "media file exceeds size limit: "+fe.URL)
	case fe.StatusCode == http.StatusTooManyRequests || fe.StatusCode >= 500:
		return model.NewTransientError(platform, "media download failed", fe)
	case fe.StatusCode != 0:
		return model.NewPublishError(platform, model.FailureRejected, "media not accessible", fe)
	}
	return model.NewTransientError(platform, "media download failed", fe)
}
