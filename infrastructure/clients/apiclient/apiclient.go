package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"social-publisher/domain/model"
)

// maxErrorBody bounds how much of an error response is kept in messages.
const maxErrorBody = 512

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client wraps an http.Client and turns non-2xx responses into classified
// publish errors for one platform.
type Client struct {
	HTTP     *http.Client
	Platform model.Platform
}

func New(platform model.Platform, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{HTTP: httpClient, Platform: platform}
}

// Do sends req and decodes a JSON body into out when out is not nil.
func (c *Client) Do(req *http.Request, out interface{}) (*Response, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, ClassifyTransport(c.Platform, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ClassifyTransport(c.Platform, err)
	}
	r := &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return r, ClassifyStatus(c.Platform, resp.StatusCode, body)
	}
	if out != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return r, model.NewPublishError(c.Platform, model.FailureRejected, "unexpected response from platform", err)
		}
	}
	return r, nil
}

// Get issues a GET with optional headers.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string, out interface{}) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, model.NewPublishError(c.Platform, model.FailureInternal, "build request", err)
	}
	setHeaders(req, headers)
	return c.Do(req, out)
}

// PostForm issues an application/x-www-form-urlencoded POST.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values, headers map[string]string, out interface{}) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, model.NewPublishError(c.Platform, model.FailureInternal, "build request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	setHeaders(req, headers)
	return c.Do(req, out)
}

// PostJSON marshals body and issues a JSON POST.
func (c *Client) PostJSON(ctx context.Context, rawURL string, body interface{}, headers map[string]string, out interface{}) (*Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, model.NewPublishError(c.Platform, model.FailureInternal, "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(b))
	if err != nil {
		return nil, model.NewPublishError(c.Platform, model.FailureInternal, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	setHeaders(req, headers)
	return c.Do(req, out)
}

// Bearer returns an Authorization header map for token.
func Bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func setHeaders(req *http.Request, headers map[string]string) {
	for k, v := range headers {
		req.Header.Set(k, v)
	}
}

// ClassifyStatus maps an HTTP failure status to a failure kind:
// 401/403 auth, 408/429/5xx transient, other 4xx rejected.
func ClassifyStatus(platform model.Platform, status int, body []byte) *model.PublishError {
	msg := fmt.Sprintf("HTTP %d", status)
	if detail := ExtractMessage(body); detail != "" {
		msg = fmt.Sprintf("HTTP %d: %s", status, detail)
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return model.NewAuthError(platform, msg, nil)
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		return model.NewTransientError(platform, msg, nil)
	default:
		return model.NewPublishError(platform, model.FailureRejected, msg, nil)
	}
}

// ClassifyTransport wraps a network level failure as transient.
func ClassifyTransport(platform model.Platform, err error) *model.PublishError {
	return model.NewTransientError(platform, "request failed", err)
}

// ExtractMessage pulls a human readable message out of the error payload
// shapes used by the supported platforms, falling back to the raw body.
func ExtractMessage(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ""
	}
	var payload struct {
		Error json.RawMessage `json:"error"`
		// Twitter v2
		Detail string `json:"detail"`
		Title  string `json:"title"`
		// LinkedIn
		Message string `json:"message"`
		// Twitter v1.1
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if len(payload.Error) > 0 {
			var nested struct {
				Message string `json:"message"`
				Code    string `json:"code"`
			}
			if json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "" {
				return nested.Message
			}
			var s string
			if json.Unmarshal(payload.Error, &s) == nil && s != "" {
				if payload.ErrorDescription != "" {
					return s + ": " + payload.ErrorDescription
				}
				return s
			}
		}
		switch {
		case payload.Detail != "":
			return payload.Detail
		case payload.Message != "":
			return payload.Message
		case len(payload.Errors) > 0 && payload.Errors[0].Message != "":
			return payload.Errors[0].Message
		case payload.Title != "":
			return payload.Title
		}
	}
	s := string(body)
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody]
	}
	return s
}
