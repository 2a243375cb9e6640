package refresh

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/logger"
)

// LinkedInEndpoint is LinkedIn's OAuth 2.0 token endpoint.
var LinkedInEndpoint = oauth2.Endpoint{
	AuthURL:   "https://www.linkedin.com/oauth/v2/authorization",
	TokenURL:  "https://www.linkedin.com/oauth/v2/accessToken",
	AuthStyle: oauth2.AuthStyleInParams,
}

type oauth2Refresher struct {
	platform   model.Platform
	config     *oauth2.Config
	httpClient *http.Client
}

// NewOAuth2Refresher runs the standard refresh_token grant against endpoint.
func NewOAuth2Refresher(platform model.Platform, clientID, clientSecret string, endpoint oauth2.Endpoint, httpClient *http.Client) repository.ITokenRefresher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &oauth2Refresher{
		platform:   platform,
		config:     &oauth2.Config{ClientID: clientID, ClientSecret: clientSecret, Endpoint: endpoint},
		httpClient: httpClient,
	}
}

// NewGoogleRefresher refreshes YouTube connections.
func NewGoogleRefresher(clientID, clientSecret string, httpClient *http.Client) repository.ITokenRefresher {
	endpoint := google.Endpoint
	endpoint.AuthStyle = oauth2.AuthStyleInParams
	return NewOAuth2Refresher(model.PlatformYouTube, clientID, clientSecret, endpoint, httpClient)
}

// NewLinkedInRefresher refreshes LinkedIn connections.
func NewLinkedInRefresher(clientID, clientSecret string, httpClient *http.Client) repository.ITokenRefresher {
	return NewOAuth2Refresher(model.PlatformLinkedIn, clientID, clientSecret, LinkedInEndpoint, httpClient)
}

func (r *oauth2Refresher) Refresh(ctx context.Context, conn *model.PlatformConnection) (*repository.RefreshedToken, error) {
	if r.config.ClientID == "" || r.config.ClientSecret == "" {
		return nil, model.NewConfigError(r.platform, fmt.Sprintf("%s OAuth client is not configured", r.platform))
	}
	if conn.RefreshToken == "" {
		return nil, rejected(r.platform, errors.New("connection has no refresh token"))
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	// An already expired token forces the source to run the grant.
	stale := &oauth2.Token{RefreshToken: conn.RefreshToken, Expiry: time.Now().Add(-time.Minute)}
	tok, err := r.config.TokenSource(ctx, stale).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			code := re.Response.StatusCode
			if code == http.StatusTooManyRequests || code >= 500 {
				return nil, fmt.Errorf("refresh %s: HTTP %d: %w", r.platform, code, err)
			}
			logger.GetLogger().WithField("platform", r.platform).WithField("error_code", re.ErrorCode).Warn("Refresh token rejected")
			return nil, rejected(r.platform, err)
		}
		return nil, fmt.Errorf("refresh %s: %w", r.platform, err)
	}

	out := &repository.RefreshedToken{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	if out.RefreshToken == "" {
		// Google keeps the original refresh token valid and omits it.
		out.RefreshToken = conn.RefreshToken
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		out.ExpiresAt = &exp
	}
	return out, nil
}
