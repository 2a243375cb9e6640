package refresh

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-querystring/query"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/clients/apiclient"
)

type facebookRefresher struct {
	platform  model.Platform
	appID     string
	appSecret string
	tokenURL  string
	api       *apiclient.Client
}

// NewFacebookRefresher exchanges the current long-lived user token for a
// fresh one. Instagram business accounts use the same Facebook app.
func NewFacebookRefresher(platform model.Platform, appID, appSecret, graphBaseURL, version string, httpClient *http.Client) repository.ITokenRefresher {
	if graphBaseURL == "" {
		graphBaseURL = "https://graph.facebook.com"
	}
	if version == "" {
		version = "v19.0"
	}
	return &facebookRefresher{
		platform:  platform,
		appID:     appID,
		appSecret: appSecret,
		tokenURL:  fmt.Sprintf("%s/%s/oauth/access_token", graphBaseURL, version),
		api:       apiclient.New(platform, httpClient),
	}
}

type exchangeParams struct {
	GrantType       string `url:"grant_type"`
	ClientID        string `url:"client_id"`
	ClientSecret    string `url:"client_secret"`
	FBExchangeToken string `url:"fb_exchange_token"`
}

type exchangeResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (r *facebookRefresher) Refresh(ctx context.Context, conn *model.PlatformConnection) (*repository.RefreshedToken, error) {
	if r.appID == "" || r.appSecret == "" {
		return nil, model.NewConfigError(r.platform, "Facebook app id and secret are not configured")
	}
	current := conn.RefreshToken
	if current == "" {
		current = conn.AccessToken
	}
	params, err := query.Values(exchangeParams{
		GrantType:       "fb_exchange_token",
		ClientID:        r.appID,
		ClientSecret:    r.appSecret,
		FBExchangeToken: current,
	})
	if err != nil {
		return nil, err
	}
	var out exchangeResponse
	if _, err := r.api.Get(ctx, r.tokenURL+"?"+params.Encode(), nil, &out); err != nil {
		return nil, fromAPIError(r.platform, err)
	}
	if out.AccessToken == "" {
		return nil, rejected(r.platform, fmt.Errorf("token exchange returned no access token"))
	}
	return &repository.RefreshedToken{
		AccessToken:  out.AccessToken,
		RefreshToken: conn.RefreshToken,
		ExpiresAt:    expiry(time.Now().UTC(), out.ExpiresIn),
	}, nil
}
