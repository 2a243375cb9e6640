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

const tiktokTokenURL = "https://open.tiktokapis.com/v2/oauth/token/"

type tiktokRefresher struct {
	clientKey    string
	clientSecret string
	tokenURL     string
	api          *apiclient.Client
}

// NewTikTokRefresher uses TikTok's token endpoint, which expects
// client_key instead of client_id.
func NewTikTokRefresher(clientKey, clientSecret, tokenURL string, httpClient *http.Client) repository.ITokenRefresher {
	if tokenURL == "" {
		tokenURL = tiktokTokenURL
	}
	return &tiktokRefresher{
		clientKey:    clientKey,
		clientSecret: clientSecret,
		tokenURL:     tokenURL,
		api:          apiclient.New(model.PlatformTikTok, httpClient),
	}
}

type tiktokGrant struct {
	ClientKey    string `url:"client_key"`
	ClientSecret string `url:"client_secret"`
	GrantType    string `url:"grant_type"`
	RefreshToken string `url:"refresh_token"`
}

type tiktokToken struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshToken     string `json:"refresh_token"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
	OpenID           string `json:"open_id"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (r *tiktokRefresher) Refresh(ctx context.Context, conn *model.PlatformConnection) (*repository.RefreshedToken, error) {
	if r.clientKey == "" || r.clientSecret == "" {
		return nil, model.NewConfigError(model.PlatformTikTok, "TikTok client key and secret are not configured")
	}
	if conn.RefreshToken == "" {
		return nil, rejected(model.PlatformTikTok, fmt.Errorf("connection has no refresh token"))
	}
	form, err := query.Values(tiktokGrant{
		ClientKey:    r.clientKey,
		ClientSecret: r.clientSecret,
		GrantType:    "refresh_token",
		RefreshToken: conn.RefreshToken,
	})
	if err != nil {
		return nil, err
	}
	var out tiktokToken
	if _, err := r.api.PostForm(ctx, r.tokenURL, form, map[string]string{"Cache-Control": "no-cache"}, &out); err != nil {
		return nil, fromAPIError(model.PlatformTikTok, err)
	}
	// TikTok reports grant errors with a 200 status.
	if out.Error != "" {
		return nil, rejected(model.PlatformTikTok, fmt.Errorf("%s: %s", out.Error, out.ErrorDescription))
	}
	if out.AccessToken == "" {
		return nil, rejected(model.PlatformTikTok, fmt.Errorf("token endpoint returned no access token"))
	}
	refreshToken := out.RefreshToken
	if refreshToken == "" {
		refreshToken = conn.RefreshToken
	}
	return &repository.RefreshedToken{
		AccessToken:  out.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiry(time.Now().UTC(), out.ExpiresIn),
	}, nil
}
