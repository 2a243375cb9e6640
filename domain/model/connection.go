package model

import "time"

// PlatformConnection stores a user's credentials for one platform account.
type PlatformConnection struct {
	ID                int64      `json:"id"`
	UserID            string     `json:"user_id"`
	Platform          Platform   `json:"platform"`
	AccessToken       string     `json:"-"`
	AccessTokenSecret string     `json:"-"` // OAuth 1.0a only
	RefreshToken      string     `json:"-"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	IsActive          bool       `json:"is_active"`
	// AccountID is the posting target on the platform: Facebook page id,
	// Instagram business user id, LinkedIn author URN, TikTok open id or
	// YouTube channel id.
	AccountID   *string   `json:"account_id,omitempty"`
	AccountName *string   `json:"account_name,omitempty"`
	Scopes      string    `json:"scopes"`
	TokenType   *string   `json:"token_type,omitempty"` // user | page
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Expired reports whether the access token is unusable at now. Connections
// without an expiry (OAuth 1.0a, page tokens) never expire.
func (c *PlatformConnection) Expired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !now.Before(*c.ExpiresAt)
}

// Credential extracts what an adapter needs from the connection.
func (c *PlatformConnection) Credential() Credential {
	cred := Credential{
		AccessToken:       c.AccessToken,
		AccessTokenSecret: c.AccessTokenSecret,
	}
	if c.AccountID != nil {
		cred.AccountID = *c.AccountID
	}
	if c.AccountName != nil {
		cred.AccountName = *c.AccountName
	}
	return cred
}

// Credential is the opaque token material handed to a platform adapter.
type Credential struct {
	AccessToken       string
	AccessTokenSecret string
	AccountID         string
	AccountName       string
}
