package models

import "time"

// AuthAccount is an account's connection to an external auth provider (slack, github...).
// It is exposed to templates as accounts.<slug>.
type AuthAccount struct {
	ID             string     `json:"account_auth_provider_account_id"`
	AccountID      string     `json:"account_id"`
	ProviderID     string     `json:"auth_provider_id"`
	Slug           string     `json:"account_auth_provider_account_slug"`
	AccessToken    string     `json:"access_token"`
	RefreshToken   string     `json:"refresh_token,omitempty"`
	TokenType      string     `json:"token_type,omitempty"`
	ExpiresAt      *time.Time `json:"access_token_expires_at,omitempty"`
	AccountDetails any        `json:"account_details,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// AuthProvider holds the OAuth client configuration used to refresh tokens.
type AuthProvider struct {
	ID           string   `json:"auth_provider_id"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	TokenURL     string   `json:"token_url"`
	Scopes       []string `json:"scopes,omitempty"`
}

// Expired reports whether the access token has an expiry in the past (with leeway).
func (a *AuthAccount) Expired(now time.Time, leeway time.Duration) bool {
	if a.ExpiresAt == nil {
		return false
	}

	return !a.ExpiresAt.After(now.Add(leeway))
}
