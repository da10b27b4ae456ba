package domain

import "time"

// UpstreamToken is the token obtained from a federated provider
type UpstreamToken struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// Session is an issued access token bound to an application, user and scope.
// Federated sessions have no local user and carry the upstream token instead.
type Session struct {
	Token         string         `json:"token"`
	ApplicationID string         `json:"application_id"`
	ProviderID    string         `json:"provider_id"`
	ProviderKind  ProviderKind   `json:"provider_kind"`
	UserID        string         `json:"user_id,omitempty"`
	Scope         string         `json:"scope,omitempty"`
	Upstream      *UpstreamToken `json:"upstream,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	ExpiresAt     *time.Time     `json:"expires_at,omitempty"`
}

// IsExpired checks if the session has expired
func (s *Session) IsExpired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

// IsFederated reports whether the profile lives at the upstream provider
func (s *Session) IsFederated() bool {
	return s.Upstream != nil
}

// TokenResponse is the body returned by the token endpoint
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
	Scope       string `json:"scope,omitempty"`
}
