package domain

import (
	"fmt"
	"time"
)

// ProviderKind identifies an identity source. The set is closed.
type ProviderKind string

const (
	// Local kinds resolve users from the application's own user set
	ProviderKindCredentials ProviderKind = "credentials"
	ProviderKindProfiles    ProviderKind = "profiles"
	ProviderKindUserList    ProviderKind = "user-list"

	// Federated kinds delegate the login to an upstream OAuth2 provider
	ProviderKindGithub ProviderKind = "github"
	ProviderKindGitlab ProviderKind = "gitlab"
	ProviderKindGoogle ProviderKind = "google"
	ProviderKindOAuth  ProviderKind = "oauth"
)

// ParseProviderKind converts a raw value into a ProviderKind
func ParseProviderKind(s string) (ProviderKind, error) {
	kind := ProviderKind(s)
	if !kind.IsValid() {
		return "", fmt.Errorf("%w: unknown provider kind %q", ErrInvalidInput, s)
	}
	return kind, nil
}

// IsValid checks if the kind belongs to the supported set
func (k ProviderKind) IsValid() bool {
	return k.IsLocal() || k.IsFederated()
}

// IsLocal reports whether users are resolved without an upstream hop
func (k ProviderKind) IsLocal() bool {
	switch k {
	case ProviderKindCredentials, ProviderKindProfiles, ProviderKindUserList:
		return true
	}
	return false
}

// IsFederated reports whether the login is delegated upstream
func (k ProviderKind) IsFederated() bool {
	switch k {
	case ProviderKindGithub, ProviderKindGitlab, ProviderKindGoogle, ProviderKindOAuth:
		return true
	}
	return false
}

// DisplayName returns a human-readable name for the kind
func (k ProviderKind) DisplayName() string {
	switch k {
	case ProviderKindCredentials:
		return "Email and password"
	case ProviderKindProfiles:
		return "Profiles"
	case ProviderKindUserList:
		return "Users"
	case ProviderKindGithub:
		return "GitHub"
	case ProviderKindGitlab:
		return "GitLab"
	case ProviderKindGoogle:
		return "Google"
	case ProviderKindOAuth:
		return "OAuth"
	default:
		return string(k)
	}
}

// FederatedConfig holds the upstream OAuth2 client configuration.
// Empty URLs fall back to the kind's well-known endpoints.
type FederatedConfig struct {
	ClientID         string   `json:"client_id" yaml:"client_id"`
	ClientSecret     string   `json:"client_secret" yaml:"client_secret"`
	AuthorizationURL string   `json:"authorization_url,omitempty" yaml:"authorization_url"`
	TokenURL         string   `json:"token_url,omitempty" yaml:"token_url"`
	UserInfoURL      string   `json:"api_user_url,omitempty" yaml:"api_user_url"`
	Scopes           []string `json:"scopes,omitempty" yaml:"scopes"`
}

// Provider is an identity source configured for one application
type Provider struct {
	ID            string           `json:"id"`
	ApplicationID string           `json:"application_id"`
	Kind          ProviderKind     `json:"kind"`
	Label         string           `json:"label,omitempty"`
	Federated     *FederatedConfig `json:"-"` // Secret material, never serialize
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// DisplayName returns the label or the kind's default name
func (p *Provider) DisplayName() string {
	if p.Label != "" {
		return p.Label
	}
	return p.Kind.DisplayName()
}

// Validate checks the provider configuration is consistent with its kind
func (p *Provider) Validate() error {
	if !p.Kind.IsValid() {
		return fmt.Errorf("%w: unknown provider kind %q", ErrInvalidInput, p.Kind)
	}
	if p.Kind.IsLocal() {
		return nil
	}
	if p.Federated == nil || p.Federated.ClientID == "" {
		return fmt.Errorf("%w: %s provider requires a client id", ErrInvalidInput, p.Kind)
	}
	if p.Kind == ProviderKindOAuth {
		if p.Federated.AuthorizationURL == "" || p.Federated.TokenURL == "" || p.Federated.UserInfoURL == "" {
			return fmt.Errorf("%w: oauth provider requires authorization, token and user urls", ErrInvalidInput)
		}
	}
	return nil
}
