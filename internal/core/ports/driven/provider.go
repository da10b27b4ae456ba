package driven

import (
	"context"

	"github.com/jdrouet/tekitoi/internal/core/domain"
)

// FederatedProvider drives the upstream hop of a federated provider
type FederatedProvider interface {
	// Kind returns the provider kind
	Kind() domain.ProviderKind

	// BuildAuthorizeURL returns the upstream authorize URL carrying the CSRF
	// token as state and the S256 PKCE challenge.
	BuildAuthorizeURL(csrfToken, pkceChallenge string, scopes []string) string

	// ExchangeCode trades an upstream code for an upstream token.
	// Failures are returned as *domain.UpstreamError.
	ExchangeCode(ctx context.Context, upstreamCode, pkceVerifier string) (*domain.UpstreamToken, error)
}

// ProviderClient fetches the live profile behind an upstream access token
type ProviderClient interface {
	FetchUser(ctx context.Context, accessToken string) (*domain.UserProfile, error)
}

// ProviderFactory builds upstream adapters from provider configuration
type ProviderFactory interface {
	// Federated returns the hop adapter for a federated provider.
	// Returns domain.ErrProviderNotFound for local kinds.
	Federated(provider *domain.Provider) (FederatedProvider, error)

	// Client returns the profile fetcher for a federated provider
	Client(provider *domain.Provider) (ProviderClient, error)
}
