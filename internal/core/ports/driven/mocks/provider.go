package mocks

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/jdrouet/tekitoi/internal/core/domain"
	"github.com/jdrouet/tekitoi/internal/core/ports/driven"
)

var (
	_ driven.FederatedProvider = (*MockFederatedProvider)(nil)
	_ driven.ProviderClient    = (*MockProviderClient)(nil)
	_ driven.ProviderFactory   = (*MockProviderFactory)(nil)
)

// MockFederatedProvider builds URLs on a fake upstream and records exchanges
type MockFederatedProvider struct {
	mu sync.Mutex

	ProviderKind domain.ProviderKind
	AuthorizeURL string
	ExchangeFn   func(code, verifier string) (*domain.UpstreamToken, error)
	Exchanges    []string
}

func NewMockFederatedProvider(kind domain.ProviderKind) *MockFederatedProvider {
	return &MockFederatedProvider{
		ProviderKind: kind,
		AuthorizeURL: "https://upstream.example.com/authorize",
	}
}

func (m *MockFederatedProvider) Kind() domain.ProviderKind {
	return m.ProviderKind
}

func (m *MockFederatedProvider) BuildAuthorizeURL(csrfToken, pkceChallenge string, scopes []string) string {
	q := url.Values{}
	q.Set("state", csrfToken)
	q.Set("code_challenge", pkceChallenge)
	q.Set("code_challenge_method", "S256")
	if len(scopes) > 0 {
		q.Set("scope", strings.Join(scopes, " "))
	}
	return m.AuthorizeURL + "?" + q.Encode()
}

func (m *MockFederatedProvider) ExchangeCode(ctx context.Context, upstreamCode, pkceVerifier string) (*domain.UpstreamToken, error) {
	m.mu.Lock()
	m.Exchanges = append(m.Exchanges, upstreamCode)
	m.mu.Unlock()
	if m.ExchangeFn != nil {
		return m.ExchangeFn(upstreamCode, pkceVerifier)
	}
	return &domain.UpstreamToken{AccessToken: "upstream-" + upstreamCode, TokenType: "bearer"}, nil
}

// MockProviderClient returns a fixed profile or the FetchFn result
type MockProviderClient struct {
	Profile *domain.UserProfile
	FetchFn func(accessToken string) (*domain.UserProfile, error)
}

func (m *MockProviderClient) FetchUser(ctx context.Context, accessToken string) (*domain.UserProfile, error) {
	if m.FetchFn != nil {
		return m.FetchFn(accessToken)
	}
	if m.Profile == nil {
		return nil, &domain.UpstreamError{Code: "unauthorized"}
	}
	cp := *m.Profile
	return &cp, nil
}

// MockProviderFactory hands out the registered mocks by kind
type MockProviderFactory struct {
	Providers map[domain.ProviderKind]*MockFederatedProvider
	Clients   map[domain.ProviderKind]*MockProviderClient
}

func NewMockProviderFactory() *MockProviderFactory {
	return &MockProviderFactory{
		Providers: make(map[domain.ProviderKind]*MockFederatedProvider),
		Clients:   make(map[domain.ProviderKind]*MockProviderClient),
	}
}

func (m *MockProviderFactory) Federated(provider *domain.Provider) (driven.FederatedProvider, error) {
	p, ok := m.Providers[provider.Kind]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return p, nil
}

func (m *MockProviderFactory) Client(provider *domain.Provider) (driven.ProviderClient, error) {
	c, ok := m.Clients[provider.Kind]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return c, nil
}
