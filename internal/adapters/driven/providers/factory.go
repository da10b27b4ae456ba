package providers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jdrouet/tekitoi/internal/core/domain"
	"github.com/jdrouet/tekitoi/internal/core/ports/driven"
)

// Ensure Factory implements the interface.
var _ driven.ProviderFactory = (*Factory)(nil)

// Config holds the settings shared by every federated adapter
type Config struct {
	// RedirectURL is this service's upstream callback, BASE_URL + "/api/redirect"
	RedirectURL string

	// HTTPClient is used for token exchanges and profile fetches
	HTTPClient *http.Client
}

// Factory builds federated adapters and profile clients per provider kind.
// Flavors are fixed at construction, one per federated kind.
type Factory struct {
	flavors    map[domain.ProviderKind]Flavor
	redirect   string
	httpClient *http.Client
}

// NewFactory creates a factory with the built-in github, gitlab, google
// and generic oauth flavors registered.
func NewFactory(cfg Config) *Factory {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	f := &Factory{
		flavors:    make(map[domain.ProviderKind]Flavor),
		redirect:   cfg.RedirectURL,
		httpClient: httpClient,
	}
	for _, flavor := range []Flavor{GitHub(), GitLab(), Google(), GenericOAuth()} {
		f.flavors[flavor.Kind] = flavor
	}
	return f
}

func (f *Factory) flavor(provider *domain.Provider) (Flavor, error) {
	if provider == nil || !provider.Kind.IsFederated() || provider.Federated == nil {
		return Flavor{}, fmt.Errorf("%w: no upstream configuration", domain.ErrProviderNotFound)
	}
	flavor, ok := f.flavors[provider.Kind]
	if !ok {
		return Flavor{}, fmt.Errorf("%w: unsupported kind %s", domain.ErrProviderNotFound, provider.Kind)
	}
	return flavor, nil
}

// Federated returns the hop adapter for a federated provider.
func (f *Factory) Federated(provider *domain.Provider) (driven.FederatedProvider, error) {
	flavor, err := f.flavor(provider)
	if err != nil {
		return nil, err
	}
	return newFederated(flavor, provider.Federated, f.redirect, f.httpClient), nil
}

// Client returns the profile fetcher for a federated provider.
func (f *Factory) Client(provider *domain.Provider) (driven.ProviderClient, error) {
	flavor, err := f.flavor(provider)
	if err != nil {
		return nil, err
	}
	userURL := provider.Federated.UserInfoURL
	if userURL == "" {
		userURL = flavor.UserURL
	}
	if userURL == "" {
		return nil, fmt.Errorf("%w: %s has no user url", domain.ErrInvalidInput, provider.Kind)
	}
	return &profileClient{
		kind:       provider.Kind,
		url:        userURL,
		decode:     flavor.Decode,
		httpClient: f.httpClient,
	}, nil
}
