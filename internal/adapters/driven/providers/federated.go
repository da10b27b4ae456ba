package providers

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/jdrouet/tekitoi/internal/core/domain"
	"github.com/jdrouet/tekitoi/internal/core/ports/driven"
)

// Ensure federated implements the interface.
var _ driven.FederatedProvider = (*federated)(nil)

// federated drives the upstream authorization code hop with PKCE S256.
type federated struct {
	kind          domain.ProviderKind
	config        oauth2.Config
	defaultScopes []string
	httpClient    *http.Client
}

func newFederated(flavor Flavor, cfg *domain.FederatedConfig, redirectURL string, httpClient *http.Client) *federated {
	endpoint := flavor.Endpoint
	if cfg.AuthorizationURL != "" {
		endpoint.AuthURL = cfg.AuthorizationURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	return &federated{
		kind: flavor.Kind,
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  redirectURL,
		},
		defaultScopes: flavor.DefaultScopes,
		httpClient:    httpClient,
	}
}

func (p *federated) Kind() domain.ProviderKind {
	return p.kind
}

// BuildAuthorizeURL returns the upstream authorize URL. Empty scopes fall
// back to the flavor defaults.
func (p *federated) BuildAuthorizeURL(csrfToken, pkceChallenge string, scopes []string) string {
	cfg := p.config
	cfg.Scopes = scopes
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = p.defaultScopes
	}
	return cfg.AuthCodeURL(csrfToken,
		oauth2.SetAuthURLParam("code_challenge", pkceChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", string(domain.CodeChallengeS256)),
	)
}

// ExchangeCode trades the upstream code for an upstream token.
func (p *federated) ExchangeCode(ctx context.Context, upstreamCode, pkceVerifier string) (*domain.UpstreamToken, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	token, err := p.config.Exchange(ctx, upstreamCode, oauth2.VerifierOption(pkceVerifier))
	if err != nil {
		upstream := &domain.UpstreamError{Provider: p.kind, Err: err}
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			upstream.Code = retrieveErr.ErrorCode
			upstream.Description = retrieveErr.ErrorDescription
		}
		return nil, upstream
	}

	result := &domain.UpstreamToken{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}
	if scope, ok := token.Extra("scope").(string); ok {
		result.Scope = scope
	}
	return result, nil
}
