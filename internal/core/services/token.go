package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jdrouet/tekitoi/internal/core/domain"
	"github.com/jdrouet/tekitoi/internal/core/pkce"
	"github.com/jdrouet/tekitoi/internal/core/ports/driving"
)

// GrantTypeAuthorizationCode is the only supported grant
const GrantTypeAuthorizationCode = "authorization_code"

// TokenExchange consumes an issued code and mints an access token.
// The code is consumed before any other check so that it can never be
// replayed, even after a failed attempt.
func (s *authorizationService) TokenExchange(ctx context.Context, req driving.TokenRequest) (*domain.TokenResponse, error) {
	if req.Code == "" {
		return nil, fmt.Errorf("%w: code is required", domain.ErrInvalidInput)
	}

	record, err := s.correlations.TakeOnce(ctx, domain.CorrelationCode, req.Code)
	if err != nil {
		return nil, fmt.Errorf("take code: %w", err)
	}
	code := record.Code

	if req.GrantType != GrantTypeAuthorizationCode {
		return nil, domain.ErrUnsupportedGrantType
	}
	if req.RedirectURI != code.Request.RedirectURI {
		return nil, domain.ErrRedirectURIMismatch
	}
	if err := s.authenticateClient(ctx, code, req); err != nil {
		return nil, err
	}
	if !pkce.Verify(code.Request.CodeChallengeMethod, code.Request.CodeChallenge, req.CodeVerifier) {
		return nil, domain.ErrPKCEVerificationFailed
	}

	token, err := pkce.GenerateToken(pkce.AccessTokenLength)
	if err != nil {
		return nil, err
	}
	now := s.now()
	session := &domain.Session{
		Token:         token,
		ApplicationID: code.Request.ApplicationID,
		ProviderID:    code.ProviderID,
		ProviderKind:  code.ProviderKind,
		UserID:        code.UserID,
		Scope:         code.Request.Scope,
		CreatedAt:     now,
	}
	if s.accessTokenTTL > 0 {
		expiresAt := now.Add(s.accessTokenTTL)
		session.ExpiresAt = &expiresAt
	}

	if code.IsFederated() {
		upstream, err := s.exchangeUpstream(ctx, code)
		if err != nil {
			return nil, err
		}
		session.Upstream = upstream
	}

	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	s.logger.Info("access token issued",
		"client_id", code.Request.ClientID,
		"provider", code.ProviderKind,
	)

	resp := &domain.TokenResponse{
		AccessToken: session.Token,
		TokenType:   "bearer",
		Scope:       session.Scope,
	}
	if session.ExpiresAt != nil {
		resp.ExpiresIn = int64(s.accessTokenTTL.Seconds())
	}
	return resp, nil
}

// authenticateClient checks the client id and secret when the caller supplied them
func (s *authorizationService) authenticateClient(ctx context.Context, code *domain.IssuedCode, req driving.TokenRequest) error {
	if req.ClientID != "" && req.ClientID != code.Request.ClientID {
		return fmt.Errorf("%w: code was issued to another client", domain.ErrClientNotFound)
	}
	if req.ClientSecret == "" {
		return nil
	}
	app, err := s.registry.GetApplication(ctx, code.Request.ApplicationID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrClientNotFound
	}
	if err != nil {
		return fmt.Errorf("get application: %w", err)
	}
	return app.ValidateClientSecret(req.ClientSecret)
}

func (s *authorizationService) exchangeUpstream(ctx context.Context, code *domain.IssuedCode) (*domain.UpstreamToken, error) {
	provider, err := s.findProvider(ctx, code.Request.ApplicationID, code.ProviderID)
	if err != nil {
		return nil, err
	}
	adapter, err := s.providers.Federated(provider)
	if err != nil {
		return nil, err
	}
	upstream, err := adapter.ExchangeCode(ctx, code.UpstreamCode, code.UpstreamVerifier)
	if err != nil {
		s.logger.Warn("upstream code exchange failed",
			"provider", provider.Kind,
			"error", err,
		)
		return nil, asUpstreamError(provider.Kind, err)
	}
	return upstream, nil
}

// UserInfo resolves the profile behind an access token.
func (s *authorizationService) UserInfo(ctx context.Context, accessToken string) (*domain.UserProfile, error) {
	if accessToken == "" {
		return nil, domain.ErrUnauthorizedToken
	}
	session, err := s.sessions.Get(ctx, accessToken)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrUnauthorizedToken
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session.IsExpired(s.now()) {
		return nil, domain.ErrUnauthorizedToken
	}

	if !session.IsFederated() {
		user, err := s.users.FindByID(ctx, session.ApplicationID, session.ProviderKind, session.UserID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnauthorizedToken
		}
		if err != nil {
			return nil, fmt.Errorf("find user: %w", err)
		}
		return user.Profile(), nil
	}

	provider, err := s.findProvider(ctx, session.ApplicationID, session.ProviderID)
	if errors.Is(err, domain.ErrProviderNotFound) {
		return nil, domain.ErrUnauthorizedToken
	}
	if err != nil {
		return nil, err
	}
	client, err := s.providers.Client(provider)
	if err != nil {
		return nil, err
	}
	profile, err := client.FetchUser(ctx, session.Upstream.AccessToken)
	if err != nil {
		s.logger.Warn("upstream user fetch failed",
			"provider", provider.Kind,
			"error", err,
		)
		return nil, asUpstreamError(provider.Kind, err)
	}
	profile.Provider = provider.Kind
	return profile, nil
}

func asUpstreamError(kind domain.ProviderKind, err error) error {
	if errors.Is(err, domain.ErrUpstreamProvider) {
		return err
	}
	return &domain.UpstreamError{Provider: kind, Err: err}
}
