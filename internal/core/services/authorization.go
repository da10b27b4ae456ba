package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/jdrouet/tekitoi/internal/core/domain"
	"github.com/jdrouet/tekitoi/internal/core/pkce"
	"github.com/jdrouet/tekitoi/internal/core/ports/driven"
	"github.com/jdrouet/tekitoi/internal/core/ports/driving"
)

// Ensure authorizationService implements AuthorizationService
var _ driving.AuthorizationService = (*authorizationService)(nil)

// AuthorizationServiceConfig holds configuration for the authorization service.
type AuthorizationServiceConfig struct {
	Registry     driven.ClientRegistry
	Users        driven.UserStore
	Correlations driven.CorrelationStore
	Sessions     driven.SessionStore
	Hasher       driven.PasswordHasher
	Providers    driven.ProviderFactory
	Logger       *slog.Logger

	// CorrelationTTL bounds pending requests, provider requests and codes (default: 10m)
	CorrelationTTL time.Duration

	// AccessTokenTTL bounds access tokens. Zero means tokens never expire.
	AccessTokenTTL time.Duration

	// Now overrides the clock, for tests
	Now func() time.Time
}

// authorizationService implements the AuthorizationService interface.
type authorizationService struct {
	registry       driven.ClientRegistry
	users          driven.UserStore
	correlations   driven.CorrelationStore
	sessions       driven.SessionStore
	providers      driven.ProviderFactory
	local          map[domain.ProviderKind]localAuthenticator
	logger         *slog.Logger
	correlationTTL time.Duration
	accessTokenTTL time.Duration
	now            func() time.Time
}

// NewAuthorizationService creates a new authorization service.
func NewAuthorizationService(cfg AuthorizationServiceConfig) driving.AuthorizationService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.CorrelationTTL
	if ttl <= 0 {
		ttl = domain.DefaultCorrelationTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &authorizationService{
		registry:       cfg.Registry,
		users:          cfg.Users,
		correlations:   cfg.Correlations,
		sessions:       cfg.Sessions,
		providers:      cfg.Providers,
		local:          newLocalAuthenticators(cfg.Users, cfg.Hasher),
		logger:         logger,
		correlationTTL: ttl,
		accessTokenTTL: cfg.AccessTokenTTL,
		now:            now,
	}
}

// Authorize validates the request and stores it as a pending request.
func (s *authorizationService) Authorize(ctx context.Context, req driving.AuthorizeRequest) (*driving.AuthorizeResponse, error) {
	app, pending, err := s.newPendingRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	providers, err := s.registry.ListProviders(ctx, app.ID)
	if err != nil {
		return nil, redirectError(fmt.Errorf("list providers: %w", err), pending)
	}
	if len(providers) == 0 {
		return nil, redirectError(domain.ErrProviderNotFound, pending)
	}

	options := make([]driving.ProviderOption, 0, len(providers))
	for _, p := range providers {
		option, err := s.providerOption(ctx, pending, p)
		if err != nil {
			return nil, redirectError(err, pending)
		}
		options = append(options, option)
	}

	if err := s.correlations.Put(ctx, domain.NewPendingCorrelation(pending)); err != nil {
		return nil, redirectError(fmt.Errorf("store pending request: %w", err), pending)
	}

	s.logger.Debug("authorization request accepted",
		"client_id", app.ClientID,
		"providers", len(options),
	)

	label := app.Label
	if label == "" {
		label = app.ClientID
	}
	resp := &driving.AuthorizeResponse{
		RequestID:   pending.ID,
		Application: label,
		Providers:   options,
		ExpiresAt:   pending.ExpiresAt,
	}
	if len(providers) == 1 && providers[0].Kind.IsFederated() {
		resp.Redirect = options[0].URL
	}
	return resp, nil
}

// newPendingRequest validates authorize parameters and builds a pending request.
// Errors raised before the redirect uri is trusted carry no redirect target.
func (s *authorizationService) newPendingRequest(ctx context.Context, req driving.AuthorizeRequest) (*domain.Application, *domain.PendingAuthorizationRequest, error) {
	if req.ClientID == "" {
		return nil, nil, driving.NewOAuthError(fmt.Errorf("%w: client_id is required", domain.ErrClientNotFound))
	}

	app, err := s.registry.FindApplication(ctx, req.ClientID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil, driving.NewOAuthError(domain.ErrClientNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("find application: %w", err)
	}
	if err := app.ValidateRedirectURI(req.RedirectURI); err != nil {
		return nil, nil, driving.NewOAuthError(err)
	}

	now := s.now()
	pending := &domain.PendingAuthorizationRequest{
		ApplicationID: app.ID,
		ClientID:      app.ClientID,
		RedirectURI:   req.RedirectURI,
		State:         req.State,
		Scope:         req.Scope,
		CodeChallenge: req.CodeChallenge,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.correlationTTL),
	}

	method, err := pkce.ParseMethod(req.CodeChallengeMethod)
	if err != nil {
		return nil, nil, redirectError(err, pending)
	}
	pending.CodeChallengeMethod = method
	if req.CodeChallenge == "" {
		return nil, nil, redirectError(fmt.Errorf("%w: code_challenge is required", domain.ErrInvalidInput), pending)
	}

	pending.ID, err = pkce.GenerateToken(pkce.StateLength)
	if err != nil {
		return nil, nil, redirectError(err, pending)
	}
	return app, pending, nil
}

func (s *authorizationService) providerOption(ctx context.Context, pending *domain.PendingAuthorizationRequest, p *domain.Provider) (driving.ProviderOption, error) {
	option := driving.ProviderOption{
		ID:    p.ID,
		Kind:  p.Kind,
		Label: p.DisplayName(),
	}
	if p.Kind.IsFederated() {
		option.URL = "/api/authorize/" + url.PathEscape(pending.ID) + "/" + url.PathEscape(p.ID)
		return option, nil
	}

	q := url.Values{}
	q.Set("request_id", pending.ID)
	option.URL = "/authorize/" + string(p.Kind) + "/login?" + q.Encode()
	if p.Kind == domain.ProviderKindCredentials {
		return option, nil
	}

	users, err := s.users.List(ctx, pending.ApplicationID, p.Kind)
	if err != nil {
		return option, fmt.Errorf("list users: %w", err)
	}
	for _, u := range users {
		uq := url.Values{}
		uq.Set("request_id", pending.ID)
		uq.Set("user", u.ID)
		option.Users = append(option.Users, driving.UserOption{
			ID:    u.ID,
			Login: u.Login,
			Email: u.Email,
			URL:   "/authorize/" + string(p.Kind) + "/login?" + uq.Encode(),
		})
	}
	return option, nil
}

// ProviderRedirect consumes a pending request and starts the upstream hop.
func (s *authorizationService) ProviderRedirect(ctx context.Context, requestID, providerID string) (*driving.RedirectResponse, error) {
	record, err := s.correlations.TakeOnce(ctx, domain.CorrelationPending, requestID)
	if err != nil {
		return nil, fmt.Errorf("take pending request: %w", err)
	}
	pending := record.Pending

	provider, err := s.findProvider(ctx, pending.ApplicationID, providerID)
	if err != nil {
		return nil, redirectError(err, pending)
	}
	if !provider.Kind.IsFederated() {
		return nil, redirectError(fmt.Errorf("%w: %s has no upstream", domain.ErrProviderNotFound, provider.Kind), pending)
	}
	adapter, err := s.providers.Federated(provider)
	if err != nil {
		return nil, redirectError(err, pending)
	}

	challenge, verifier, err := pkce.GenerateChallengePair(domain.CodeChallengeS256)
	if err != nil {
		return nil, redirectError(err, pending)
	}
	csrf, err := pkce.GenerateToken(pkce.StateLength)
	if err != nil {
		return nil, redirectError(err, pending)
	}
	id, err := pkce.GenerateToken(pkce.StateLength)
	if err != nil {
		return nil, redirectError(err, pending)
	}

	now := s.now()
	providerReq := &domain.ProviderAuthorizationRequest{
		ID:               id,
		PendingRequestID: pending.ID,
		Pending:          *pending,
		ProviderID:       provider.ID,
		CSRFToken:        csrf,
		PKCEVerifier:     verifier,
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.correlationTTL),
	}
	if err := s.correlations.Put(ctx, domain.NewProviderRequestCorrelation(providerReq)); err != nil {
		return nil, redirectError(fmt.Errorf("store provider request: %w", err), pending)
	}

	var scopes []string
	if provider.Federated != nil {
		scopes = provider.Federated.Scopes
	}

	s.logger.Debug("redirecting to upstream provider",
		"client_id", pending.ClientID,
		"provider", provider.Kind,
	)
	return &driving.RedirectResponse{Location: adapter.BuildAuthorizeURL(csrf, challenge, scopes)}, nil
}

// ProviderCallback consumes the provider request and issues a code.
// The upstream code is exchanged later, during the token exchange.
func (s *authorizationService) ProviderCallback(ctx context.Context, req driving.CallbackRequest) (*driving.RedirectResponse, error) {
	if req.State == "" {
		return nil, fmt.Errorf("%w: state is required", domain.ErrInvalidInput)
	}

	record, err := s.correlations.TakeOnce(ctx, domain.CorrelationProviderRequest, req.State)
	if err != nil {
		return nil, fmt.Errorf("take provider request: %w", err)
	}
	providerReq := record.ProviderRequest
	pending := &providerReq.Pending

	provider, err := s.findProvider(ctx, pending.ApplicationID, providerReq.ProviderID)
	if err != nil {
		return nil, redirectError(err, pending)
	}

	if req.Error != "" {
		s.logger.Warn("upstream provider returned an error",
			"provider", provider.Kind,
			"error", req.Error,
			"error_description", req.ErrorDescription,
			"error_uri", req.ErrorURI,
		)
		return nil, upstreamCallbackError(req.Error).WithRedirect(pending.RedirectURI, pending.State)
	}
	if req.Code == "" {
		return nil, redirectError(fmt.Errorf("%w: code is required", domain.ErrInvalidInput), pending)
	}

	return s.issueCode(ctx, &domain.IssuedCode{
		Request:           *pending,
		ProviderID:        provider.ID,
		ProviderKind:      provider.Kind,
		ProviderRequestID: providerReq.ID,
		UpstreamCode:      req.Code,
		UpstreamVerifier:  providerReq.PKCEVerifier,
	})
}

// issueCode stores a fresh code and redirects to the relying application.
func (s *authorizationService) issueCode(ctx context.Context, code *domain.IssuedCode) (*driving.RedirectResponse, error) {
	pending := &code.Request

	value, err := pkce.GenerateToken(pkce.CodeLength)
	if err != nil {
		return nil, redirectError(err, pending)
	}
	now := s.now()
	code.Code = value
	code.CreatedAt = now
	code.ExpiresAt = now.Add(s.correlationTTL)

	if err := s.correlations.Put(ctx, domain.NewCodeCorrelation(code)); err != nil {
		return nil, redirectError(fmt.Errorf("store code: %w", err), pending)
	}

	s.logger.Info("authorization code issued",
		"client_id", pending.ClientID,
		"provider", code.ProviderKind,
	)

	q := url.Values{}
	q.Set("code", code.Code)
	if pending.State != "" {
		q.Set("state", pending.State)
	}
	return &driving.RedirectResponse{Location: driving.AppendQuery(pending.RedirectURI, q)}, nil
}

// findProvider maps a missing provider to ErrProviderNotFound
func (s *authorizationService) findProvider(ctx context.Context, applicationID, providerKindOrID string) (*domain.Provider, error) {
	provider, err := s.registry.FindProvider(ctx, applicationID, providerKindOrID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrProviderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find provider: %w", err)
	}
	return provider, nil
}

// redirectError delivers err to the relying application of a pending request
func redirectError(err error, pending *domain.PendingAuthorizationRequest) error {
	return driving.NewOAuthError(err).WithRedirect(pending.RedirectURI, pending.State)
}

// upstreamCallbackError keeps the standard codes an upstream may send back
// through its callback and replaces anything else with server_error.
func upstreamCallbackError(code string) *driving.OAuthError {
	e := driving.NewOAuthError(&domain.UpstreamError{Code: code})
	switch code {
	case driving.ErrCodeAccessDenied, driving.ErrCodeTemporarilyUnavailable:
		cp := *e
		cp.Code = code
		cp.Description = "The identity provider did not authorize the request"
		return &cp
	}
	return e
}
