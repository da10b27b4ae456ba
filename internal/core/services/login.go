package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jdrouet/tekitoi/internal/core/domain"
	"github.com/jdrouet/tekitoi/internal/core/ports/driven"
	"github.com/jdrouet/tekitoi/internal/core/ports/driving"
)

// localAuthenticator resolves the user of a local login submission.
// Implementations return domain.ErrInvalidCredentials for any rejection.
type localAuthenticator interface {
	authenticate(ctx context.Context, applicationID string, req driving.LocalLoginRequest) (*domain.User, error)
}

func newLocalAuthenticators(users driven.UserStore, hasher driven.PasswordHasher) map[domain.ProviderKind]localAuthenticator {
	return map[domain.ProviderKind]localAuthenticator{
		domain.ProviderKindCredentials: &credentialsAuthenticator{users: users, hasher: hasher},
		domain.ProviderKindProfiles:    &selectionAuthenticator{users: users, kind: domain.ProviderKindProfiles},
		domain.ProviderKindUserList:    &selectionAuthenticator{users: users, kind: domain.ProviderKindUserList},
	}
}

// credentialsAuthenticator checks an email and password.
// Every lookup that reaches the store costs one hash comparison, whether the
// email is known or not.
type credentialsAuthenticator struct {
	users  driven.UserStore
	hasher driven.PasswordHasher

	decoyOnce sync.Once
	decoyHash string
}

// decoy compares the password with a hash nobody owns
func (a *credentialsAuthenticator) decoy(password string) {
	a.decoyOnce.Do(func() {
		a.decoyHash, _ = a.hasher.HashPassword("tekitoi:decoy")
	})
	a.hasher.VerifyPassword(password, a.decoyHash)
}

func (a *credentialsAuthenticator) authenticate(ctx context.Context, applicationID string, req driving.LocalLoginRequest) (*domain.User, error) {
	if req.Email == "" || req.Password == "" {
		return nil, domain.ErrInvalidCredentials
	}
	user, err := a.users.FindByEmail(ctx, applicationID, domain.ProviderKindCredentials, req.Email)
	if errors.Is(err, domain.ErrNotFound) {
		a.decoy(req.Password)
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !user.HasPassword() {
		a.decoy(req.Password)
		return nil, domain.ErrInvalidCredentials
	}
	if !a.hasher.VerifyPassword(req.Password, user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}
	return user, nil
}

// selectionAuthenticator accepts any user of the application picked on the page
type selectionAuthenticator struct {
	users driven.UserStore
	kind  domain.ProviderKind
}

func (a *selectionAuthenticator) authenticate(ctx context.Context, applicationID string, req driving.LocalLoginRequest) (*domain.User, error) {
	if req.UserID == "" {
		return nil, domain.ErrInvalidCredentials
	}
	user, err := a.users.FindByID(ctx, applicationID, a.kind, req.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

// LocalLogin authenticates against a local provider and issues a code.
func (s *authorizationService) LocalLogin(ctx context.Context, req driving.LocalLoginRequest) (*driving.RedirectResponse, error) {
	pending, err := s.resolvePending(ctx, req)
	if err != nil {
		return nil, err
	}

	authenticator, ok := s.local[req.Kind]
	if !ok {
		return nil, redirectError(fmt.Errorf("%w: %q is not a local provider", domain.ErrProviderNotFound, req.Kind), pending)
	}
	provider, err := s.findProvider(ctx, pending.ApplicationID, string(req.Kind))
	if err != nil {
		return nil, redirectError(err, pending)
	}

	user, err := authenticator.authenticate(ctx, pending.ApplicationID, req)
	if errors.Is(err, domain.ErrInvalidCredentials) {
		s.logger.Info("local login rejected",
			"client_id", pending.ClientID,
			"provider", provider.Kind,
		)
		return nil, &driving.LoginError{Authorize: authorizeRequestOf(pending), Err: err}
	}
	if err != nil {
		return nil, redirectError(err, pending)
	}

	return s.issueCode(ctx, &domain.IssuedCode{
		Request:      *pending,
		ProviderID:   provider.ID,
		ProviderKind: provider.Kind,
		UserID:       user.ID,
	})
}

// resolvePending consumes the referenced pending request, or validates the
// authorize parameters again when the login form carried them instead.
func (s *authorizationService) resolvePending(ctx context.Context, req driving.LocalLoginRequest) (*domain.PendingAuthorizationRequest, error) {
	if req.RequestID != "" {
		record, err := s.correlations.TakeOnce(ctx, domain.CorrelationPending, req.RequestID)
		if err != nil {
			return nil, fmt.Errorf("take pending request: %w", err)
		}
		return record.Pending, nil
	}
	_, pending, err := s.newPendingRequest(ctx, req.Authorize)
	if err != nil {
		return nil, err
	}
	return pending, nil
}

func authorizeRequestOf(p *domain.PendingAuthorizationRequest) driving.AuthorizeRequest {
	return driving.AuthorizeRequest{
		ClientID:            p.ClientID,
		RedirectURI:         p.RedirectURI,
		State:               p.State,
		Scope:               p.Scope,
		CodeChallenge:       p.CodeChallenge,
		CodeChallengeMethod: string(p.CodeChallengeMethod),
	}
}
