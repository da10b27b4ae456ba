package domain

import (
	"errors"
	"fmt"
)

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrClientNotFound indicates no application is registered for the client id
	ErrClientNotFound = errors.New("client not found")

	// ErrRedirectURIMismatch indicates the redirect uri differs from the registered one
	ErrRedirectURIMismatch = errors.New("redirect uri mismatch")

	// ErrInvalidClientSecret indicates the supplied client secret is not registered
	ErrInvalidClientSecret = errors.New("invalid client secret")

	// ErrUnsupportedCodeChallengeMethod indicates a PKCE method other than plain or S256
	ErrUnsupportedCodeChallengeMethod = errors.New("unsupported code challenge method")

	// ErrCorrelationNotFound covers unknown, expired and already consumed state, code or provider request
	ErrCorrelationNotFound = errors.New("correlation not found or expired")

	// ErrPKCEVerificationFailed indicates the code verifier does not match the stored challenge
	ErrPKCEVerificationFailed = errors.New("pkce verification failed")

	// ErrProviderNotFound indicates the provider is not configured for the application
	ErrProviderNotFound = errors.New("provider not found")

	// ErrUpstreamProvider indicates the federated provider rejected or failed a request
	ErrUpstreamProvider = errors.New("upstream provider error")

	// ErrInvalidCredentials indicates wrong login/password or an unknown user
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthorizedToken indicates the bearer token is unknown or expired
	ErrUnauthorizedToken = errors.New("unauthorized token")

	// ErrUnsupportedGrantType indicates a grant type other than authorization_code
	ErrUnsupportedGrantType = errors.New("unsupported grant type")

	// ErrStorage indicates a transient storage backend failure
	ErrStorage = errors.New("storage error")
)

// UpstreamError wraps a failure reported by a federated provider.
// Code and Description are what the provider sent; they are meant for
// operators and must not be forwarded to end users.
type UpstreamError struct {
	Provider    ProviderKind
	Code        string
	Description string
	Err         error
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("upstream %s", e.Provider)
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Description != "" {
		msg += " (" + e.Description + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is makes every UpstreamError match ErrUpstreamProvider.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamProvider
}

// StorageFailure wraps a backend error so that it matches ErrStorage.
func StorageFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}
