package domain

import (
	"fmt"
	"time"
)

// DefaultCorrelationTTL bounds the lifetime of every ephemeral record
const DefaultCorrelationTTL = 10 * time.Minute

// CodeChallengeMethod is the PKCE transformation applied to the verifier
type CodeChallengeMethod string

const (
	CodeChallengePlain CodeChallengeMethod = "plain"
	CodeChallengeS256  CodeChallengeMethod = "S256"
)

// PendingAuthorizationRequest is the relying application's initial request
type PendingAuthorizationRequest struct {
	ID                  string              `json:"id"`
	ApplicationID       string              `json:"application_id"`
	ClientID            string              `json:"client_id"`
	RedirectURI         string              `json:"redirect_uri"`
	State               string              `json:"state"`
	Scope               string              `json:"scope,omitempty"`
	CodeChallenge       string              `json:"code_challenge"`
	CodeChallengeMethod CodeChallengeMethod `json:"code_challenge_method"`
	CreatedAt           time.Time           `json:"created_at"`
	ExpiresAt           time.Time           `json:"expires_at"`
}

// ProviderAuthorizationRequest links an upstream hop back to the pending request.
// The pending request is carried by value since it has been consumed.
type ProviderAuthorizationRequest struct {
	ID               string                      `json:"id"`
	PendingRequestID string                      `json:"pending_request_id"`
	Pending          PendingAuthorizationRequest `json:"pending"`
	ProviderID       string                      `json:"provider_id"`
	CSRFToken        string                      `json:"csrf_token"`
	PKCEVerifier     string                      `json:"pkce_verifier"`
	CreatedAt        time.Time                   `json:"created_at"`
	ExpiresAt        time.Time                   `json:"expires_at"`
}

// IssuedCode is the authorization code handed to the relying application.
// Local logins carry UserID, federated logins carry the upstream code and verifier.
type IssuedCode struct {
	Code              string                      `json:"code"`
	Request           PendingAuthorizationRequest `json:"request"`
	ProviderID        string                      `json:"provider_id"`
	ProviderKind      ProviderKind                `json:"provider_kind"`
	UserID            string                      `json:"user_id,omitempty"`
	ProviderRequestID string                      `json:"provider_request_id,omitempty"`
	UpstreamCode      string                      `json:"upstream_code,omitempty"`
	UpstreamVerifier  string                      `json:"upstream_verifier,omitempty"`
	CreatedAt         time.Time                   `json:"created_at"`
	ExpiresAt         time.Time                   `json:"expires_at"`
}

// IsFederated reports whether the code still needs an upstream exchange
func (c *IssuedCode) IsFederated() bool {
	return c.UpstreamCode != ""
}

// CorrelationKind namespaces correlation keys so a state can never be used as a code
type CorrelationKind string

const (
	CorrelationPending         CorrelationKind = "pending"
	CorrelationProviderRequest CorrelationKind = "provider_request"
	CorrelationCode            CorrelationKind = "code"
)

// Correlation is the envelope persisted by every CorrelationStore backend.
// Exactly one payload matching Kind is set.
type Correlation struct {
	Kind            CorrelationKind               `json:"kind"`
	Key             string                        `json:"key"`
	Pending         *PendingAuthorizationRequest  `json:"pending,omitempty"`
	ProviderRequest *ProviderAuthorizationRequest `json:"provider_request,omitempty"`
	Code            *IssuedCode                   `json:"code,omitempty"`
	CreatedAt       time.Time                     `json:"created_at"`
	ExpiresAt       time.Time                     `json:"expires_at"`
}

// NewPendingCorrelation wraps a pending request keyed by its id
func NewPendingCorrelation(p *PendingAuthorizationRequest) *Correlation {
	return &Correlation{
		Kind:      CorrelationPending,
		Key:       p.ID,
		Pending:   p,
		CreatedAt: p.CreatedAt,
		ExpiresAt: p.ExpiresAt,
	}
}

// NewProviderRequestCorrelation wraps a provider request keyed by its CSRF token
func NewProviderRequestCorrelation(p *ProviderAuthorizationRequest) *Correlation {
	return &Correlation{
		Kind:            CorrelationProviderRequest,
		Key:             p.CSRFToken,
		ProviderRequest: p,
		CreatedAt:       p.CreatedAt,
		ExpiresAt:       p.ExpiresAt,
	}
}

// NewCodeCorrelation wraps an issued code keyed by the code itself
func NewCodeCorrelation(c *IssuedCode) *Correlation {
	return &Correlation{
		Kind:      CorrelationCode,
		Key:       c.Code,
		Code:      c,
		CreatedAt: c.CreatedAt,
		ExpiresAt: c.ExpiresAt,
	}
}

// IsExpired checks if the record is past its expiry at the given instant
func (c *Correlation) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// TTL returns the remaining lifetime, zero once expired
func (c *Correlation) TTL(now time.Time) time.Duration {
	ttl := c.ExpiresAt.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// ValidateAt checks the envelope is well formed and still alive at now.
// Stores call it before writing so that a dead record is never handed out.
func (c *Correlation) ValidateAt(now time.Time) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.IsExpired(now) {
		return fmt.Errorf("%w: %s correlation already expired", ErrInvalidInput, c.Kind)
	}
	return nil
}

// Validate checks the envelope is well formed before it is stored
func (c *Correlation) Validate() error {
	if c.Key == "" {
		return fmt.Errorf("%w: correlation key is empty", ErrInvalidInput)
	}
	if c.ExpiresAt.IsZero() {
		return fmt.Errorf("%w: correlation has no expiry", ErrInvalidInput)
	}
	var ok bool
	switch c.Kind {
	case CorrelationPending:
		ok = c.Pending != nil && c.ProviderRequest == nil && c.Code == nil
	case CorrelationProviderRequest:
		ok = c.ProviderRequest != nil && c.Pending == nil && c.Code == nil
	case CorrelationCode:
		ok = c.Code != nil && c.Pending == nil && c.ProviderRequest == nil
	default:
		return fmt.Errorf("%w: unknown correlation kind %q", ErrInvalidInput, c.Kind)
	}
	if !ok {
		return fmt.Errorf("%w: %s correlation payload mismatch", ErrInvalidInput, c.Kind)
	}
	return nil
}
