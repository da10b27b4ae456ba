package driving

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/jdrouet/tekitoi/internal/core/domain"
)

// OAuth2 error codes (RFC 6749 sections 4.1.2.1 and 5.2, RFC 6750 section 3.1)
const (
	ErrCodeInvalidRequest          = "invalid_request"
	ErrCodeInvalidClient           = "invalid_client"
	ErrCodeInvalidGrant            = "invalid_grant"
	ErrCodeUnauthorizedClient      = "unauthorized_client"
	ErrCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrCodeAccessDenied            = "access_denied"
	ErrCodeInvalidScope            = "invalid_scope"
	ErrCodeInvalidToken            = "invalid_token"
	ErrCodeServerError             = "server_error"
	ErrCodeTemporarilyUnavailable  = "temporarily_unavailable"
	ErrCodeUnsupportedResponseType = "unsupported_response_type"
)

// OAuthError is an error as seen by the relying application.
// When RedirectURI is set the error is delivered by redirect, otherwise as JSON.
type OAuthError struct {
	Code        string `json:"error" example:"invalid_grant"`
	Description string `json:"error_description,omitempty" example:"The authorization code is invalid or expired"`
	URI         string `json:"error_uri,omitempty"`

	Status      int    `json:"-"`
	RedirectURI string `json:"-"`
	State       string `json:"-"`

	cause error
}

func (e *OAuthError) Error() string {
	if e.Description != "" {
		return e.Code + ": " + e.Description
	}
	return e.Code
}

func (e *OAuthError) Unwrap() error {
	return e.cause
}

// WithRedirect returns a copy delivered to the relying application's redirect uri
func (e *OAuthError) WithRedirect(redirectURI, state string) *OAuthError {
	cp := *e
	cp.RedirectURI = redirectURI
	cp.State = state
	return &cp
}

// RedirectURL returns the redirect uri with the error parameters appended,
// empty when the error has no redirect target.
func (e *OAuthError) RedirectURL() string {
	if e.RedirectURI == "" {
		return ""
	}
	q := url.Values{}
	q.Set("error", e.Code)
	if e.Description != "" {
		q.Set("error_description", e.Description)
	}
	if e.URI != "" {
		q.Set("error_uri", e.URI)
	}
	if e.State != "" {
		q.Set("state", e.State)
	}
	return AppendQuery(e.RedirectURI, q)
}

// NewOAuthError maps a domain error to its wire representation.
// Descriptions never include internal details.
func NewOAuthError(err error) *OAuthError {
	var oe *OAuthError
	if errors.As(err, &oe) {
		return oe
	}

	out := &OAuthError{cause: err}
	switch {
	case errors.Is(err, domain.ErrClientNotFound):
		out.Code, out.Status, out.Description = ErrCodeInvalidClient, http.StatusBadRequest, "Unknown client"
	case errors.Is(err, domain.ErrRedirectURIMismatch):
		out.Code, out.Status, out.Description = ErrCodeInvalidRequest, http.StatusBadRequest, "The redirect uri does not match the registered one"
	case errors.Is(err, domain.ErrInvalidClientSecret):
		out.Code, out.Status, out.Description = ErrCodeInvalidClient, http.StatusUnauthorized, "Client authentication failed"
	case errors.Is(err, domain.ErrUnsupportedCodeChallengeMethod):
		out.Code, out.Status, out.Description = ErrCodeInvalidRequest, http.StatusBadRequest, "Unsupported code challenge method"
	case errors.Is(err, domain.ErrCorrelationNotFound):
		out.Code, out.Status, out.Description = ErrCodeInvalidGrant, http.StatusBadRequest, "The request is invalid, expired or was already used"
	case errors.Is(err, domain.ErrPKCEVerificationFailed):
		out.Code, out.Status, out.Description = ErrCodeInvalidGrant, http.StatusBadRequest, "The code verifier does not match the challenge"
	case errors.Is(err, domain.ErrProviderNotFound):
		out.Code, out.Status, out.Description = ErrCodeInvalidRequest, http.StatusBadRequest, "Unknown provider"
	case errors.Is(err, domain.ErrUpstreamProvider):
		out.Code, out.Status, out.Description = ErrCodeServerError, http.StatusBadGateway, "The identity provider could not complete the request"
	case errors.Is(err, domain.ErrInvalidCredentials):
		out.Code, out.Status, out.Description = ErrCodeAccessDenied, http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, domain.ErrUnauthorizedToken):
		out.Code, out.Status, out.Description = ErrCodeInvalidToken, http.StatusUnauthorized, "The access token is invalid or expired"
	case errors.Is(err, domain.ErrUnsupportedGrantType):
		out.Code, out.Status, out.Description = ErrCodeUnsupportedGrantType, http.StatusBadRequest, "Only authorization_code is supported"
	case errors.Is(err, domain.ErrInvalidInput):
		out.Code, out.Status, out.Description = ErrCodeInvalidRequest, http.StatusBadRequest, "Invalid request"
	default:
		out.Code, out.Status, out.Description = ErrCodeServerError, http.StatusInternalServerError, "Internal error"
	}
	return out
}

// LoginError is returned when a local login is rejected. The browser is sent
// back to the authorize page with the original parameters.
type LoginError struct {
	Authorize AuthorizeRequest
	Err       error
}

func (e *LoginError) Error() string {
	return "login rejected: " + e.Err.Error()
}

func (e *LoginError) Unwrap() error {
	return e.Err
}

// RetryURL returns the authorize page URL flagged with access_denied
func (e *LoginError) RetryURL() string {
	q := e.Authorize.Query()
	q.Set("error", ErrCodeAccessDenied)
	return "/authorize?" + q.Encode()
}

// AppendQuery merges params into the query string of rawURL
func AppendQuery(rawURL string, params url.Values) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
