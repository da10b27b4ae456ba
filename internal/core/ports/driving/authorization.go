package driving

import (
	"context"
	"net/url"
	"time"

	"github.com/jdrouet/tekitoi/internal/core/domain"
)

// AuthorizationService runs the authorization code flow between relying
// applications, the broker and the configured identity providers.
type AuthorizationService interface {
	// Authorize validates the relying application's request and stores it as a
	// pending request. Returns the providers available for the login page.
	// Once the redirect target is known, errors carry it (see OAuthError.RedirectURL).
	Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResponse, error)

	// ProviderRedirect consumes a pending request and starts the upstream hop
	// of a federated provider. Returns the upstream authorize URL.
	ProviderRedirect(ctx context.Context, requestID, providerID string) (*RedirectResponse, error)

	// ProviderCallback consumes the provider request matching the upstream
	// state and redirects to the relying application with a fresh code,
	// or with the upstream error.
	ProviderCallback(ctx context.Context, req CallbackRequest) (*RedirectResponse, error)

	// LocalLogin authenticates against a local provider and redirects to the
	// relying application with a fresh code.
	// Credential failures are returned as *LoginError.
	LocalLogin(ctx context.Context, req LocalLoginRequest) (*RedirectResponse, error)

	// TokenExchange consumes an issued code and mints an access token.
	TokenExchange(ctx context.Context, req TokenRequest) (*domain.TokenResponse, error)

	// UserInfo resolves the profile behind an access token.
	UserInfo(ctx context.Context, accessToken string) (*domain.UserProfile, error)
}

// AuthorizeRequest holds the relying application's authorize parameters.
// @Description OAuth2 authorization request parameters
type AuthorizeRequest struct {
	ClientID            string `json:"client_id" example:"app1"`
	RedirectURI         string `json:"redirect_uri" example:"https://relying.example/cb"`
	State               string `json:"state" example:"xyz"`
	Scope               string `json:"scope,omitempty" example:"profile"`
	CodeChallenge       string `json:"code_challenge" example:"E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"`
	CodeChallengeMethod string `json:"code_challenge_method" example:"S256"`
}

// Query encodes the parameters as an /authorize query string
func (r AuthorizeRequest) Query() url.Values {
	q := url.Values{}
	q.Set("client_id", r.ClientID)
	q.Set("redirect_uri", r.RedirectURI)
	q.Set("state", r.State)
	if r.Scope != "" {
		q.Set("scope", r.Scope)
	}
	q.Set("code_challenge", r.CodeChallenge)
	if r.CodeChallengeMethod != "" {
		q.Set("code_challenge_method", r.CodeChallengeMethod)
	}
	return q
}

// AuthorizeRequestFromQuery reads authorize parameters from a query string
func AuthorizeRequestFromQuery(q url.Values) AuthorizeRequest {
	return AuthorizeRequest{
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		State:               q.Get("state"),
		Scope:               q.Get("scope"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
	}
}

// AuthorizeResponse is the provider selection page model.
// @Description Provider selection page
type AuthorizeResponse struct {
	RequestID   string           `json:"request_id"`
	Application string           `json:"application"`
	Providers   []ProviderOption `json:"providers"`
	ExpiresAt   time.Time        `json:"expires_at"`

	// Redirect is set when the login can proceed without a selection
	Redirect string `json:"redirect,omitempty"`

	// Error echoes a previous login failure (access_denied)
	Error string `json:"error,omitempty"`
}

// ProviderOption is one entry of the provider selection page
type ProviderOption struct {
	ID    string              `json:"id"`
	Kind  domain.ProviderKind `json:"kind"`
	Label string              `json:"label"`

	// URL starts the login: the federated hop, or the local login form target
	URL   string       `json:"url"`
	Users []UserOption `json:"users,omitempty"`
}

// UserOption is a selectable user of a profiles or user-list provider
type UserOption struct {
	ID    string `json:"id"`
	Login string `json:"login"`
	Email string `json:"email,omitempty"`
	URL   string `json:"url"`
}

// RedirectResponse is a redirect the browser must follow
type RedirectResponse struct {
	Location string `json:"location"`
}

// CallbackRequest holds the upstream provider's callback parameters
type CallbackRequest struct {
	State            string
	Code             string
	Error            string
	ErrorDescription string
	ErrorURI         string
}

// LocalLoginRequest holds a local login submission.
// The pending request is referenced by RequestID or re-created from Authorize.
type LocalLoginRequest struct {
	Kind      domain.ProviderKind
	RequestID string
	Authorize AuthorizeRequest

	// Credentials provider
	Email    string
	Password string

	// Profiles and user-list providers
	UserID string
}

// TokenRequest holds the token endpoint parameters.
// @Description Access token request
type TokenRequest struct {
	GrantType    string `json:"grant_type" example:"authorization_code"`
	Code         string `json:"code"`
	CodeVerifier string `json:"code_verifier"`
	RedirectURI  string `json:"redirect_uri"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// CatalogService synchronises a configuration snapshot into the registry
type CatalogService interface {
	// Sync hashes plain passwords and writes the catalog.
	// Applications absent from the catalog are left untouched.
	Sync(ctx context.Context, catalog *domain.Catalog) error
}
