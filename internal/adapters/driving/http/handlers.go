package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jdrouet/tekitoi/internal/core/domain"
	"github.com/jdrouet/tekitoi/internal/core/ports/driving"
)

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status  string   `json:"status" example:"ok"`
	Failing []string `json:"failing,omitempty"`
}

// VersionResponse represents the API version response
// @Description API version response
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
}

// statusTimeout bounds the backend pings of /api/status
const statusTimeout = 5 * time.Second

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Description  Returns the health status of the process
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleVersion godoc
// @Summary      Get version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: s.version})
}

// handleStatus godoc
// @Summary      Backend status
// @Description  Pings every configured backend
// @Tags         Health
// @Success      204
// @Failure      503  {object}  StatusResponse
// @Router       /api/status [get]
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), statusTimeout)
	defer cancel()

	var failing []string
	for name, p := range s.pingers {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			log.Printf("status: %s unavailable: %v", name, err)
			failing = append(failing, name)
		}
	}
	if len(failing) > 0 {
		sort.Strings(failing)
		writeJSON(w, http.StatusServiceUnavailable, StatusResponse{Status: "unavailable", Failing: failing})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Authorization flow

// handleAuthorize godoc
// @Summary      Start an authorization
// @Description  Validates the relying application's request and returns the provider selection page
// @Tags         Authorization
// @Produce      json
// @Param        client_id              query  string  true   "Client ID"
// @Param        redirect_uri           query  string  true   "Registered redirect URI"
// @Param        state                  query  string  true   "Opaque state echoed back"
// @Param        code_challenge         query  string  true   "PKCE challenge"
// @Param        code_challenge_method  query  string  false  "plain or S256"
// @Success      200  {object}  driving.AuthorizeResponse
// @Success      307  "Single federated provider"
// @Failure      400  {object}  driving.OAuthError
// @Router       /authorize [get]
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := s.authorization.Authorize(r.Context(), driving.AuthorizeRequestFromQuery(q))
	if err != nil {
		writeOAuthError(w, r, err)
		return
	}
	if resp.Redirect != "" {
		http.Redirect(w, r, resp.Redirect, http.StatusTemporaryRedirect)
		return
	}
	if q.Get("error") == driving.ErrCodeAccessDenied {
		resp.Error = driving.ErrCodeAccessDenied
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleLocalLogin godoc
// @Summary      Local login
// @Description  Authenticates against a local provider (credentials, profiles, user-list)
// @Tags         Authorization
// @Accept       x-www-form-urlencoded
// @Param        kind        path      string  true   "Provider kind"
// @Param        request_id  query     string  false  "Pending request"
// @Param        user        query     string  false  "Selected user (profiles, user-list)"
// @Param        email       formData  string  false  "Email (credentials)"
// @Param        password    formData  string  false  "Password (credentials)"
// @Success      307  "Redirect to the relying application with a code"
// @Success      303  "Back to /authorize after a rejected login"
// @Router       /authorize/{kind}/login [get]
// @Router       /authorize/{kind}/login [post]
func (s *Server) handleLocalLogin(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseProviderKind(r.PathValue("kind"))
	if err != nil || !kind.IsLocal() {
		writeOAuthError(w, r, domain.ErrProviderNotFound)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, r, domain.ErrInvalidInput)
		return
	}

	req := driving.LocalLoginRequest{
		Kind:      kind,
		RequestID: r.Form.Get("request_id"),
		Authorize: driving.AuthorizeRequestFromQuery(r.Form),
		UserID:    r.Form.Get("user"),
	}
	// credentials never come from the URL
	if r.Method == http.MethodPost {
		req.Email = r.PostForm.Get("email")
		req.Password = r.PostForm.Get("password")
	}

	resp, err := s.authorization.LocalLogin(r.Context(), req)
	if err != nil {
		writeOAuthError(w, r, err)
		return
	}
	http.Redirect(w, r, resp.Location, http.StatusTemporaryRedirect)
}

// handleProviderRedirect godoc
// @Summary      Federated hop
// @Description  Redirects the browser to the upstream provider
// @Tags         Authorization
// @Param        requestId   path  string  true  "Pending request"
// @Param        providerId  path  string  true  "Provider id or kind"
// @Success      307
// @Failure      400  {object}  driving.OAuthError
// @Router       /api/authorize/{requestId}/{providerId} [get]
func (s *Server) handleProviderRedirect(w http.ResponseWriter, r *http.Request) {
	resp, err := s.authorization.ProviderRedirect(r.Context(), r.PathValue("requestId"), r.PathValue("providerId"))
	if err != nil {
		writeOAuthError(w, r, err)
		return
	}
	http.Redirect(w, r, resp.Location, http.StatusTemporaryRedirect)
}

// handleProviderCallback godoc
// @Summary      Upstream callback
// @Description  Receives the upstream provider's redirect and forwards a code to the relying application
// @Tags         Authorization
// @Param        state  query  string  true   "CSRF token"
// @Param        code   query  string  false  "Upstream code"
// @Param        error  query  string  false  "Upstream error"
// @Success      307
// @Failure      400  {object}  driving.OAuthError
// @Router       /api/redirect [get]
func (s *Server) handleProviderCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := s.authorization.ProviderCallback(r.Context(), driving.CallbackRequest{
		State:            q.Get("state"),
		Code:             q.Get("code"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
		ErrorURI:         q.Get("error_uri"),
	})
	if err != nil {
		writeOAuthError(w, r, err)
		return
	}
	http.Redirect(w, r, resp.Location, http.StatusTemporaryRedirect)
}

// Relying application endpoints

// handleAccessToken godoc
// @Summary      Exchange a code
// @Description  Exchanges an authorization code and its PKCE verifier for an access token
// @Tags         Token
// @Accept       x-www-form-urlencoded
// @Accept       json
// @Produce      json
// @Produce      x-www-form-urlencoded
// @Param        request  body      driving.TokenRequest  true  "Token request"
// @Success      200      {object}  domain.TokenResponse
// @Failure      400      {object}  driving.OAuthError
// @Failure      401      {object}  driving.OAuthError
// @Router       /api/access-token [post]
func (s *Server) handleAccessToken(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")

	req, err := parseTokenRequest(r)
	if err != nil {
		writeOAuthError(w, r, err)
		return
	}

	resp, err := s.authorization.TokenExchange(r.Context(), req)
	if err != nil {
		if _, _, basic := r.BasicAuth(); basic && errors.Is(err, domain.ErrInvalidClientSecret) {
			w.Header().Set("WWW-Authenticate", `Basic realm="tekitoi"`)
		}
		writeOAuthError(w, r, err)
		return
	}

	if acceptsForm(r) {
		writeForm(w, http.StatusOK, tokenValues(resp))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleUserInfo godoc
// @Summary      User info
// @Description  Returns the profile behind a bearer access token
// @Tags         Token
// @Produce      json
// @Success      200  {object}  domain.UserProfile
// @Failure      401  {object}  driving.OAuthError
// @Security     BearerAuth
// @Router       /api/user-info [get]
func (s *Server) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	profile, err := s.authorization.UserInfo(r.Context(), extractBearerToken(r))
	if err != nil {
		writeOAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// parseTokenRequest reads the token parameters from a form or JSON body.
// Client credentials may also come from HTTP Basic auth.
func parseTokenRequest(r *http.Request) (driving.TokenRequest, error) {
	var req driving.TokenRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, domain.ErrInvalidInput
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return req, domain.ErrInvalidInput
		}
		req = driving.TokenRequest{
			GrantType:    r.PostForm.Get("grant_type"),
			Code:         r.PostForm.Get("code"),
			CodeVerifier: r.PostForm.Get("code_verifier"),
			RedirectURI:  r.PostForm.Get("redirect_uri"),
			ClientID:     r.PostForm.Get("client_id"),
			ClientSecret: r.PostForm.Get("client_secret"),
		}
	}

	if user, pass, ok := r.BasicAuth(); ok {
		// RFC 6749 section 2.3.1: credentials are form-encoded before base64
		if u, err := url.QueryUnescape(user); err == nil {
			user = u
		}
		if p, err := url.QueryUnescape(pass); err == nil {
			pass = p
		}
		if req.ClientID != "" && req.ClientID != user {
			return req, domain.ErrInvalidInput
		}
		if req.ClientSecret != "" {
			return req, domain.ErrInvalidInput
		}
		req.ClientID, req.ClientSecret = user, pass
	}
	return req, nil
}

func acceptsForm(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mediaType, _, _ := mime.ParseMediaType(strings.TrimSpace(part))
		if mediaType == "application/x-www-form-urlencoded" {
			return true
		}
	}
	return false
}

func tokenValues(resp *domain.TokenResponse) url.Values {
	v := url.Values{}
	v.Set("access_token", resp.AccessToken)
	v.Set("token_type", resp.TokenType)
	if resp.ExpiresIn > 0 {
		v.Set("expires_in", strconv.FormatInt(resp.ExpiresIn, 10))
	}
	if resp.Scope != "" {
		v.Set("scope", resp.Scope)
	}
	return v
}

// writeOAuthError delivers err to the browser or the relying application.
// Rejected local logins go back to the authorize page (303), errors with a
// known redirect target are sent there (307), anything else is JSON.
func writeOAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var loginErr *driving.LoginError
	if errors.As(err, &loginErr) {
		http.Redirect(w, r, loginErr.RetryURL(), http.StatusSeeOther)
		return
	}

	oe := driving.NewOAuthError(err)
	if oe.Status >= http.StatusInternalServerError {
		log.Printf("%s %s failed: %v", r.Method, r.URL.Path, err)
	}
	if target := oe.RedirectURL(); target != "" {
		http.Redirect(w, r, target, http.StatusTemporaryRedirect)
		return
	}
	if oe.Code == driving.ErrCodeInvalidToken {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}
	writeJSON(w, oe.Status, oe)
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeForm(w http.ResponseWriter, status int, values url.Values) {
	w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(values.Encode()))
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
