package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/cucumber/godog"
	"golang.org/x/crypto/bcrypt"

	"github.com/jdrouet/tekitoi/internal/adapters/driven/auth"
	"github.com/jdrouet/tekitoi/internal/adapters/driven/memory"
	"github.com/jdrouet/tekitoi/internal/adapters/driven/providers"
	api "github.com/jdrouet/tekitoi/internal/adapters/driving/http"
	"github.com/jdrouet/tekitoi/internal/config"
	"github.com/jdrouet/tekitoi/internal/core/domain"
	"github.com/jdrouet/tekitoi/internal/core/pkce"
	"github.com/jdrouet/tekitoi/internal/core/ports/driving"
	"github.com/jdrouet/tekitoi/internal/core/services"
)

const relyingRedirect = "https://relying.example/cb"

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		Name:                "authorization",
		ScenarioInitializer: initializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			Strict:   true,
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("acceptance scenarios failed")
	}
}

// flow is the state of one scenario: a broker, a fake upstream provider and
// the browser and relying application driving them.
type flow struct {
	broker   *httptest.Server
	upstream *httptest.Server
	handler  http.Handler
	client   *http.Client

	verifier  string
	state     string
	page      driving.AuthorizeResponse
	pageCode  int
	pageError string

	last          *http.Response
	upstreamState string
	upstreamPKCE  string

	tokenStatus int
	tokenBody   map[string]any
	accessToken string
}

func initializeScenario(sc *godog.ScenarioContext) {
	f := &flow{}

	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		f.upstream = httptest.NewServer(f.upstreamMux())
		f.broker = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			f.handler.ServeHTTP(w, r)
		}))
		f.client = &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		}
		return ctx, nil
	})
	sc.After(func(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
		f.broker.Close()
		f.upstream.Close()
		return ctx, nil
	})

	sc.Step(`^the catalog:$`, f.theCatalog)
	sc.Step(`^the application "([^"]*)" starts an authorization with state "([^"]*)"$`, f.startsAuthorization)
	sc.Step(`^the login page offers "([^"]*)"$`, f.loginPageOffers)
	sc.Step(`^the authorization is rejected with "([^"]*)"$`, f.authorizationRejected)
	sc.Step(`^the user signs in with "([^"]*)" and "([^"]*)"$`, f.signsIn)
	sc.Step(`^the user picks the profile "([^"]*)"$`, f.picksProfile)
	sc.Step(`^the user chooses the "([^"]*)" provider$`, f.choosesProvider)
	sc.Step(`^the browser is sent to the upstream provider$`, f.sentUpstream)
	sc.Step(`^the upstream provider calls back with code "([^"]*)"$`, f.upstreamCallsBackWithCode)
	sc.Step(`^the upstream provider calls back with error "([^"]*)"$`, f.upstreamCallsBackWithError)
	sc.Step(`^the browser returns to the application with a code$`, f.returnsWithCode)
	sc.Step(`^the browser returns to the application with error "([^"]*)"$`, f.returnsWithError)
	sc.Step(`^the browser is sent back to the login page with "([^"]*)"$`, f.sentBackToLogin)
	sc.Step(`^the application exchanges the code$`, f.exchangesCode)
	sc.Step(`^the application exchanges the code with verifier "([^"]*)"$`, f.exchangesCodeWithVerifier)
	sc.Step(`^an access token is issued$`, f.accessTokenIssued)
	sc.Step(`^the token endpoint rejects the request with "([^"]*)"$`, f.tokenRejected)
	sc.Step(`^the user info login is "([^"]*)"$`, f.userInfoLogin)
}

// upstreamMux fakes a generic OAuth2 server that checks the broker's PKCE verifier
func (f *flow) upstreamMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		challenge, _ := pkce.Challenge(domain.CodeChallengeS256, r.Form.Get("code_verifier"))
		if r.Form.Get("code") != "up-code" || challenge != f.upstreamPKCE {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"upstream-access","token_type":"bearer"}`))
	})
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer upstream-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":42,"login":"octocat","email":"octocat@example.com"}`))
	})
	return mux
}

func (f *flow) theCatalog(doc *godog.DocString) error {
	raw := strings.ReplaceAll(doc.Content, "{upstream}", f.upstream.URL)
	catalog, err := config.ParseCatalog(strings.NewReader(raw))
	if err != nil {
		return err
	}

	registry := memory.NewRegistry()
	hasher := auth.NewHasherWithCost(bcrypt.MinCost)
	sync := services.NewCatalogService(services.CatalogServiceConfig{Writer: registry, Hasher: hasher})
	if err := sync.Sync(context.Background(), catalog); err != nil {
		return err
	}

	authorization := services.NewAuthorizationService(services.AuthorizationServiceConfig{
		Registry:     registry,
		Users:        registry,
		Correlations: memory.NewCorrelationStore(),
		Sessions:     memory.NewSessionStore(),
		Hasher:       hasher,
		Providers: providers.NewFactory(providers.Config{
			RedirectURL: f.broker.URL + "/api/redirect",
		}),
	})
	f.handler = api.NewServer(api.DefaultConfig(), authorization, nil).Handler()
	return nil
}

func (f *flow) get(path string) (*http.Response, error) {
	resp, err := f.client.Get(f.broker.URL + path)
	if err != nil {
		return nil, err
	}
	return resp, resp.Body.Close()
}

func (f *flow) startsAuthorization(clientID, state string) error {
	f.verifier = pkce.GenerateVerifier()
	f.state = state
	challenge, err := pkce.Challenge(domain.CodeChallengeS256, f.verifier)
	if err != nil {
		return err
	}

	req := driving.AuthorizeRequest{
		ClientID:            clientID,
		RedirectURI:         relyingRedirect,
		State:               state,
		CodeChallenge:       challenge,
		CodeChallengeMethod: string(domain.CodeChallengeS256),
	}
	resp, err := f.client.Get(f.broker.URL + "/authorize?" + req.Query().Encode())
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	f.pageCode = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		var oauthErr driving.OAuthError
		if err := json.NewDecoder(resp.Body).Decode(&oauthErr); err != nil {
			return err
		}
		f.pageError = oauthErr.Code
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(&f.page)
}

func (f *flow) option(kind string) (*driving.ProviderOption, error) {
	for i := range f.page.Providers {
		if string(f.page.Providers[i].Kind) == kind {
			return &f.page.Providers[i], nil
		}
	}
	return nil, fmt.Errorf("login page has no %q provider", kind)
}

func (f *flow) loginPageOffers(kind string) error {
	_, err := f.option(kind)
	return err
}

func (f *flow) authorizationRejected(code string) error {
	if f.pageError != code {
		return fmt.Errorf("expected error %q, got status %d and %q", code, f.pageCode, f.pageError)
	}
	return nil
}

func (f *flow) signsIn(email, password string) error {
	option, err := f.option(string(domain.ProviderKindCredentials))
	if err != nil {
		return err
	}
	form := url.Values{}
	form.Set("email", email)
	form.Set("password", password)
	resp, err := f.client.PostForm(f.broker.URL+option.URL, form)
	if err != nil {
		return err
	}
	f.last = resp
	return resp.Body.Close()
}

func (f *flow) picksProfile(login string) error {
	option, err := f.option(string(domain.ProviderKindProfiles))
	if err != nil {
		return err
	}
	for _, u := range option.Users {
		if u.Login == login {
			f.last, err = f.get(u.URL)
			return err
		}
	}
	return fmt.Errorf("profile %q is not offered", login)
}

func (f *flow) choosesProvider(kind string) error {
	option, err := f.option(kind)
	if err != nil {
		return err
	}
	f.last, err = f.get(option.URL)
	return err
}

func (f *flow) location() (*url.URL, error) {
	if f.last == nil {
		return nil, errors.New("no response recorded")
	}
	return url.Parse(f.last.Header.Get("Location"))
}

func (f *flow) sentUpstream() error {
	if f.last.StatusCode != http.StatusTemporaryRedirect {
		return fmt.Errorf("expected 307, got %d", f.last.StatusCode)
	}
	loc, err := f.location()
	if err != nil {
		return err
	}
	if !strings.HasPrefix(loc.String(), f.upstream.URL+"/authorize") {
		return fmt.Errorf("unexpected upstream location %q", loc)
	}
	q := loc.Query()
	if q.Get("code_challenge_method") != "S256" {
		return fmt.Errorf("upstream hop does not use S256: %q", loc)
	}
	if q.Get("redirect_uri") != f.broker.URL+"/api/redirect" {
		return fmt.Errorf("unexpected upstream redirect_uri %q", q.Get("redirect_uri"))
	}
	f.upstreamState = q.Get("state")
	f.upstreamPKCE = q.Get("code_challenge")
	return nil
}

func (f *flow) upstreamCallsBackWithCode(code string) error {
	if f.upstreamState == "" {
		if err := f.sentUpstream(); err != nil {
			return err
		}
	}
	q := url.Values{}
	q.Set("state", f.upstreamState)
	q.Set("code", code)
	var err error
	f.last, err = f.get("/api/redirect?" + q.Encode())
	return err
}

func (f *flow) upstreamCallsBackWithError(code string) error {
	if err := f.sentUpstream(); err != nil {
		return err
	}
	q := url.Values{}
	q.Set("state", f.upstreamState)
	q.Set("error", code)
	var err error
	f.last, err = f.get("/api/redirect?" + q.Encode())
	return err
}

func (f *flow) applicationRedirect() (url.Values, error) {
	if f.last.StatusCode != http.StatusTemporaryRedirect {
		return nil, fmt.Errorf("expected 307, got %d", f.last.StatusCode)
	}
	loc, err := f.location()
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(loc.String(), relyingRedirect+"?") {
		return nil, fmt.Errorf("unexpected location %q", loc)
	}
	q := loc.Query()
	if q.Get("state") != f.state {
		return nil, fmt.Errorf("expected state %q, got %q", f.state, q.Get("state"))
	}
	return q, nil
}

func (f *flow) returnsWithCode() error {
	q, err := f.applicationRedirect()
	if err != nil {
		return err
	}
	if q.Get("code") == "" {
		return errors.New("redirect carries no code")
	}
	return nil
}

func (f *flow) returnsWithError(code string) error {
	q, err := f.applicationRedirect()
	if err != nil {
		return err
	}
	if q.Get("error") != code {
		return fmt.Errorf("expected error %q, got %q", code, q.Get("error"))
	}
	if q.Get("code") != "" {
		return errors.New("error redirect carries a code")
	}
	return nil
}

func (f *flow) sentBackToLogin(code string) error {
	if f.last.StatusCode != http.StatusSeeOther {
		return fmt.Errorf("expected 303, got %d", f.last.StatusCode)
	}
	loc, err := f.location()
	if err != nil {
		return err
	}
	if loc.Path != "/authorize" || loc.Query().Get("error") != code {
		return fmt.Errorf("unexpected retry location %q", loc)
	}
	return nil
}

func (f *flow) exchangesCode() error {
	return f.exchangesCodeWithVerifier(f.verifier)
}

func (f *flow) exchangesCodeWithVerifier(verifier string) error {
	loc, err := f.location()
	if err != nil {
		return err
	}
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", loc.Query().Get("code"))
	form.Set("code_verifier", verifier)
	form.Set("redirect_uri", relyingRedirect)
	form.Set("client_id", "demo")
	form.Set("client_secret", "s3cret")

	req, err := http.NewRequest(http.MethodPost, f.broker.URL+"/api/access-token", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	f.tokenStatus = resp.StatusCode
	f.tokenBody = map[string]any{}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, &f.tokenBody); err != nil {
		return fmt.Errorf("decode token response %q: %w", body, err)
	}
	if token, ok := f.tokenBody["access_token"].(string); ok {
		f.accessToken = token
	}
	return nil
}

func (f *flow) accessTokenIssued() error {
	if f.tokenStatus != http.StatusOK {
		return fmt.Errorf("expected 200, got %d: %v", f.tokenStatus, f.tokenBody)
	}
	if f.accessToken == "" {
		return errors.New("no access token in response")
	}
	if f.tokenBody["token_type"] != "bearer" {
		return fmt.Errorf("unexpected token type %v", f.tokenBody["token_type"])
	}
	return nil
}

func (f *flow) tokenRejected(code string) error {
	if f.tokenStatus != http.StatusBadRequest {
		return fmt.Errorf("expected 400, got %d", f.tokenStatus)
	}
	if f.tokenBody["error"] != code {
		return fmt.Errorf("expected error %q, got %v", code, f.tokenBody["error"])
	}
	return nil
}

func (f *flow) userInfoLogin(login string) error {
	req, err := http.NewRequest(http.MethodGet, f.broker.URL+"/api/user-info", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+f.accessToken)
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("expected 200, got %d", resp.StatusCode)
	}
	var profile domain.UserProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return err
	}
	if profile.Login != login {
		return fmt.Errorf("expected login %q, got %q", login, profile.Login)
	}
	return nil
}
