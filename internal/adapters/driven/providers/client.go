package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/jdrouet/tekitoi/internal/core/domain"
	"github.com/jdrouet/tekitoi/internal/core/ports/driven"
)

// Ensure profileClient implements the interface.
var _ driven.ProviderClient = (*profileClient)(nil)

// maxProfileSize bounds the upstream user response.
const maxProfileSize = 1 << 20

// profileClient fetches the upstream user behind an access token.
type profileClient struct {
	kind       domain.ProviderKind
	url        string
	decode     func([]byte) (*domain.UserProfile, error)
	httpClient *http.Client
}

// FetchUser calls the upstream user endpoint with the token as bearer.
func (c *profileClient) FetchUser(ctx context.Context, accessToken string) (*domain.UserProfile, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &domain.UpstreamError{Provider: c.kind, Err: fmt.Errorf("do request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileSize))
	if err != nil {
		return nil, &domain.UpstreamError{Provider: c.kind, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.UpstreamError{
			Provider:    c.kind,
			Code:        "user_fetch_failed",
			Description: resp.Status,
			Err:         fmt.Errorf("get user failed: %s", string(body)),
		}
	}

	profile, err := c.decode(body)
	if err != nil {
		return nil, &domain.UpstreamError{Provider: c.kind, Err: err}
	}
	profile.Provider = c.kind
	return profile, nil
}
