package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/jdrouet/tekitoi/internal/core/domain"
)

// Flavor describes the well-known endpoints and profile shape of a federated kind.
// Provider configuration overrides any of the endpoints.
type Flavor struct {
	Kind          domain.ProviderKind
	Endpoint      oauth2.Endpoint
	UserURL       string
	DefaultScopes []string
	Decode        func(body []byte) (*domain.UserProfile, error)
}

// GitHub returns the flavor for github.com.
func GitHub() Flavor {
	return Flavor{
		Kind:          domain.ProviderKindGithub,
		Endpoint:      endpoints.GitHub,
		UserURL:       "https://api.github.com/user",
		DefaultScopes: []string{"read:user", "user:email"},
		Decode:        decodeGitHubUser,
	}
}

// GitLab returns the flavor for gitlab.com.
func GitLab() Flavor {
	return Flavor{
		Kind:          domain.ProviderKindGitlab,
		Endpoint:      endpoints.GitLab,
		UserURL:       "https://gitlab.com/api/v4/user",
		DefaultScopes: []string{"read_user"},
		Decode:        decodeGitLabUser,
	}
}

// Google returns the flavor for Google accounts.
func Google() Flavor {
	return Flavor{
		Kind:          domain.ProviderKindGoogle,
		Endpoint:      endpoints.Google,
		UserURL:       "https://www.googleapis.com/oauth2/v1/userinfo",
		DefaultScopes: []string{"openid", "email", "profile"},
		Decode:        decodeGoogleUser,
	}
}

// GenericOAuth returns the flavor for arbitrary OAuth2 servers.
// Every endpoint comes from the provider configuration.
func GenericOAuth() Flavor {
	return Flavor{
		Kind:   domain.ProviderKindOAuth,
		Decode: decodeGenericUser,
	}
}

func decodeGitHubUser(body []byte) (*domain.UserProfile, error) {
	var user struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("decode github user: %w", err)
	}
	return &domain.UserProfile{
		ID:        strconv.FormatInt(user.ID, 10),
		Login:     user.Login,
		Email:     user.Email,
		Name:      user.Name,
		AvatarURL: user.AvatarURL,
	}, nil
}

func decodeGitLabUser(body []byte) (*domain.UserProfile, error) {
	var user struct {
		ID        int64  `json:"id"`
		Username  string `json:"username"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("decode gitlab user: %w", err)
	}
	return &domain.UserProfile{
		ID:        strconv.FormatInt(user.ID, 10),
		Login:     user.Username,
		Email:     user.Email,
		Name:      user.Name,
		AvatarURL: user.AvatarURL,
	}, nil
}

func decodeGoogleUser(body []byte) (*domain.UserProfile, error) {
	var user struct {
		ID      string `json:"id"`
		Sub     string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("decode google user: %w", err)
	}
	id := user.ID
	if id == "" {
		id = user.Sub
	}
	return &domain.UserProfile{
		ID:        id,
		Login:     user.Email,
		Email:     user.Email,
		Name:      user.Name,
		AvatarURL: user.Picture,
	}, nil
}

// decodeGenericUser maps the usual claim names of userinfo style endpoints.
func decodeGenericUser(body []byte) (*domain.UserProfile, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	profile := &domain.UserProfile{
		ID:        firstString(raw, "id", "sub", "user_id"),
		Login:     firstString(raw, "login", "username", "preferred_username", "nickname", "email"),
		Email:     firstString(raw, "email"),
		Name:      firstString(raw, "name"),
		AvatarURL: firstString(raw, "avatar_url", "picture"),
	}
	if profile.ID == "" {
		return nil, errors.New("user response has no identifier")
	}
	return profile, nil
}

func firstString(raw map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := raw[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}
