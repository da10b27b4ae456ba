// Package config loads the application catalog file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/jdrouet/tekitoi/internal/core/domain"
)

// namespace seeds the deterministic identifiers of catalog entities
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/jdrouet/tekitoi"))

// File is the YAML catalog as written by operators.
type File struct {
	Applications []ApplicationConfig `yaml:"applications"`
}

// ApplicationConfig describes a relying application.
type ApplicationConfig struct {
	ID            string           `yaml:"id"`
	ClientID      string           `yaml:"client_id"`
	Label         string           `yaml:"label"`
	ClientSecrets []string         `yaml:"client_secrets"`
	RedirectURI   string           `yaml:"redirect_uri"`
	Providers     []ProviderConfig `yaml:"providers"`
}

// ProviderConfig describes one identity source of an application.
// Upstream fields only apply to federated types, Users only to local ones.
type ProviderConfig struct {
	ID    string `yaml:"id"`
	Type  string `yaml:"type"`
	Label string `yaml:"label"`

	ClientID         string   `yaml:"client_id"`
	ClientSecret     string   `yaml:"client_secret"`
	AuthorizationURL string   `yaml:"authorization_url"`
	TokenURL         string   `yaml:"token_url"`
	APIUserURL       string   `yaml:"api_user_url"`
	Scopes           []string `yaml:"scopes"`

	Users []UserConfig `yaml:"users"`
}

// UserConfig describes a local user. Password is plain text and hashed on sync.
type UserConfig struct {
	ID       string `yaml:"id"`
	Login    string `yaml:"login"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// envRef matches ${NAME}. A bare $ is literal text.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// LoadCatalog reads the catalog file at path.
// ${VAR} references are expanded from the environment before parsing.
func LoadCatalog(path string) (*domain.Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	expanded, err := expandEnv(b)
	if err != nil {
		return nil, err
	}
	return ParseCatalog(bytes.NewReader(expanded))
}

// expandEnv substitutes ${NAME} references. Undefined variables are an error
// so that a secret never silently becomes empty.
func expandEnv(raw []byte) ([]byte, error) {
	var missing []string
	out := envRef.ReplaceAllFunc(raw, func(ref []byte) []byte {
		name := string(envRef.FindSubmatch(ref)[1])
		value, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
			return ref
		}
		return []byte(value)
	})
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: undefined environment variables: %s", domain.ErrInvalidInput, strings.Join(missing, ", "))
	}
	return out, nil
}

// ParseCatalog decodes a YAML catalog. Unknown keys are rejected.
func ParseCatalog(r io.Reader) (*domain.Catalog, error) {
	var file File
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		if strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("invalid catalog: %w (check for typos)", err)
		}
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}

	catalog := file.Catalog()
	for _, entry := range catalog.Applications {
		for i := range entry.Providers {
			if err := entry.Providers[i].Validate(); err != nil {
				return nil, fmt.Errorf("application %q: %w", entry.Application.ClientID, err)
			}
		}
	}
	return catalog, nil
}

// Validate checks the file is consistent before any identifier is derived.
func (f *File) Validate() error {
	var errs []error
	clientIDs := make(map[string]bool, len(f.Applications))

	for i, app := range f.Applications {
		where := fmt.Sprintf("applications[%d]", i)
		if app.ClientID == "" {
			errs = append(errs, fmt.Errorf("%s: client_id is required", where))
		} else if clientIDs[app.ClientID] {
			errs = append(errs, fmt.Errorf("%s: duplicate client_id %q", where, app.ClientID))
		}
		clientIDs[app.ClientID] = true
		if app.RedirectURI == "" {
			errs = append(errs, fmt.Errorf("%s: redirect_uri is required", where))
		}

		kinds := make(map[domain.ProviderKind]bool, len(app.Providers))
		for j, p := range app.Providers {
			pwhere := fmt.Sprintf("%s.providers[%d]", where, j)
			kind, err := domain.ParseProviderKind(p.Type)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", pwhere, err))
				continue
			}
			if kinds[kind] {
				errs = append(errs, fmt.Errorf("%s: %s declared twice", pwhere, kind))
			}
			kinds[kind] = true

			if kind.IsFederated() && len(p.Users) > 0 {
				errs = append(errs, fmt.Errorf("%s: %s providers have no local users", pwhere, kind))
			}
			if kind.IsLocal() && (p.ClientID != "" || p.ClientSecret != "") {
				errs = append(errs, fmt.Errorf("%s: %s providers take no client credentials", pwhere, kind))
			}
			logins := make(map[string]bool, len(p.Users))
			emails := make(map[string]bool, len(p.Users))
			for k, u := range p.Users {
				uwhere := fmt.Sprintf("%s.users[%d]", pwhere, k)
				if u.Login == "" {
					errs = append(errs, fmt.Errorf("%s: login is required", uwhere))
				} else if logins[u.Login] {
					errs = append(errs, fmt.Errorf("%s: duplicate login %q", uwhere, u.Login))
				}
				logins[u.Login] = true

				// credentials users sign in by email
				if kind != domain.ProviderKindCredentials {
					continue
				}
				email := strings.ToLower(u.Email)
				if email == "" {
					errs = append(errs, fmt.Errorf("%s: email is required for %s users", uwhere, kind))
				} else if emails[email] {
					errs = append(errs, fmt.Errorf("%s: duplicate email %q", uwhere, u.Email))
				}
				emails[email] = true
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, errors.Join(errs...))
	}
	return nil
}

// Catalog converts the file into the domain snapshot.
// Missing identifiers are derived from the client id, provider type and
// login so that they survive a resynchronisation.
func (f *File) Catalog() *domain.Catalog {
	catalog := &domain.Catalog{Applications: make([]domain.CatalogEntry, 0, len(f.Applications))}

	for _, app := range f.Applications {
		appID := orDerived(app.ID, "application", app.ClientID)
		entry := domain.CatalogEntry{
			Application: domain.Application{
				ID:            appID,
				ClientID:      app.ClientID,
				Label:         app.Label,
				ClientSecrets: app.ClientSecrets,
				RedirectURI:   app.RedirectURI,
			},
		}

		for _, p := range app.Providers {
			kind := domain.ProviderKind(p.Type)
			provider := domain.Provider{
				ID:            orDerived(p.ID, "provider", app.ClientID, p.Type),
				ApplicationID: appID,
				Kind:          kind,
				Label:         p.Label,
			}
			if kind.IsFederated() {
				provider.Federated = &domain.FederatedConfig{
					ClientID:         p.ClientID,
					ClientSecret:     p.ClientSecret,
					AuthorizationURL: p.AuthorizationURL,
					TokenURL:         p.TokenURL,
					UserInfoURL:      p.APIUserURL,
					Scopes:           p.Scopes,
				}
			}
			entry.Providers = append(entry.Providers, provider)

			for _, u := range p.Users {
				entry.Users = append(entry.Users, domain.CatalogUser{
					User: domain.User{
						ID:            orDerived(u.ID, "user", app.ClientID, p.Type, u.Login),
						ApplicationID: appID,
						ProviderKind:  kind,
						Login:         u.Login,
						Email:         u.Email,
					},
					Password: u.Password,
				})
			}
		}
		catalog.Applications = append(catalog.Applications, entry)
	}
	return catalog
}

func orDerived(id string, parts ...string) string {
	if id != "" {
		return id
	}
	return uuid.NewSHA1(namespace, []byte(strings.Join(parts, "/"))).String()
}
