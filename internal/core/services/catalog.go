package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jdrouet/tekitoi/internal/core/domain"
	"github.com/jdrouet/tekitoi/internal/core/ports/driven"
	"github.com/jdrouet/tekitoi/internal/core/ports/driving"
)

// Ensure catalogService implements CatalogService
var _ driving.CatalogService = (*catalogService)(nil)

// CatalogServiceConfig holds configuration for the catalog service.
type CatalogServiceConfig struct {
	Writer driven.CatalogWriter
	Hasher driven.PasswordHasher
	Logger *slog.Logger
}

type catalogService struct {
	writer driven.CatalogWriter
	hasher driven.PasswordHasher
	logger *slog.Logger
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(cfg CatalogServiceConfig) driving.CatalogService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &catalogService{
		writer: cfg.Writer,
		hasher: cfg.Hasher,
		logger: logger,
	}
}

// Sync validates the catalog, hashes plain passwords and hands it to the writer.
// The input catalog is not modified.
func (s *catalogService) Sync(ctx context.Context, catalog *domain.Catalog) error {
	out := &domain.Catalog{Applications: make([]domain.CatalogEntry, 0, len(catalog.Applications))}
	seen := make(map[string]bool, len(catalog.Applications))

	for _, entry := range catalog.Applications {
		app := entry.Application
		if app.ID == "" || app.ClientID == "" {
			return fmt.Errorf("%w: application requires an id and a client id", domain.ErrInvalidInput)
		}
		if app.RedirectURI == "" {
			return fmt.Errorf("%w: application %q requires a redirect uri", domain.ErrInvalidInput, app.ClientID)
		}
		if seen[app.ClientID] {
			return fmt.Errorf("%w: duplicate client id %q", domain.ErrInvalidInput, app.ClientID)
		}
		seen[app.ClientID] = true

		kinds := make(map[domain.ProviderKind]bool, len(entry.Providers))
		providers := make([]domain.Provider, 0, len(entry.Providers))
		for _, p := range entry.Providers {
			if err := p.Validate(); err != nil {
				return fmt.Errorf("application %q: %w", app.ClientID, err)
			}
			if kinds[p.Kind] {
				return fmt.Errorf("%w: application %q declares %s twice", domain.ErrInvalidInput, app.ClientID, p.Kind)
			}
			kinds[p.Kind] = true
			p.ApplicationID = app.ID
			providers = append(providers, p)
		}

		users := make([]domain.CatalogUser, 0, len(entry.Users))
		for _, cu := range entry.Users {
			user := cu.User
			if !user.ProviderKind.IsLocal() || !kinds[user.ProviderKind] {
				return fmt.Errorf("%w: application %q: user %q belongs to no local provider", domain.ErrInvalidInput, app.ClientID, user.Login)
			}
			user.ApplicationID = app.ID
			if cu.Password != "" {
				hash, err := s.hasher.HashPassword(cu.Password)
				if err != nil {
					return fmt.Errorf("hash password of %q: %w", user.Login, err)
				}
				user.PasswordHash = hash
			}
			if user.ProviderKind == domain.ProviderKindCredentials && !user.HasPassword() {
				s.logger.Warn("credentials user has no password and cannot log in",
					"client_id", app.ClientID,
					"login", user.Login,
				)
			}
			users = append(users, domain.CatalogUser{User: user})
		}

		out.Applications = append(out.Applications, domain.CatalogEntry{
			Application: app,
			Providers:   providers,
			Users:       users,
		})
	}

	if err := s.writer.ApplyCatalog(ctx, out); err != nil {
		return fmt.Errorf("apply catalog: %w", err)
	}
	s.logger.Info("catalog synchronised", "applications", len(out.Applications))
	return nil
}
