package driven

import (
	"context"

	"github.com/jdrouet/tekitoi/internal/core/domain"
)

// ClientRegistry is the read path over applications and their providers.
// Content is written by catalog synchronisation only.
type ClientRegistry interface {
	// FindApplication looks up an application by its public client id.
	// Returns domain.ErrNotFound when no application matches.
	FindApplication(ctx context.Context, clientID string) (*domain.Application, error)

	// GetApplication looks up an application by its internal id.
	// Returns domain.ErrNotFound when no application matches.
	GetApplication(ctx context.Context, id string) (*domain.Application, error)

	// ListProviders returns the providers of an application in configuration order.
	ListProviders(ctx context.Context, applicationID string) ([]*domain.Provider, error)

	// FindProvider resolves a provider of the application by id or by kind.
	// Returns domain.ErrNotFound when the provider does not belong to the application.
	FindProvider(ctx context.Context, applicationID, providerKindOrID string) (*domain.Provider, error)
}

// CatalogWriter replaces the registry content with a catalog snapshot.
// Applications absent from the snapshot are left untouched; providers and
// users absent from a present application are removed.
type CatalogWriter interface {
	ApplyCatalog(ctx context.Context, catalog *domain.Catalog) error
}
