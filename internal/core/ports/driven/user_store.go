package driven

import (
	"context"

	"github.com/jdrouet/tekitoi/internal/core/domain"
)

// UserStore is the read path over local users
type UserStore interface {
	// FindByID retrieves a user of an application's provider kind by ID
	FindByID(ctx context.Context, applicationID string, kind domain.ProviderKind, id string) (*domain.User, error)

	// FindByEmail retrieves a user of an application's provider kind by email
	FindByEmail(ctx context.Context, applicationID string, kind domain.ProviderKind, email string) (*domain.User, error)

	// List returns the users of an application's provider kind
	List(ctx context.Context, applicationID string, kind domain.ProviderKind) ([]*domain.User, error)
}
