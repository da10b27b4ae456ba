package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jdrouet/tekitoi/internal/core/domain"
	"github.com/jdrouet/tekitoi/internal/core/ports/driven"
)

// Verify interface compliance
var (
	_ driven.ClientRegistry = (*Registry)(nil)
	_ driven.UserStore      = (*Registry)(nil)
	_ driven.CatalogWriter  = (*Registry)(nil)
)

// Registry serves applications, providers and users from memory.
// Content is replaced per application by ApplyCatalog.
type Registry struct {
	mu           sync.RWMutex
	applications map[string]*domain.Application // by id
	clientIDs    map[string]string              // client id -> application id
	providers    map[string][]*domain.Provider  // by application id
	users        map[string][]*domain.User      // by application id
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		applications: make(map[string]*domain.Application),
		clientIDs:    make(map[string]string),
		providers:    make(map[string][]*domain.Provider),
		users:        make(map[string][]*domain.User),
	}
}

func (r *Registry) ApplyCatalog(ctx context.Context, catalog *domain.Catalog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, entry := range catalog.Applications {
		app := entry.Application
		if existing, ok := r.applications[app.ID]; ok {
			delete(r.clientIDs, existing.ClientID)
			app.CreatedAt = existing.CreatedAt
		} else {
			app.CreatedAt = now
		}
		app.UpdatedAt = now
		r.applications[app.ID] = &app
		r.clientIDs[app.ClientID] = app.ID

		providers := make([]*domain.Provider, 0, len(entry.Providers))
		for i := range entry.Providers {
			p := entry.Providers[i]
			p.ApplicationID = app.ID
			p.CreatedAt, p.UpdatedAt = now, now
			providers = append(providers, &p)
		}
		r.providers[app.ID] = providers

		users := make([]*domain.User, 0, len(entry.Users))
		for i := range entry.Users {
			u := entry.Users[i].User
			u.ApplicationID = app.ID
			u.CreatedAt, u.UpdatedAt = now, now
			users = append(users, &u)
		}
		r.users[app.ID] = users
	}
	return nil
}

func (r *Registry) FindApplication(ctx context.Context, clientID string) (*domain.Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.clientIDs[clientID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.applications[id], nil
}

func (r *Registry) GetApplication(ctx context.Context, id string) (*domain.Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	app, ok := r.applications[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return app, nil
}

func (r *Registry) ListProviders(ctx context.Context, applicationID string) ([]*domain.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*domain.Provider(nil), r.providers[applicationID]...), nil
}

func (r *Registry) FindProvider(ctx context.Context, applicationID, providerKindOrID string) (*domain.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers[applicationID] {
		if p.ID == providerKindOrID || string(p.Kind) == providerKindOrID {
			return p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *Registry) FindByID(ctx context.Context, applicationID string, kind domain.ProviderKind, id string) (*domain.User, error) {
	return r.find(applicationID, kind, func(u *domain.User) bool { return u.ID == id })
}

func (r *Registry) FindByEmail(ctx context.Context, applicationID string, kind domain.ProviderKind, email string) (*domain.User, error) {
	return r.find(applicationID, kind, func(u *domain.User) bool { return u.Email == email })
}

func (r *Registry) List(ctx context.Context, applicationID string, kind domain.ProviderKind) ([]*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.User
	for _, u := range r.users[applicationID] {
		if u.ProviderKind == kind {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *Registry) find(applicationID string, kind domain.ProviderKind, match func(*domain.User) bool) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users[applicationID] {
		if u.ProviderKind == kind && match(u) {
			return u, nil
		}
	}
	return nil, domain.ErrNotFound
}

// Ping always succeeds
func (r *Registry) Ping(ctx context.Context) error {
	return nil
}
