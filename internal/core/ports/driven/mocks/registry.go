package mocks

import (
	"context"
	"sync"

	"github.com/jdrouet/tekitoi/internal/core/domain"
	"github.com/jdrouet/tekitoi/internal/core/ports/driven"
)

var (
	_ driven.ClientRegistry = (*MockRegistry)(nil)
	_ driven.UserStore      = (*MockRegistry)(nil)
)

// MockRegistry serves applications, providers and users from maps
type MockRegistry struct {
	mu           sync.RWMutex
	applications map[string]*domain.Application
	providers    map[string][]*domain.Provider
	users        map[string]*domain.User

	Err error
}

func NewMockRegistry() *MockRegistry {
	return &MockRegistry{
		applications: make(map[string]*domain.Application),
		providers:    make(map[string][]*domain.Provider),
		users:        make(map[string]*domain.User),
	}
}

// AddApplication registers an application
func (m *MockRegistry) AddApplication(app *domain.Application) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applications[app.ID] = app
}

// AddProvider registers a provider under its application
func (m *MockRegistry) AddProvider(p *domain.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[p.ApplicationID] = append(m.providers[p.ApplicationID], p)
}

// AddUser registers a local user
func (m *MockRegistry) AddUser(u *domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *MockRegistry) FindApplication(ctx context.Context, clientID string) (*domain.Application, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, app := range m.applications {
		if app.ClientID == clientID {
			return app, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockRegistry) GetApplication(ctx context.Context, id string) (*domain.Application, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	app, ok := m.applications[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return app, nil
}

func (m *MockRegistry) ListProviders(ctx context.Context, applicationID string) ([]*domain.Provider, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*domain.Provider(nil), m.providers[applicationID]...), nil
}

func (m *MockRegistry) FindProvider(ctx context.Context, applicationID, providerKindOrID string) (*domain.Provider, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.providers[applicationID] {
		if p.ID == providerKindOrID || string(p.Kind) == providerKindOrID {
			return p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockRegistry) FindByID(ctx context.Context, applicationID string, kind domain.ProviderKind, id string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok || u.ApplicationID != applicationID || u.ProviderKind != kind {
		return nil, domain.ErrNotFound
	}
	return u, nil
}

func (m *MockRegistry) FindByEmail(ctx context.Context, applicationID string, kind domain.ProviderKind, email string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.ApplicationID == applicationID && u.ProviderKind == kind && u.Email == email {
			return u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockRegistry) List(ctx context.Context, applicationID string, kind domain.ProviderKind) ([]*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.User
	for _, u := range m.users {
		if u.ApplicationID == applicationID && u.ProviderKind == kind {
			out = append(out, u)
		}
	}
	return out, nil
}
