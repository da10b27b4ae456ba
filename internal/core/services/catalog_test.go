package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jdrouet/tekitoi/internal/core/domain"
	"github.com/jdrouet/tekitoi/internal/core/ports/driven/mocks"
)

// MockCatalogWriter is a mock implementation of driven.CatalogWriter
type MockCatalogWriter struct {
	mock.Mock
}

func (m *MockCatalogWriter) ApplyCatalog(ctx context.Context, catalog *domain.Catalog) error {
	args := m.Called(ctx, catalog)
	return args.Error(0)
}

func validCatalog() *domain.Catalog {
	return &domain.Catalog{Applications: []domain.CatalogEntry{{
		Application: domain.Application{ID: "app-1", ClientID: "app1", RedirectURI: "https://relying.example/cb"},
		Providers: []domain.Provider{
			{ID: "p1", Kind: domain.ProviderKindCredentials},
			{ID: "p2", Kind: domain.ProviderKindGithub, Federated: &domain.FederatedConfig{ClientID: "gh"}},
		},
		Users: []domain.CatalogUser{{
			User:     domain.User{ID: "u1", ProviderKind: domain.ProviderKindCredentials, Login: "alice", Email: "alice@example.com"},
			Password: "secret123",
		}},
	}}}
}

func TestCatalogSync_HashesPasswords(t *testing.T) {
	writer := new(MockCatalogWriter)
	var applied *domain.Catalog
	writer.On("ApplyCatalog", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { applied = args.Get(1).(*domain.Catalog) }).
		Return(nil)

	svc := NewCatalogService(CatalogServiceConfig{Writer: writer, Hasher: mocks.NewMockPasswordHasher()})
	input := validCatalog()
	require.NoError(t, svc.Sync(context.Background(), input))

	writer.AssertExpectations(t)
	require.NotNil(t, applied)
	user := applied.Applications[0].Users[0]
	assert.Equal(t, "hashed:secret123", user.User.PasswordHash)
	assert.Empty(t, user.Password)
	assert.Equal(t, "app-1", user.User.ApplicationID)
	assert.Equal(t, "app-1", applied.Applications[0].Providers[1].ApplicationID)

	// input untouched
	assert.Equal(t, "secret123", input.Applications[0].Users[0].Password)
	assert.Empty(t, input.Applications[0].Users[0].User.PasswordHash)
}

func TestCatalogSync_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *domain.Catalog)
	}{
		{"missing client id", func(c *domain.Catalog) { c.Applications[0].Application.ClientID = "" }},
		{"missing redirect", func(c *domain.Catalog) { c.Applications[0].Application.RedirectURI = "" }},
		{"duplicate client", func(c *domain.Catalog) { c.Applications = append(c.Applications, c.Applications[0]) }},
		{"duplicate provider", func(c *domain.Catalog) {
			c.Applications[0].Providers = append(c.Applications[0].Providers, domain.Provider{ID: "p3", Kind: domain.ProviderKindCredentials})
		}},
		{"federated without client id", func(c *domain.Catalog) { c.Applications[0].Providers[1].Federated = nil }},
		{"user without provider", func(c *domain.Catalog) { c.Applications[0].Users[0].User.ProviderKind = domain.ProviderKindProfiles }},
		{"federated user", func(c *domain.Catalog) { c.Applications[0].Users[0].User.ProviderKind = domain.ProviderKindGithub }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writer := new(MockCatalogWriter)
			svc := NewCatalogService(CatalogServiceConfig{Writer: writer, Hasher: mocks.NewMockPasswordHasher()})
			c := validCatalog()
			tt.mutate(c)

			err := svc.Sync(context.Background(), c)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
			writer.AssertNotCalled(t, "ApplyCatalog", mock.Anything, mock.Anything)
		})
	}
}

func TestCatalogSync_Errors(t *testing.T) {
	t.Run("hash failure", func(t *testing.T) {
		hasher := mocks.NewMockPasswordHasher()
		hasher.HashErr = errors.New("boom")
		writer := new(MockCatalogWriter)
		svc := NewCatalogService(CatalogServiceConfig{Writer: writer, Hasher: hasher})

		assert.Error(t, svc.Sync(context.Background(), validCatalog()))
		writer.AssertNotCalled(t, "ApplyCatalog", mock.Anything, mock.Anything)
	})

	t.Run("writer failure", func(t *testing.T) {
		writer := new(MockCatalogWriter)
		writer.On("ApplyCatalog", mock.Anything, mock.Anything).Return(domain.ErrStorage)
		svc := NewCatalogService(CatalogServiceConfig{Writer: writer, Hasher: mocks.NewMockPasswordHasher()})

		assert.ErrorIs(t, svc.Sync(context.Background(), validCatalog()), domain.ErrStorage)
	})
}
