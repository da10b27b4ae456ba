package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/jdrouet/tekitoi/internal/core/domain"
)

func testCatalog() *domain.Catalog {
	return &domain.Catalog{Applications: []domain.CatalogEntry{{
		Application: domain.Application{ID: "app-1", ClientID: "app1", RedirectURI: "https://relying.example/cb"},
		Providers: []domain.Provider{
			{ID: "p-cred", Kind: domain.ProviderKindCredentials},
			{ID: "p-prof", Kind: domain.ProviderKindProfiles},
		},
		Users: []domain.CatalogUser{
			{User: domain.User{ID: "u-alice", ProviderKind: domain.ProviderKindCredentials, Login: "alice", Email: "alice@example.com", PasswordHash: "h"}},
			{User: domain.User{ID: "u-bob", ProviderKind: domain.ProviderKindProfiles, Login: "bob", Email: "bob@example.com"}},
		},
	}}}
}

func TestRegistry_Lookups(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	if err := r.ApplyCatalog(ctx, testCatalog()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	app, err := r.FindApplication(ctx, "app1")
	if err != nil || app.ID != "app-1" {
		t.Fatalf("FindApplication = %+v, %v", app, err)
	}
	if _, err := r.FindApplication(ctx, "app2"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := r.GetApplication(ctx, "app-1"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	providers, _ := r.ListProviders(ctx, "app-1")
	if len(providers) != 2 || providers[0].ID != "p-cred" {
		t.Errorf("expected providers in configuration order, got %+v", providers)
	}
	if p, err := r.FindProvider(ctx, "app-1", "profiles"); err != nil || p.ID != "p-prof" {
		t.Errorf("FindProvider by kind = %+v, %v", p, err)
	}
	if p, err := r.FindProvider(ctx, "app-1", "p-cred"); err != nil || p.Kind != domain.ProviderKindCredentials {
		t.Errorf("FindProvider by id = %+v, %v", p, err)
	}
	if _, err := r.FindProvider(ctx, "app-2", "p-cred"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected provider lookup to be scoped to the application, got %v", err)
	}

	if u, err := r.FindByEmail(ctx, "app-1", domain.ProviderKindCredentials, "alice@example.com"); err != nil || u.ID != "u-alice" {
		t.Errorf("FindByEmail = %+v, %v", u, err)
	}
	if _, err := r.FindByEmail(ctx, "app-1", domain.ProviderKindProfiles, "alice@example.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected users to be scoped by provider kind, got %v", err)
	}
	if u, err := r.FindByID(ctx, "app-1", domain.ProviderKindProfiles, "u-bob"); err != nil || u.Login != "bob" {
		t.Errorf("FindByID = %+v, %v", u, err)
	}
	if _, err := r.FindByID(ctx, "app-2", domain.ProviderKindProfiles, "u-bob"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected users to be scoped by application, got %v", err)
	}
	users, _ := r.List(ctx, "app-1", domain.ProviderKindProfiles)
	if len(users) != 1 {
		t.Errorf("expected 1 profiles user, got %d", len(users))
	}
}

func TestRegistry_ApplyCatalogReplaces(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	_ = r.ApplyCatalog(ctx, testCatalog())

	next := testCatalog()
	next.Applications[0].Application.ClientID = "renamed"
	next.Applications[0].Providers = next.Applications[0].Providers[:1]
	next.Applications[0].Users = next.Applications[0].Users[:1]
	if err := r.ApplyCatalog(ctx, next); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := r.FindApplication(ctx, "app1"); !errors.Is(err, domain.ErrNotFound) {
		t.Error("expected old client id to be gone")
	}
	if _, err := r.FindApplication(ctx, "renamed"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := r.FindProvider(ctx, "app-1", "profiles"); !errors.Is(err, domain.ErrNotFound) {
		t.Error("expected removed provider to be gone")
	}
	if _, err := r.FindByID(ctx, "app-1", domain.ProviderKindProfiles, "u-bob"); !errors.Is(err, domain.ErrNotFound) {
		t.Error("expected removed user to be gone")
	}
}
