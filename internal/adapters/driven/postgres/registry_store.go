package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/jdrouet/tekitoi/internal/core/domain"
	"github.com/jdrouet/tekitoi/internal/core/ports/driven"
)

// Verify interface compliance
var (
	_ driven.ClientRegistry = (*RegistryStore)(nil)
	_ driven.UserStore      = (*RegistryStore)(nil)
	_ driven.CatalogWriter  = (*RegistryStore)(nil)
)

// RegistryStore implements the registry ports using PostgreSQL.
// Federated client secrets are sealed with the encryptor when one is configured.
type RegistryStore struct {
	db        *DB
	encryptor *SecretEncryptor
}

// NewRegistryStore creates a new RegistryStore. encryptor may be nil.
func NewRegistryStore(db *DB, encryptor *SecretEncryptor) *RegistryStore {
	return &RegistryStore{db: db, encryptor: encryptor}
}

// federatedSecret is the sealed part of a federated provider configuration
type federatedSecret struct {
	ClientSecret string `json:"client_secret"`
}

// ApplyCatalog upserts every application of the catalog with its providers
// and users in a single transaction.
func (s *RegistryStore) ApplyCatalog(ctx context.Context, catalog *domain.Catalog) error {
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		now := time.Now()
		for _, entry := range catalog.Applications {
			if err := s.applyEntry(ctx, tx, &entry, now); err != nil {
				return fmt.Errorf("application %q: %w", entry.Application.ClientID, err)
			}
		}
		return nil
	})
	if err != nil {
		return domain.StorageFailure("apply catalog", err)
	}
	return nil
}

func (s *RegistryStore) applyEntry(ctx context.Context, tx *sql.Tx, entry *domain.CatalogEntry, now time.Time) error {
	app := entry.Application
	_, err := tx.ExecContext(ctx, `
		INSERT INTO applications (id, client_id, label, client_secrets, redirect_uri, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (id) DO UPDATE SET
			client_id = EXCLUDED.client_id,
			label = EXCLUDED.label,
			client_secrets = EXCLUDED.client_secrets,
			redirect_uri = EXCLUDED.redirect_uri,
			updated_at = EXCLUDED.updated_at
	`, app.ID, app.ClientID, app.Label, pq.Array(app.ClientSecrets), app.RedirectURI, now)
	if err != nil {
		return fmt.Errorf("upsert application: %w", err)
	}

	providerIDs := make([]string, 0, len(entry.Providers))
	for i, p := range entry.Providers {
		providerIDs = append(providerIDs, p.ID)
		if err := s.upsertProvider(ctx, tx, app.ID, i, &p, now); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM providers WHERE application_id = $1 AND NOT (id = ANY($2))`,
		app.ID, pq.Array(providerIDs),
	); err != nil {
		return fmt.Errorf("prune providers: %w", err)
	}

	userIDs := make([]string, 0, len(entry.Users))
	for _, cu := range entry.Users {
		u := cu.User
		userIDs = append(userIDs, u.ID)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, application_id, provider_kind, login, email, password_hash, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
			ON CONFLICT (id) DO UPDATE SET
				application_id = EXCLUDED.application_id,
				provider_kind = EXCLUDED.provider_kind,
				login = EXCLUDED.login,
				email = EXCLUDED.email,
				password_hash = EXCLUDED.password_hash,
				updated_at = EXCLUDED.updated_at
		`, u.ID, app.ID, string(u.ProviderKind), u.Login, u.Email, u.PasswordHash, now)
		if err != nil {
			return fmt.Errorf("upsert user %q: %w", u.Login, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM users WHERE application_id = $1 AND NOT (id = ANY($2))`,
		app.ID, pq.Array(userIDs),
	); err != nil {
		return fmt.Errorf("prune users: %w", err)
	}
	return nil
}

func (s *RegistryStore) upsertProvider(ctx context.Context, tx *sql.Tx, applicationID string, position int, p *domain.Provider, now time.Time) error {
	var (
		clientID, authURL, tokenURL, userURL string
		scopes                               []string
		secretBlob                           []byte
	)
	if f := p.Federated; f != nil {
		clientID, authURL, tokenURL, userURL, scopes = f.ClientID, f.AuthorizationURL, f.TokenURL, f.UserInfoURL, f.Scopes
		if f.ClientSecret != "" {
			var err error
			secretBlob, err = seal(s.encryptor, federatedSecret{ClientSecret: f.ClientSecret})
			if err != nil {
				return fmt.Errorf("seal provider secret: %w", err)
			}
		}
	}

	// the (application, kind) pair may move to a new id
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM providers WHERE application_id = $1 AND kind = $2 AND id <> $3`,
		applicationID, string(p.Kind), p.ID,
	); err != nil {
		return fmt.Errorf("replace provider %s: %w", p.Kind, err)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO providers (
			id, application_id, kind, label, position, client_id, secret_blob,
			authorization_url, token_url, api_user_url, scopes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		ON CONFLICT (id) DO UPDATE SET
			application_id = EXCLUDED.application_id,
			kind = EXCLUDED.kind,
			label = EXCLUDED.label,
			position = EXCLUDED.position,
			client_id = EXCLUDED.client_id,
			secret_blob = EXCLUDED.secret_blob,
			authorization_url = EXCLUDED.authorization_url,
			token_url = EXCLUDED.token_url,
			api_user_url = EXCLUDED.api_user_url,
			scopes = EXCLUDED.scopes,
			updated_at = EXCLUDED.updated_at
	`,
		p.ID, applicationID, string(p.Kind), p.Label, position,
		nullString(clientID), secretBlob,
		nullString(authURL), nullString(tokenURL), nullString(userURL),
		pq.Array(scopes), now,
	)
	if err != nil {
		return fmt.Errorf("upsert provider %s: %w", p.Kind, err)
	}
	return nil
}

const applicationColumns = `id, client_id, label, client_secrets, redirect_uri, created_at, updated_at`

func (s *RegistryStore) getApplication(ctx context.Context, where string, arg string) (*domain.Application, error) {
	var app domain.Application
	err := s.db.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE `+where+` = $1`, arg,
	).Scan(
		&app.ID,
		&app.ClientID,
		&app.Label,
		pq.Array(&app.ClientSecrets),
		&app.RedirectURI,
		&app.CreatedAt,
		&app.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.StorageFailure("get application", err)
	}
	return &app, nil
}

func (s *RegistryStore) FindApplication(ctx context.Context, clientID string) (*domain.Application, error) {
	return s.getApplication(ctx, "client_id", clientID)
}

func (s *RegistryStore) GetApplication(ctx context.Context, id string) (*domain.Application, error) {
	return s.getApplication(ctx, "id", id)
}

const providerColumns = `id, application_id, kind, label, client_id, secret_blob,
	authorization_url, token_url, api_user_url, scopes, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *RegistryStore) scanProvider(row rowScanner) (*domain.Provider, error) {
	var (
		p                                    domain.Provider
		kind                                 string
		clientID, authURL, tokenURL, userURL sql.NullString
		secretBlob                           []byte
		scopes                               []string
	)
	if err := row.Scan(
		&p.ID, &p.ApplicationID, &kind, &p.Label,
		&clientID, &secretBlob, &authURL, &tokenURL, &userURL,
		pq.Array(&scopes), &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Kind = domain.ProviderKind(kind)

	if p.Kind.IsFederated() {
		var secret federatedSecret
		if err := unseal(s.encryptor, secretBlob, &secret); err != nil {
			return nil, fmt.Errorf("unseal provider secret: %w", err)
		}
		p.Federated = &domain.FederatedConfig{
			ClientID:         clientID.String,
			ClientSecret:     secret.ClientSecret,
			AuthorizationURL: authURL.String,
			TokenURL:         tokenURL.String,
			UserInfoURL:      userURL.String,
			Scopes:           scopes,
		}
	}
	return &p, nil
}

func (s *RegistryStore) ListProviders(ctx context.Context, applicationID string) ([]*domain.Provider, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+providerColumns+` FROM providers WHERE application_id = $1 ORDER BY position, kind`,
		applicationID,
	)
	if err != nil {
		return nil, domain.StorageFailure("list providers", err)
	}
	defer rows.Close()

	var providers []*domain.Provider
	for rows.Next() {
		p, err := s.scanProvider(rows)
		if err != nil {
			return nil, domain.StorageFailure("scan provider", err)
		}
		providers = append(providers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageFailure("list providers", err)
	}
	return providers, nil
}

func (s *RegistryStore) FindProvider(ctx context.Context, applicationID, providerKindOrID string) (*domain.Provider, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+providerColumns+` FROM providers
		WHERE application_id = $1 AND (id = $2 OR kind = $2)
		ORDER BY (id = $2) DESC
		LIMIT 1`,
		applicationID, providerKindOrID,
	)
	p, err := s.scanProvider(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.StorageFailure("find provider", err)
	}
	return p, nil
}

const userColumns = `id, application_id, provider_kind, login, email, password_hash, created_at, updated_at`

func scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	var kind string
	if err := row.Scan(&u.ID, &u.ApplicationID, &kind, &u.Login, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.ProviderKind = domain.ProviderKind(kind)
	return &u, nil
}

func (s *RegistryStore) queryUser(ctx context.Context, query string, args ...any) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.StorageFailure("get user", err)
	}
	return u, nil
}

func (s *RegistryStore) FindByID(ctx context.Context, applicationID string, kind domain.ProviderKind, id string) (*domain.User, error) {
	return s.queryUser(ctx, `application_id = $1 AND provider_kind = $2 AND id = $3`, applicationID, string(kind), id)
}

func (s *RegistryStore) FindByEmail(ctx context.Context, applicationID string, kind domain.ProviderKind, email string) (*domain.User, error) {
	return s.queryUser(ctx, `application_id = $1 AND provider_kind = $2 AND email = $3 LIMIT 1`, applicationID, string(kind), email)
}

func (s *RegistryStore) List(ctx context.Context, applicationID string, kind domain.ProviderKind) ([]*domain.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE application_id = $1 AND provider_kind = $2 ORDER BY login`,
		applicationID, string(kind),
	)
	if err != nil {
		return nil, domain.StorageFailure("list users", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, domain.StorageFailure("scan user", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageFailure("list users", err)
	}
	return users, nil
}
