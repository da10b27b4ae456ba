package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jdrouet/tekitoi/internal/core/domain"
	"github.com/jdrouet/tekitoi/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SessionStore = (*SessionStore)(nil)

// SessionStore implements driven.SessionStore using PostgreSQL.
// Upstream tokens of federated sessions are sealed like provider secrets.
type SessionStore struct {
	db        *DB
	encryptor *SecretEncryptor
	now       func() time.Time
}

// NewSessionStore creates a new SessionStore. encryptor may be nil.
func NewSessionStore(db *DB, encryptor *SecretEncryptor) *SessionStore {
	return &SessionStore{db: db, encryptor: encryptor, now: time.Now}
}

// Save creates or replaces a session
func (s *SessionStore) Save(ctx context.Context, session *domain.Session) error {
	var upstream []byte
	if session.Upstream != nil {
		var err error
		upstream, err = seal(s.encryptor, session.Upstream)
		if err != nil {
			return domain.StorageFailure("seal upstream token", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token, application_id, provider_id, provider_kind, user_id, scope, upstream_blob, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (token) DO UPDATE SET
			application_id = EXCLUDED.application_id,
			provider_id = EXCLUDED.provider_id,
			provider_kind = EXCLUDED.provider_kind,
			user_id = EXCLUDED.user_id,
			scope = EXCLUDED.scope,
			upstream_blob = EXCLUDED.upstream_blob,
			expires_at = EXCLUDED.expires_at
	`,
		session.Token,
		session.ApplicationID,
		session.ProviderID,
		string(session.ProviderKind),
		session.UserID,
		session.Scope,
		upstream,
		session.CreatedAt,
		nullTime(session.ExpiresAt),
	)
	if err != nil {
		return domain.StorageFailure("save session", err)
	}
	return nil
}

// Get retrieves a live session by its access token
func (s *SessionStore) Get(ctx context.Context, token string) (*domain.Session, error) {
	var (
		session   domain.Session
		kind      string
		upstream  []byte
		expiresAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT token, application_id, provider_id, provider_kind, user_id, scope, upstream_blob, created_at, expires_at
		FROM sessions
		WHERE token = $1
	`, token).Scan(
		&session.Token,
		&session.ApplicationID,
		&session.ProviderID,
		&kind,
		&session.UserID,
		&session.Scope,
		&upstream,
		&session.CreatedAt,
		&expiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.StorageFailure("get session", err)
	}
	session.ProviderKind = domain.ProviderKind(kind)
	session.ExpiresAt = timePtr(expiresAt)

	if session.IsExpired(s.now()) {
		return nil, domain.ErrNotFound
	}

	if len(upstream) > 0 {
		var token domain.UpstreamToken
		if err := unseal(s.encryptor, upstream, &token); err != nil {
			return nil, domain.StorageFailure("unseal upstream token", err)
		}
		session.Upstream = &token
	}
	return &session, nil
}

// Cleanup removes expired sessions
func (s *SessionStore) Cleanup(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at IS NOT NULL AND expires_at <= $1`, s.now())
	if err != nil {
		return 0, domain.StorageFailure("cleanup sessions", err)
	}
	return result.RowsAffected()
}
