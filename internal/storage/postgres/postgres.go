// Package postgres implements storage.Backend on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yndnr/metalgate/internal/core/domain"
	"github.com/yndnr/metalgate/internal/storage"
)

// uniqueViolation is the SQLSTATE for unique constraint violations.
const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS users (
	username      TEXT PRIMARY KEY,
	id            TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS api_keys (
	key          TEXT PRIMARY KEY,
	owner        TEXT NOT NULL,
	is_active    BOOLEAN NOT NULL DEFAULT TRUE,
	created_at   TIMESTAMPTZ NOT NULL,
	last_used_at TIMESTAMPTZ,
	usage_count  BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS api_keys_owner_idx ON api_keys (owner, created_at);

CREATE TABLE IF NOT EXISTS auth_tokens (
	token_hash TEXT PRIMARY KEY,
	username   TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ
);
`

// Option configures a Store.
type Option func(*Store)

// WithTimeout bounds every statement.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// Store persists users, keys and tokens in PostgreSQL.
type Store struct {
	pool    *pgxpool.Pool
	timeout time.Duration
	now     func() time.Time
}

// Open connects to dsn and applies the schema.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	s := &Store{pool: pool, timeout: 5 * time.Second, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply postgres schema: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

const keyColumns = `key, owner, is_active, created_at, last_used_at, usage_count`

func scanKey(row pgx.Row) (*domain.APIKey, error) {
	var (
		k        domain.APIKey
		lastUsed *time.Time
	)
	if err := row.Scan(&k.Key, &k.Owner, &k.IsActive, &k.CreatedAt, &lastUsed, &k.UsageCount); err != nil {
		return nil, err
	}
	k.CreatedAt = k.CreatedAt.UTC()
	if lastUsed != nil {
		k.LastUsedAt = lastUsed.UTC()
	}
	return &k, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

// List returns the owner's keys ordered by creation time.
func (s *Store) List(ctx context.Context, owner string) ([]*domain.APIKey, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+keyColumns+` FROM api_keys WHERE owner = $1 ORDER BY created_at, key`, owner)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	keys := make([]*domain.APIKey, 0)
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, wrap(err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(err)
	}
	return keys, nil
}

// Get returns a key regardless of owner.
func (s *Store) Get(ctx context.Context, key string) (*domain.APIKey, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	k, err := scanKey(s.pool.QueryRow(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE key = $1`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAPIKeyNotFound
		}
		return nil, wrap(err)
	}
	return k, nil
}

// Create stores a new key.
func (s *Store) Create(ctx context.Context, k *domain.APIKey) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
INSERT INTO api_keys (key, owner, is_active, created_at, last_used_at, usage_count)
VALUES ($1, $2, $3, $4, $5, $6)`,
		k.Key, k.Owner, k.IsActive, k.CreatedAt.UTC(), nullableTime(k.LastUsedAt), k.UsageCount)
	if isUniqueViolation(err) {
		return domain.ErrAPIKeyConflict
	}
	return wrap(err)
}

// Toggle flips IsActive.
func (s *Store) Toggle(ctx context.Context, owner, key string) (*domain.APIKey, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	k, err := scanKey(s.pool.QueryRow(ctx, `
UPDATE api_keys SET is_active = NOT is_active
WHERE key = $1 AND owner = $2
RETURNING `+keyColumns, key, owner))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAPIKeyNotFound
		}
		return nil, wrap(err)
	}
	return k, nil
}

// Delete removes the key.
func (s *Store) Delete(ctx context.Context, owner, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM api_keys WHERE key = $1 AND owner = $2`, key, owner)
	if err != nil {
		return wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAPIKeyNotFound
	}
	return nil
}

// ReplaceAll makes keys the complete set owned by owner.
func (s *Store) ReplaceAll(ctx context.Context, owner string, keys []*domain.APIKey) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return wrap(pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM api_keys WHERE owner = $1`, owner); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, k := range keys {
			batch.Queue(`
INSERT INTO api_keys (key, owner, is_active, created_at, last_used_at, usage_count)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (key) DO UPDATE SET owner = EXCLUDED.owner, is_active = EXCLUDED.is_active,
	created_at = EXCLUDED.created_at, last_used_at = EXCLUDED.last_used_at,
	usage_count = EXCLUDED.usage_count`,
				k.Key, owner, k.IsActive, k.CreatedAt.UTC(), nullableTime(k.LastUsedAt), k.UsageCount)
		}
		return tx.SendBatch(ctx, batch).Close()
	}))
}

// RecordUsage increments the usage counter.
func (s *Store) RecordUsage(ctx context.Context, key string, at time.Time) (*domain.APIKey, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	k, err := scanKey(s.pool.QueryRow(ctx, `
UPDATE api_keys SET usage_count = usage_count + 1, last_used_at = $2
WHERE key = $1
RETURNING `+keyColumns, key, at.UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAPIKeyNotFound
		}
		return nil, wrap(err)
	}
	return k, nil
}

// Stats summarizes the owner's keys.
func (s *Store) Stats(ctx context.Context, owner string) (domain.UsageStats, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var stats domain.UsageStats
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(usage_count), 0)::BIGINT FROM api_keys WHERE owner = $1`, owner,
	).Scan(&stats.TotalKeys, &stats.TotalUsage)
	if err != nil {
		return domain.UsageStats{}, wrap(err)
	}
	return stats, nil
}

// CreateUser stores a new user.
func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (username, id, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		u.Username, u.ID, u.PasswordHash, u.CreatedAt.UTC())
	if isUniqueViolation(err) {
		return domain.ErrUserExists
	}
	return wrap(err)
}

// GetUser returns a user by name.
func (s *Store) GetUser(ctx context.Context, username string) (*domain.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var u domain.User
	err := s.pool.QueryRow(ctx,
		`SELECT username, id, password_hash, created_at FROM users WHERE username = $1`, username,
	).Scan(&u.Username, &u.ID, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, wrap(err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

// SaveToken stores t.
func (s *Store) SaveToken(ctx context.Context, t *domain.AuthToken) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
INSERT INTO auth_tokens (token_hash, username, created_at, expires_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (token_hash) DO UPDATE SET username = EXCLUDED.username, expires_at = EXCLUDED.expires_at`,
		t.TokenHash, t.Username, t.CreatedAt.UTC(), nullableTime(t.ExpiresAt))
	return wrap(err)
}

// GetToken returns an unexpired token record.
func (s *Store) GetToken(ctx context.Context, hash string) (*domain.AuthToken, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		t       domain.AuthToken
		expires *time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT token_hash, username, created_at, expires_at FROM auth_tokens WHERE token_hash = $1`, hash,
	).Scan(&t.TokenHash, &t.Username, &t.CreatedAt, &expires)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionExpired
		}
		return nil, wrap(err)
	}
	if expires != nil {
		t.ExpiresAt = expires.UTC()
	}
	if t.IsExpired(s.now()) {
		return nil, domain.ErrSessionExpired
	}
	return &t, nil
}

// DeleteToken removes a token.
func (s *Store) DeleteToken(ctx context.Context, hash string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `DELETE FROM auth_tokens WHERE token_hash = $1`, hash)
	return wrap(err)
}

// PurgeExpired deletes expired tokens.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM auth_tokens WHERE expires_at IS NOT NULL AND expires_at <= $1`, s.now().UTC())
	if err != nil {
		return 0, wrap(err)
	}
	return tag.RowsAffected(), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func wrap(err error) error {
	if err == nil || domain.IsDomainError(err, "") {
		return err
	}
	return domain.ErrStorage.WithCause(err)
}

var _ storage.Backend = (*Store)(nil)
