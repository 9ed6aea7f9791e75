package storage

import (
	"context"
	"sort"
	"time"

	"github.com/yndnr/metalgate/internal/core/domain"
)

// KeyStore persists API keys and their usage counters.
//
// Keys are globally unique; owner-scoped operations treat a key owned by
// someone else as missing.
type KeyStore interface {
	// List returns the owner's keys ordered by creation time.
	List(ctx context.Context, owner string) ([]*domain.APIKey, error)

	// Get returns a key regardless of owner. Returns ErrAPIKeyNotFound.
	Get(ctx context.Context, key string) (*domain.APIKey, error)

	// Create stores a new key. Returns ErrAPIKeyConflict on duplicates.
	Create(ctx context.Context, k *domain.APIKey) error

	// Toggle flips IsActive and returns the updated key.
	Toggle(ctx context.Context, owner, key string) (*domain.APIKey, error)

	// Delete removes the key permanently.
	Delete(ctx context.Context, owner, key string) error

	// ReplaceAll makes keys the complete set owned by owner.
	ReplaceAll(ctx context.Context, owner string, keys []*domain.APIKey) error

	// RecordUsage increments the usage counter and stamps LastUsedAt.
	RecordUsage(ctx context.Context, key string, at time.Time) (*domain.APIKey, error)

	// Stats summarizes the owner's keys.
	Stats(ctx context.Context, owner string) (domain.UsageStats, error)
}

// UserStore persists registered accounts.
type UserStore interface {
	// CreateUser stores a new user. Returns ErrUserExists on duplicates.
	CreateUser(ctx context.Context, u *domain.User) error

	// GetUser returns a user by name. Returns ErrUserNotFound.
	GetUser(ctx context.Context, username string) (*domain.User, error)
}

// TokenStore persists issued session tokens by hash.
type TokenStore interface {
	// SaveToken stores t until its ExpiresAt.
	SaveToken(ctx context.Context, t *domain.AuthToken) error

	// GetToken returns the token record. Missing or expired tokens return
	// ErrSessionExpired.
	GetToken(ctx context.Context, hash string) (*domain.AuthToken, error)

	// DeleteToken removes a token. Deleting a missing token is not an error.
	DeleteToken(ctx context.Context, hash string) error
}

// Backend bundles the stores a server needs.
type Backend interface {
	KeyStore
	UserStore
	TokenStore
	Close() error
}

// SortKeys orders keys by creation time, then by key.
func SortKeys(keys []*domain.APIKey) {
	sort.Slice(keys, func(i, j int) bool {
		if !keys[i].CreatedAt.Equal(keys[j].CreatedAt) {
			return keys[i].CreatedAt.Before(keys[j].CreatedAt)
		}
		return keys[i].Key < keys[j].Key
	})
}
