package service

import (
	"context"
	"time"

	"github.com/yndnr/metalgate/internal/core/domain"
)

// UserRepository stores registered accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, u *domain.User) error
	GetUser(ctx context.Context, username string) (*domain.User, error)
}

// TokenRepository stores issued session tokens by hash.
type TokenRepository interface {
	SaveToken(ctx context.Context, t *domain.AuthToken) error
	GetToken(ctx context.Context, hash string) (*domain.AuthToken, error)
	DeleteToken(ctx context.Context, hash string) error
}

// KeyRepository stores API keys and their usage counters.
type KeyRepository interface {
	List(ctx context.Context, owner string) ([]*domain.APIKey, error)
	Get(ctx context.Context, key string) (*domain.APIKey, error)
	Create(ctx context.Context, k *domain.APIKey) error
	Toggle(ctx context.Context, owner, key string) (*domain.APIKey, error)
	Delete(ctx context.Context, owner, key string) error
	RecordUsage(ctx context.Context, key string, at time.Time) (*domain.APIKey, error)
	Stats(ctx context.Context, owner string) (domain.UsageStats, error)
}
