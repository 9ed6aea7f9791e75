// Package redisstore keeps issued session tokens in Redis so that several
// server replicas share logins. Expiry uses native key TTLs.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/yndnr/metalgate/internal/core/domain"
	"github.com/yndnr/metalgate/internal/storage"
)

// Config configures the Redis connection.
type Config struct {
	Addrs        []string
	Username     string
	Password     string
	DB           int
	MasterName   string
	Prefix       string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

// TokenStore implements storage.TokenStore on Redis.
type TokenStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// New connects to Redis and verifies connectivity.
func New(ctx context.Context, cfg Config) (*TokenStore, error) {
	addrs := make([]string, 0, len(cfg.Addrs))
	for _, a := range cfg.Addrs {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("redis addr is required")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "metalgate:token:"
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        addrs,
		MasterName:   strings.TrimSpace(cfg.MasterName),
		Username:     strings.TrimSpace(cfg.Username),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   2,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewWithClient(client, prefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client redis.UniversalClient, prefix string) *TokenStore {
	return &TokenStore{client: client, prefix: prefix, now: time.Now}
}

func (s *TokenStore) key(hash string) string {
	return s.prefix + hash
}

// SaveToken stores t with a TTL derived from ExpiresAt.
func (s *TokenStore) SaveToken(ctx context.Context, t *domain.AuthToken) error {
	data, err := json.Marshal(t)
	if err != nil {
		return domain.ErrStorage.WithCause(err)
	}
	ttl := t.TTL(s.now())
	if !t.ExpiresAt.IsZero() && ttl == 0 {
		// Already expired.
		return nil
	}
	if err := s.client.Set(ctx, s.key(t.TokenHash), data, ttl).Err(); err != nil {
		return domain.ErrStorage.WithCause(err)
	}
	return nil
}

// GetToken returns an unexpired token record.
func (s *TokenStore) GetToken(ctx context.Context, hash string) (*domain.AuthToken, error) {
	data, err := s.client.Get(ctx, s.key(hash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrSessionExpired
		}
		return nil, domain.ErrStorage.WithCause(err)
	}
	var t domain.AuthToken
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, domain.ErrStorage.WithCause(err)
	}
	if t.IsExpired(s.now()) {
		return nil, domain.ErrSessionExpired
	}
	return &t, nil
}

// DeleteToken removes a token.
func (s *TokenStore) DeleteToken(ctx context.Context, hash string) error {
	if err := s.client.Del(ctx, s.key(hash)).Err(); err != nil {
		return domain.ErrStorage.WithCause(err)
	}
	return nil
}

// Close closes the client.
func (s *TokenStore) Close() error {
	return s.client.Close()
}

var _ storage.TokenStore = (*TokenStore)(nil)
