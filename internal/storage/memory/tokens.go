package memory

import (
	"context"
	"time"

	"github.com/yndnr/metalgate/internal/core/domain"
	"github.com/yndnr/metalgate/internal/storage"
	"github.com/yndnr/metalgate/pkg/cmap"
)

// TokenStore keeps issued session tokens in memory. Expired entries are
// dropped on read and by Sweep.
type TokenStore struct {
	tokens *cmap.Map[string, domain.AuthToken]
	now    func() time.Time
}

// NewTokenStore creates an empty token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{tokens: cmap.New[string, domain.AuthToken](), now: time.Now}
}

// SaveToken stores t.
func (s *TokenStore) SaveToken(_ context.Context, t *domain.AuthToken) error {
	s.tokens.Set(t.TokenHash, *t)
	return nil
}

// GetToken returns an unexpired token record.
func (s *TokenStore) GetToken(_ context.Context, hash string) (*domain.AuthToken, error) {
	t, ok := s.tokens.Get(hash)
	if !ok {
		return nil, domain.ErrSessionExpired
	}
	if t.IsExpired(s.now()) {
		s.tokens.Delete(hash)
		return nil, domain.ErrSessionExpired
	}
	return &t, nil
}

// DeleteToken removes a token.
func (s *TokenStore) DeleteToken(_ context.Context, hash string) error {
	s.tokens.Delete(hash)
	return nil
}

// Sweep removes expired tokens and returns how many were dropped.
func (s *TokenStore) Sweep() int {
	now := s.now()
	var expired []string
	s.tokens.Range(func(hash string, t domain.AuthToken) bool {
		if t.IsExpired(now) {
			expired = append(expired, hash)
		}
		return true
	})
	for _, hash := range expired {
		s.tokens.Delete(hash)
	}
	return len(expired)
}

var _ storage.TokenStore = (*TokenStore)(nil)
