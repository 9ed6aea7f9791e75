package memory

import (
	"context"
	"sync"
	"time"

	"github.com/yndnr/metalgate/internal/core/domain"
	"github.com/yndnr/metalgate/internal/storage"
	"github.com/yndnr/metalgate/pkg/cmap"
)

// KeyStore keeps API keys in memory.
type KeyStore struct {
	keys   *cmap.Map[string, *domain.APIKey]
	owners *OwnerIndex

	// mu serializes operations that touch both maps.
	mu sync.Mutex
}

// NewKeyStore creates an empty key store.
func NewKeyStore() *KeyStore {
	return &KeyStore{
		keys:   cmap.New[string, *domain.APIKey](),
		owners: NewOwnerIndex(),
	}
}

// List returns the owner's keys ordered by creation time.
func (s *KeyStore) List(_ context.Context, owner string) ([]*domain.APIKey, error) {
	names := s.owners.Get(owner)
	out := make([]*domain.APIKey, 0, len(names))
	for _, name := range names {
		if k, ok := s.keys.Get(name); ok && k.Owner == owner {
			out = append(out, k.Clone())
		}
	}
	storage.SortKeys(out)
	return out, nil
}

// Get returns a key regardless of owner.
func (s *KeyStore) Get(_ context.Context, key string) (*domain.APIKey, error) {
	k, ok := s.keys.Get(key)
	if !ok {
		return nil, domain.ErrAPIKeyNotFound
	}
	return k.Clone(), nil
}

// Create stores a new key.
func (s *KeyStore) Create(_ context.Context, k *domain.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.keys.SetIfAbsent(k.Key, k.Clone()) {
		return domain.ErrAPIKeyConflict
	}
	s.owners.Add(k.Owner, k.Key)
	return nil
}

// Toggle flips IsActive.
func (s *KeyStore) Toggle(_ context.Context, owner, key string) (*domain.APIKey, error) {
	var found bool
	updated, _ := s.keys.Compute(key, func(old *domain.APIKey, exists bool) (*domain.APIKey, bool) {
		if !exists {
			return nil, false
		}
		if old.Owner != owner {
			return old, true
		}
		found = true
		next := old.Clone()
		next.IsActive = !next.IsActive
		return next, true
	})
	if !found {
		return nil, domain.ErrAPIKeyNotFound
	}
	return updated.Clone(), nil
}

// Delete removes the key.
func (s *KeyStore) Delete(_ context.Context, owner, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys.Get(key)
	if !ok || k.Owner != owner {
		return domain.ErrAPIKeyNotFound
	}
	s.keys.Delete(key)
	s.owners.Remove(owner, key)
	return nil
}

// ReplaceAll makes keys the complete set owned by owner.
func (s *KeyStore) ReplaceAll(_ context.Context, owner string, keys []*domain.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range s.owners.Clear(owner) {
		s.keys.Delete(name)
	}
	for _, k := range keys {
		c := k.Clone()
		c.Owner = owner
		s.keys.Set(c.Key, c)
		s.owners.Add(owner, c.Key)
	}
	return nil
}

// RecordUsage increments the usage counter.
func (s *KeyStore) RecordUsage(_ context.Context, key string, at time.Time) (*domain.APIKey, error) {
	updated, ok := s.keys.Compute(key, func(old *domain.APIKey, exists bool) (*domain.APIKey, bool) {
		if !exists {
			return nil, false
		}
		next := old.Clone()
		next.UsageCount++
		next.LastUsedAt = at.UTC()
		return next, true
	})
	if !ok {
		return nil, domain.ErrAPIKeyNotFound
	}
	return updated.Clone(), nil
}

// Stats summarizes the owner's keys.
func (s *KeyStore) Stats(ctx context.Context, owner string) (domain.UsageStats, error) {
	keys, _ := s.List(ctx, owner)
	return domain.SummarizeUsage(keys), nil
}

// Len returns the total number of keys held.
func (s *KeyStore) Len() int {
	return s.keys.Count()
}

var _ storage.KeyStore = (*KeyStore)(nil)
