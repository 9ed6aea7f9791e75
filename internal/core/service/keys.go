package service

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yndnr/metalgate/internal/core/domain"
)

// KeyService manages API keys on behalf of their owners and validates keys
// presented on quote endpoints.
type KeyService struct {
	repo  KeyRepository
	cache *APIKeyCache
	now   func() time.Time
}

// KeyServiceConfig holds configuration for KeyService.
type KeyServiceConfig struct {
	// CacheTTL is how long a validated key is trusted without a lookup (default: 10s).
	CacheTTL time.Duration

	// CacheSize is the maximum number of cached keys (default: 10,000).
	CacheSize int
}

// DefaultKeyServiceConfig returns default configuration.
func DefaultKeyServiceConfig() *KeyServiceConfig {
	return &KeyServiceConfig{
		CacheTTL:  10 * time.Second,
		CacheSize: 10000,
	}
}

// NewKeyService creates a new KeyService.
func NewKeyService(repo KeyRepository, config *KeyServiceConfig) *KeyService {
	if config == nil {
		config = DefaultKeyServiceConfig()
	}
	return &KeyService{
		repo:  repo,
		cache: NewAPIKeyCache(config.CacheSize, config.CacheTTL),
		now:   time.Now,
	}
}

// List returns the owner's keys ordered by creation time.
func (s *KeyService) List(ctx context.Context, owner string) ([]*domain.APIKey, error) {
	return s.repo.List(ctx, owner)
}

// Create stores a new key for owner. An empty key is generated.
func (s *KeyService) Create(ctx context.Context, owner, key string) (*domain.APIKey, error) {
	k, err := domain.NewAPIKey(owner, key)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, k); err != nil {
		return nil, err
	}
	return k, nil
}

// Toggle flips the active flag of one of owner's keys.
func (s *KeyService) Toggle(ctx context.Context, owner, key string) (*domain.APIKey, error) {
	k, err := s.repo.Toggle(ctx, owner, key)
	if err != nil {
		return nil, err
	}
	s.cache.Delete(key)
	return k, nil
}

// Delete removes one of owner's keys.
func (s *KeyService) Delete(ctx context.Context, owner, key string) error {
	if err := s.repo.Delete(ctx, owner, key); err != nil {
		return err
	}
	s.cache.Delete(key)
	return nil
}

// Stats summarizes the owner's keys.
func (s *KeyService) Stats(ctx context.Context, owner string) (domain.UsageStats, error) {
	return s.repo.Stats(ctx, owner)
}

// LogUsage records one use of an owner's key.
func (s *KeyService) LogUsage(ctx context.Context, owner, key string) (*domain.APIKey, error) {
	k, err := s.repo.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if k.Owner != owner {
		return nil, domain.ErrAPIKeyNotFound
	}
	return s.repo.RecordUsage(ctx, key, s.now().UTC())
}

// Use validates a key presented by an API consumer and records the use.
// Unknown and inactive keys both return ErrAPIKeyInactive.
func (s *KeyService) Use(ctx context.Context, key string) (*domain.APIKey, error) {
	if key == "" {
		return nil, domain.ErrAPIKeyInactive
	}
	if cached := s.cache.Get(key); cached == nil {
		k, err := s.repo.Get(ctx, key)
		if err != nil {
			if errors.Is(err, domain.ErrAPIKeyNotFound) {
				return nil, domain.ErrAPIKeyInactive
			}
			return nil, err
		}
		if !k.IsActive {
			return nil, domain.ErrAPIKeyInactive
		}
		s.cache.Set(key, k)
	}

	k, err := s.repo.RecordUsage(ctx, key, s.now().UTC())
	if err != nil {
		if errors.Is(err, domain.ErrAPIKeyNotFound) {
			s.cache.Delete(key)
			return nil, domain.ErrAPIKeyInactive
		}
		return nil, err
	}
	return k, nil
}

// ============================================================================
// APIKeyCache - LRU cache of keys validated as active
// ============================================================================

// APIKeyCache implements an LRU cache with TTL for validated API keys.
type APIKeyCache struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	order    *list.List // front = most recently used
	capacity int
	ttl      time.Duration
}

type cacheEntry struct {
	key       string
	value     *domain.APIKey
	expiresAt time.Time
}

// NewAPIKeyCache creates a new APIKeyCache with LRU eviction.
func NewAPIKeyCache(capacity int, ttl time.Duration) *APIKeyCache {
	if capacity <= 0 {
		capacity = 10000
	}
	return &APIKeyCache{
		items:    make(map[string]*list.Element),
		order:    list.New(),
		capacity: capacity,
		ttl:      ttl,
	}
}

// Get returns a cached key, or nil when absent or expired.
func (c *APIKeyCache) Get(key string) *domain.APIKey {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil
	}
	entry := elem.Value.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.order.Remove(elem)
		delete(c.items, key)
		return nil
	}
	c.order.MoveToFront(elem)
	return entry.value
}

// Set adds a key, evicting the least recently used entry at capacity.
// A non-positive TTL disables caching.
func (c *APIKeyCache) Set(key string, value *domain.APIKey) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(elem)
		return
	}

	for c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		delete(c.items, oldest.Value.(*cacheEntry).key)
		c.order.Remove(oldest)
	}
	c.items[key] = c.order.PushFront(&cacheEntry{
		key:       key,
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	})
}

// Delete removes a key from the cache.
func (c *APIKeyCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.Remove(elem)
		delete(c.items, key)
	}
}

// Len returns the number of cached entries, expired ones included.
func (c *APIKeyCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
