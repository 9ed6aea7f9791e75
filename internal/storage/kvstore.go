package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/yndnr/metalgate/internal/core/domain"
)

// Key layout.
const (
	prefixUser  = "user/"
	prefixKey   = "key/"
	prefixOwner = "owner/"
	prefixToken = "token/"
)

func userKey(name string) []byte        { return []byte(prefixUser + name) }
func apiKeyKey(key string) []byte       { return []byte(prefixKey + key) }
func ownerPrefix(owner string) []byte   { return []byte(prefixOwner + owner + "/") }
func ownerKey(owner, key string) []byte { return []byte(prefixOwner + owner + "/" + key) }
func tokenKey(hash string) []byte       { return []byte(prefixToken + hash) }

// KVStore implements Backend on top of a KVEngine.
type KVStore struct {
	engine KVEngine
	now    func() time.Time
}

// NewKVStore wraps engine. The store owns the engine and closes it.
func NewKVStore(engine KVEngine) *KVStore {
	return &KVStore{engine: engine, now: time.Now}
}

// Engine returns the underlying engine.
func (s *KVStore) Engine() KVEngine {
	return s.engine
}

// Close closes the engine.
func (s *KVStore) Close() error {
	return s.engine.Close()
}

// List returns the owner's keys ordered by creation time.
func (s *KVStore) List(ctx context.Context, owner string) ([]*domain.APIKey, error) {
	var keys []*domain.APIKey
	err := s.engine.Update(ctx, func(tx KVTxn) error {
		keys = keys[:0]
		var names []string
		prefix := ownerPrefix(owner)
		if err := tx.Scan(prefix, func(k, _ []byte) bool {
			names = append(names, string(k[len(prefix):]))
			return true
		}); err != nil {
			return err
		}
		for _, name := range names {
			k, err := getKey(tx, name)
			if err != nil {
				if errors.Is(err, domain.ErrAPIKeyNotFound) {
					continue
				}
				return err
			}
			keys = append(keys, k)
		}
		return nil
	})
	if err != nil {
		return nil, wrapStorage(err)
	}
	SortKeys(keys)
	return keys, nil
}

// Get returns a key regardless of owner.
func (s *KVStore) Get(ctx context.Context, key string) (*domain.APIKey, error) {
	data, err := s.engine.Get(ctx, apiKeyKey(key))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, domain.ErrAPIKeyNotFound
		}
		return nil, wrapStorage(err)
	}
	return DecodeKey(data)
}

// Create stores a new key.
func (s *KVStore) Create(ctx context.Context, k *domain.APIKey) error {
	return wrapStorage(s.engine.Update(ctx, func(tx KVTxn) error {
		if _, err := tx.Get(apiKeyKey(k.Key)); err == nil {
			return domain.ErrAPIKeyConflict
		} else if !errors.Is(err, ErrKeyNotFound) {
			return err
		}
		return putKey(tx, k)
	}))
}

// Toggle flips IsActive.
func (s *KVStore) Toggle(ctx context.Context, owner, key string) (*domain.APIKey, error) {
	var out *domain.APIKey
	err := s.engine.Update(ctx, func(tx KVTxn) error {
		k, err := getOwnedKey(tx, owner, key)
		if err != nil {
			return err
		}
		k.IsActive = !k.IsActive
		out = k
		return putKey(tx, k)
	})
	if err != nil {
		return nil, wrapStorage(err)
	}
	return out, nil
}

// Delete removes the key.
func (s *KVStore) Delete(ctx context.Context, owner, key string) error {
	return wrapStorage(s.engine.Update(ctx, func(tx KVTxn) error {
		if _, err := getOwnedKey(tx, owner, key); err != nil {
			return err
		}
		if err := tx.Delete(apiKeyKey(key)); err != nil {
			return err
		}
		return tx.Delete(ownerKey(owner, key))
	}))
}

// ReplaceAll makes keys the complete set owned by owner.
func (s *KVStore) ReplaceAll(ctx context.Context, owner string, keys []*domain.APIKey) error {
	return wrapStorage(s.engine.Update(ctx, func(tx KVTxn) error {
		var existing []string
		prefix := ownerPrefix(owner)
		if err := tx.Scan(prefix, func(k, _ []byte) bool {
			existing = append(existing, string(k[len(prefix):]))
			return true
		}); err != nil {
			return err
		}
		for _, name := range existing {
			if err := tx.Delete(apiKeyKey(name)); err != nil {
				return err
			}
			if err := tx.Delete(ownerKey(owner, name)); err != nil {
				return err
			}
		}
		for _, k := range keys {
			c := k.Clone()
			c.Owner = owner
			if err := putKey(tx, c); err != nil {
				return err
			}
		}
		return nil
	}))
}

// RecordUsage increments the usage counter.
func (s *KVStore) RecordUsage(ctx context.Context, key string, at time.Time) (*domain.APIKey, error) {
	var out *domain.APIKey
	err := s.engine.Update(ctx, func(tx KVTxn) error {
		k, err := getKey(tx, key)
		if err != nil {
			return err
		}
		k.UsageCount++
		k.LastUsedAt = at.UTC()
		out = k
		return putKey(tx, k)
	})
	if err != nil {
		return nil, wrapStorage(err)
	}
	return out, nil
}

// Stats summarizes the owner's keys.
func (s *KVStore) Stats(ctx context.Context, owner string) (domain.UsageStats, error) {
	keys, err := s.List(ctx, owner)
	if err != nil {
		return domain.UsageStats{}, err
	}
	return domain.SummarizeUsage(keys), nil
}

// CreateUser stores a new user.
func (s *KVStore) CreateUser(ctx context.Context, u *domain.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return domain.ErrStorage.WithCause(err)
	}
	return wrapStorage(s.engine.Update(ctx, func(tx KVTxn) error {
		if _, err := tx.Get(userKey(u.Username)); err == nil {
			return domain.ErrUserExists
		} else if !errors.Is(err, ErrKeyNotFound) {
			return err
		}
		return tx.Set(userKey(u.Username), data, 0)
	}))
}

// GetUser returns a user by name.
func (s *KVStore) GetUser(ctx context.Context, username string) (*domain.User, error) {
	data, err := s.engine.Get(ctx, userKey(username))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, wrapStorage(err)
	}
	var u domain.User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, domain.ErrStorage.WithCause(err)
	}
	return &u, nil
}

// SaveToken stores t with a TTL derived from ExpiresAt.
func (s *KVStore) SaveToken(ctx context.Context, t *domain.AuthToken) error {
	data, err := json.Marshal(t)
	if err != nil {
		return domain.ErrStorage.WithCause(err)
	}
	return wrapStorage(s.engine.Set(ctx, tokenKey(t.TokenHash), data, t.TTL(s.now())))
}

// GetToken returns an unexpired token record.
func (s *KVStore) GetToken(ctx context.Context, hash string) (*domain.AuthToken, error) {
	data, err := s.engine.Get(ctx, tokenKey(hash))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, domain.ErrSessionExpired
		}
		return nil, wrapStorage(err)
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
func (s *KVStore) DeleteToken(ctx context.Context, hash string) error {
	return wrapStorage(s.engine.Delete(ctx, tokenKey(hash)))
}

func getKey(tx KVTxn, key string) (*domain.APIKey, error) {
	data, err := tx.Get(apiKeyKey(key))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, domain.ErrAPIKeyNotFound
		}
		return nil, err
	}
	return DecodeKey(data)
}

func getOwnedKey(tx KVTxn, owner, key string) (*domain.APIKey, error) {
	k, err := getKey(tx, key)
	if err != nil {
		return nil, err
	}
	if k.Owner != owner {
		return nil, domain.ErrAPIKeyNotFound
	}
	return k, nil
}

func putKey(tx KVTxn, k *domain.APIKey) error {
	data, err := EncodeKey(k)
	if err != nil {
		return err
	}
	if err := tx.Set(apiKeyKey(k.Key), data, 0); err != nil {
		return err
	}
	return tx.Set(ownerKey(k.Owner, k.Key), nil, 0)
}

// wrapStorage passes domain errors through and wraps everything else.
func wrapStorage(err error) error {
	if err == nil || domain.IsDomainError(err, "") {
		return err
	}
	return domain.ErrStorage.WithCause(err)
}

var _ Backend = (*KVStore)(nil)
