package service

import (
	"context"
	"errors"
	"net/url"

	"github.com/yndnr/metalgate/internal/core/domain"
	"github.com/yndnr/metalgate/internal/storage"
	"github.com/yndnr/metalgate/internal/telemetry/logger"
)

// CreateKeyRequest is the body of POST /api-keys. An empty Key lets the
// server generate one.
type CreateKeyRequest struct {
	Key string `json:"key,omitempty"`
}

// Validate checks a caller-supplied key before it is sent.
func (r CreateKeyRequest) Validate() error {
	if r.Key == "" {
		return nil
	}
	return domain.ValidateAPIKey(r.Key)
}

// APIKeyService manages the user's API keys and keeps a local copy of
// the last known state.
//
// Toggle and Revoke update the local copy before the request is sent and
// do not roll back when it fails; call List to reconcile.
type APIKeyService struct {
	session SessionSource
	cache   storage.KeyStore
	logger  logger.Logger
}

// NewAPIKeyService creates the service. cache holds the local copy,
// scoped by username.
func NewAPIKeyService(session SessionSource, cache storage.KeyStore, log logger.Logger) *APIKeyService {
	if log == nil {
		log = logger.Default()
	}
	return &APIKeyService{session: session, cache: cache, logger: log}
}

// List fetches the keys from the server and replaces the local copy.
func (s *APIKeyService) List(ctx context.Context) ([]*domain.APIKey, error) {
	owner, c, err := authorize(s.session)
	if err != nil {
		return nil, err
	}

	var keys []*domain.APIKey
	if err := c.Get(ctx, "/api-keys", nil, &keys); err != nil {
		return nil, err
	}
	for _, k := range keys {
		k.Owner = owner
	}

	if s.session.IsCurrent(c.Generation()) {
		if err := s.cache.ReplaceAll(ctx, owner, keys); err != nil {
			s.logger.Warn("failed to update key cache", "error", err)
		}
	}
	return keys, nil
}

// Create asks the server for a new key and appends it to the local copy.
// On failure the local copy is unchanged.
func (s *APIKeyService) Create(ctx context.Context, req CreateKeyRequest) (*domain.APIKey, error) {
	owner, c, err := authorize(s.session)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var key domain.APIKey
	if err := c.Post(ctx, "/api-keys", req, &key); err != nil {
		return nil, err
	}
	key.Owner = owner

	if s.session.IsCurrent(c.Generation()) {
		if err := s.cache.Create(ctx, key.Clone()); err != nil && !errors.Is(err, domain.ErrAPIKeyConflict) {
			s.logger.Warn("failed to cache new key", "error", err)
		}
	}
	return &key, nil
}

// Toggle flips the key's active flag locally, then on the server. When the
// server answers, its state replaces the local one.
func (s *APIKeyService) Toggle(ctx context.Context, key string) error {
	owner, c, err := authorize(s.session)
	if err != nil {
		return err
	}

	if _, err := s.cache.Toggle(ctx, owner, key); err != nil && !errors.Is(err, domain.ErrAPIKeyNotFound) {
		s.logger.Warn("failed to toggle cached key", "key", key, "error", err)
	}

	var updated domain.APIKey
	if err := c.Post(ctx, keyPath(key)+"/toggle", nil, &updated); err != nil {
		return err
	}

	if updated.Key == key && s.session.IsCurrent(c.Generation()) {
		updated.Owner = owner
		if err := s.replaceCached(ctx, owner, &updated); err != nil {
			s.logger.Warn("failed to reconcile cached key", "key", key, "error", err)
		}
	}
	return nil
}

// Revoke removes the key locally, then deletes it on the server.
func (s *APIKeyService) Revoke(ctx context.Context, key string) error {
	owner, c, err := authorize(s.session)
	if err != nil {
		return err
	}

	if err := s.cache.Delete(ctx, owner, key); err != nil && !errors.Is(err, domain.ErrAPIKeyNotFound) {
		s.logger.Warn("failed to remove cached key", "key", key, "error", err)
	}

	return c.Delete(ctx, keyPath(key), nil)
}

// Cached returns the local copy for the current user without a network
// call.
func (s *APIKeyService) Cached(ctx context.Context) []*domain.APIKey {
	owner := s.session.Current().Username()
	if owner == "" {
		return nil
	}
	keys, err := s.cache.List(ctx, owner)
	if err != nil {
		s.logger.Warn("failed to read key cache", "error", err)
		return nil
	}
	return keys
}

// replaceCached swaps in updated for its key in the owner's local copy.
func (s *APIKeyService) replaceCached(ctx context.Context, owner string, updated *domain.APIKey) error {
	keys, err := s.cache.List(ctx, owner)
	if err != nil {
		return err
	}
	found := false
	for i, k := range keys {
		if k.Key == updated.Key {
			keys[i] = updated.Clone()
			found = true
		}
	}
	if !found {
		return nil
	}
	return s.cache.ReplaceAll(ctx, owner, keys)
}

func keyPath(key string) string {
	return "/api-keys/" + url.PathEscape(key)
}
