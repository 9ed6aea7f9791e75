package connection

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/yndnr/metalgate/internal/storage"
)

// TokenStore persists the session token between CLI invocations.
// Load returns "" when no token is stored.
type TokenStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// FileTokenStore keeps the token in a single file readable only by the
// owner.
type FileTokenStore struct {
	path string
}

// NewFileTokenStore returns a store writing to path.
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

// Path returns the token file location.
func (s *FileTokenStore) Path() string {
	return s.path
}

// Load implements TokenStore.
func (s *FileTokenStore) Load(_ context.Context) (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Save implements TokenStore.
func (s *FileTokenStore) Save(_ context.Context, token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace token file: %w", err)
	}
	return nil
}

// Clear implements TokenStore.
func (s *FileTokenStore) Clear(_ context.Context) error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

var sessionTokenKey = []byte("cli/session/token")

// KVTokenStore keeps the token in a key-value engine, typically the
// Badger database that also holds the CLI's local state.
type KVTokenStore struct {
	engine storage.KVEngine
}

// NewKVTokenStore wraps engine.
func NewKVTokenStore(engine storage.KVEngine) *KVTokenStore {
	return &KVTokenStore{engine: engine}
}

// Load implements TokenStore.
func (s *KVTokenStore) Load(ctx context.Context) (string, error) {
	v, err := s.engine.Get(ctx, sessionTokenKey)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load token: %w", err)
	}
	return string(v), nil
}

// Save implements TokenStore.
func (s *KVTokenStore) Save(ctx context.Context, token string) error {
	if err := s.engine.Set(ctx, sessionTokenKey, []byte(token), 0); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// Clear implements TokenStore.
func (s *KVTokenStore) Clear(ctx context.Context) error {
	if err := s.engine.Delete(ctx, sessionTokenKey); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}

// MemoryTokenStore keeps the token in process memory only.
type MemoryTokenStore struct {
	mu    sync.Mutex
	token string
}

// Load implements TokenStore.
func (s *MemoryTokenStore) Load(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

// Save implements TokenStore.
func (s *MemoryTokenStore) Save(_ context.Context, token string) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

// Clear implements TokenStore.
func (s *MemoryTokenStore) Clear(_ context.Context) error {
	return s.Save(context.Background(), "")
}
