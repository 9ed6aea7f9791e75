package memory

import (
	"context"

	"github.com/yndnr/metalgate/internal/core/domain"
	"github.com/yndnr/metalgate/internal/storage"
	"github.com/yndnr/metalgate/pkg/cmap"
)

// UserStore keeps accounts in memory.
type UserStore struct {
	users *cmap.Map[string, domain.User]
}

// NewUserStore creates an empty user store.
func NewUserStore() *UserStore {
	return &UserStore{users: cmap.New[string, domain.User]()}
}

// CreateUser stores a new user.
func (s *UserStore) CreateUser(_ context.Context, u *domain.User) error {
	if !s.users.SetIfAbsent(u.Username, *u) {
		return domain.ErrUserExists
	}
	return nil
}

// GetUser returns a user by name.
func (s *UserStore) GetUser(_ context.Context, username string) (*domain.User, error) {
	u, ok := s.users.Get(username)
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

var _ storage.UserStore = (*UserStore)(nil)
