package memory

import (
	"github.com/yndnr/metalgate/internal/core/domain"
	"github.com/yndnr/metalgate/internal/storage"
	"github.com/yndnr/metalgate/internal/storage/snapshot"
)

// Store bundles the in-memory stores into a storage.Backend.
type Store struct {
	*KeyStore
	*UserStore
	*TokenStore
}

// New creates an empty in-memory backend.
func New() *Store {
	return &Store{
		KeyStore:   NewKeyStore(),
		UserStore:  NewUserStore(),
		TokenStore: NewTokenStore(),
	}
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// Export copies the current contents. Expired tokens are left out. The
// copy is not atomic across users, keys and tokens.
func (s *Store) Export() *snapshot.State {
	st := &snapshot.State{
		Users:  make([]domain.User, 0, s.users.Count()),
		Keys:   make([]storage.KeyRecord, 0, s.keys.Count()),
		Tokens: make([]domain.AuthToken, 0, s.tokens.Count()),
	}
	s.users.Range(func(_ string, u domain.User) bool {
		st.Users = append(st.Users, u)
		return true
	})
	s.keys.Range(func(_ string, k *domain.APIKey) bool {
		st.Keys = append(st.Keys, storage.NewKeyRecord(k))
		return true
	})
	now := s.now()
	s.tokens.Range(func(_ string, t domain.AuthToken) bool {
		if !t.IsExpired(now) {
			st.Tokens = append(st.Tokens, t)
		}
		return true
	})
	return st
}

// Import loads st into the store. Existing entries win over imported ones
// and expired tokens are dropped.
func (s *Store) Import(st *snapshot.State) {
	for _, u := range st.Users {
		s.users.SetIfAbsent(u.Username, u)
	}

	s.KeyStore.mu.Lock()
	for _, r := range st.Keys {
		if s.keys.SetIfAbsent(r.Key, r.APIKey()) {
			s.owners.Add(r.Owner, r.Key)
		}
	}
	s.KeyStore.mu.Unlock()

	now := s.now()
	for _, t := range st.Tokens {
		if !t.IsExpired(now) {
			s.tokens.SetIfAbsent(t.TokenHash, t)
		}
	}
}

var _ storage.Backend = (*Store)(nil)
