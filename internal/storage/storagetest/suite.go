// Package storagetest holds behaviour tests shared by every storage backend.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yndnr/metalgate/internal/core/domain"
	"github.com/yndnr/metalgate/internal/storage"
)

// RunKeyStoreTests exercises a KeyStore. newStore must return an empty store.
func RunKeyStoreTests(t *testing.T, newStore func(t *testing.T) storage.KeyStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	mk := func(owner, key string, offset time.Duration) *domain.APIKey {
		return &domain.APIKey{Key: key, Owner: owner, IsActive: true, CreatedAt: base.Add(offset)}
	}

	t.Run("create list get", func(t *testing.T) {
		s := newStore(t)
		for i, k := range []*domain.APIKey{mk("alice", "k2", 2*time.Second), mk("alice", "k1", time.Second), mk("bob", "k3", 0)} {
			if err := s.Create(ctx, k); err != nil {
				t.Fatalf("Create(%d) error = %v", i, err)
			}
		}

		keys, err := s.List(ctx, "alice")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(keys) != 2 || keys[0].Key != "k1" || keys[1].Key != "k2" {
			t.Fatalf("List(alice) = %v, want [k1 k2] by creation time", keyNames(keys))
		}

		got, err := s.Get(ctx, "k3")
		if err != nil || got.Owner != "bob" {
			t.Fatalf("Get(k3) = %+v, %v", got, err)
		}
		if _, err := s.Get(ctx, "missing"); !errors.Is(err, domain.ErrAPIKeyNotFound) {
			t.Errorf("Get(missing) error = %v", err)
		}
		if keys, _ := s.List(ctx, "nobody"); len(keys) != 0 {
			t.Errorf("List(nobody) = %v", keyNames(keys))
		}
	})

	t.Run("duplicate create", func(t *testing.T) {
		s := newStore(t)
		if err := s.Create(ctx, mk("alice", "dup", 0)); err != nil {
			t.Fatal(err)
		}
		if err := s.Create(ctx, mk("bob", "dup", 0)); !errors.Is(err, domain.ErrAPIKeyConflict) {
			t.Errorf("duplicate Create() error = %v, want ErrAPIKeyConflict", err)
		}
	})

	t.Run("toggle round trip", func(t *testing.T) {
		s := newStore(t)
		if err := s.Create(ctx, mk("alice", "t1", 0)); err != nil {
			t.Fatal(err)
		}
		k, err := s.Toggle(ctx, "alice", "t1")
		if err != nil || k.IsActive {
			t.Fatalf("first Toggle() = %+v, %v", k, err)
		}
		k, err = s.Toggle(ctx, "alice", "t1")
		if err != nil || !k.IsActive {
			t.Fatalf("second Toggle() = %+v, %v", k, err)
		}
		if _, err := s.Toggle(ctx, "bob", "t1"); !errors.Is(err, domain.ErrAPIKeyNotFound) {
			t.Errorf("Toggle by non-owner error = %v", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		if err := s.Create(ctx, mk("alice", "d1", 0)); err != nil {
			t.Fatal(err)
		}
		if err := s.Delete(ctx, "bob", "d1"); !errors.Is(err, domain.ErrAPIKeyNotFound) {
			t.Errorf("Delete by non-owner error = %v", err)
		}
		if err := s.Delete(ctx, "alice", "d1"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if err := s.Delete(ctx, "alice", "d1"); !errors.Is(err, domain.ErrAPIKeyNotFound) {
			t.Errorf("second Delete() error = %v", err)
		}
		if keys, _ := s.List(ctx, "alice"); len(keys) != 0 {
			t.Errorf("List() after delete = %v", keyNames(keys))
		}
	})

	t.Run("replace all", func(t *testing.T) {
		s := newStore(t)
		for _, k := range []*domain.APIKey{mk("alice", "old1", 0), mk("alice", "old2", time.Second), mk("bob", "b1", 0)} {
			if err := s.Create(ctx, k); err != nil {
				t.Fatal(err)
			}
		}
		err := s.ReplaceAll(ctx, "alice", []*domain.APIKey{mk("", "new1", 0)})
		if err != nil {
			t.Fatalf("ReplaceAll() error = %v", err)
		}
		keys, _ := s.List(ctx, "alice")
		if len(keys) != 1 || keys[0].Key != "new1" || keys[0].Owner != "alice" {
			t.Errorf("List(alice) = %v", keyNames(keys))
		}
		if keys, _ := s.List(ctx, "bob"); len(keys) != 1 {
			t.Errorf("ReplaceAll must not touch other owners, bob = %v", keyNames(keys))
		}
	})

	t.Run("usage and stats", func(t *testing.T) {
		s := newStore(t)
		if err := s.Create(ctx, mk("alice", "u1", 0)); err != nil {
			t.Fatal(err)
		}
		if err := s.Create(ctx, mk("alice", "u2", time.Second)); err != nil {
			t.Fatal(err)
		}
		at := base.Add(time.Hour)
		for i := 0; i < 3; i++ {
			if _, err := s.RecordUsage(ctx, "u1", at); err != nil {
				t.Fatalf("RecordUsage() error = %v", err)
			}
		}
		k, err := s.Get(ctx, "u1")
		if err != nil {
			t.Fatal(err)
		}
		if k.UsageCount != 3 || !k.LastUsedAt.Equal(at) {
			t.Errorf("after usage: count=%d last=%v", k.UsageCount, k.LastUsedAt)
		}
		if _, err := s.RecordUsage(ctx, "missing", at); !errors.Is(err, domain.ErrAPIKeyNotFound) {
			t.Errorf("RecordUsage(missing) error = %v", err)
		}

		stats, err := s.Stats(ctx, "alice")
		if err != nil {
			t.Fatal(err)
		}
		if stats.TotalKeys != 2 || stats.TotalUsage != 3 {
			t.Errorf("Stats() = %+v", stats)
		}
		if stats, _ := s.Stats(ctx, "nobody"); stats.TotalKeys != 0 || stats.TotalUsage != 0 {
			t.Errorf("Stats(nobody) = %+v", stats)
		}
	})
}

// RunUserStoreTests exercises a UserStore.
func RunUserStoreTests(t *testing.T, newStore func(t *testing.T) storage.UserStore) {
	t.Helper()
	ctx := context.Background()

	s := newStore(t)
	u := &domain.User{ID: "01j0000000000000000000000a", Username: "alice", PasswordHash: "h", CreatedAt: time.Now().UTC().Truncate(time.Millisecond)}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if err := s.CreateUser(ctx, u); !errors.Is(err, domain.ErrUserExists) {
		t.Errorf("duplicate CreateUser() error = %v", err)
	}
	got, err := s.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if got.PasswordHash != "h" || got.ID != u.ID || !got.CreatedAt.Equal(u.CreatedAt) {
		t.Errorf("GetUser() = %+v", got)
	}
	if _, err := s.GetUser(ctx, "bob"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("GetUser(bob) error = %v", err)
	}
}

// RunTokenStoreTests exercises a TokenStore.
func RunTokenStoreTests(t *testing.T, newStore func(t *testing.T) storage.TokenStore) {
	t.Helper()
	ctx := context.Background()

	s := newStore(t)
	now := time.Now().UTC()
	live := &domain.AuthToken{TokenHash: "live", Username: "alice", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	if err := s.SaveToken(ctx, live); err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}
	got, err := s.GetToken(ctx, "live")
	if err != nil || got.Username != "alice" {
		t.Fatalf("GetToken() = %+v, %v", got, err)
	}

	if _, err := s.GetToken(ctx, "missing"); !errors.Is(err, domain.ErrSessionExpired) {
		t.Errorf("GetToken(missing) error = %v", err)
	}

	if err := s.DeleteToken(ctx, "live"); err != nil {
		t.Fatalf("DeleteToken() error = %v", err)
	}
	if _, err := s.GetToken(ctx, "live"); !errors.Is(err, domain.ErrSessionExpired) {
		t.Errorf("GetToken after delete error = %v", err)
	}
	if err := s.DeleteToken(ctx, "live"); err != nil {
		t.Errorf("DeleteToken of missing token error = %v", err)
	}
}

func keyNames(keys []*domain.APIKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.Key
	}
	return out
}
