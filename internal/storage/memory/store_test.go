package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/metalgate/internal/core/domain"
	"github.com/yndnr/metalgate/internal/storage"
	"github.com/yndnr/metalgate/internal/storage/storagetest"
)

func TestKeyStore(t *testing.T) {
	storagetest.RunKeyStoreTests(t, func(*testing.T) storage.KeyStore { return NewKeyStore() })
}

func TestUserStore(t *testing.T) {
	storagetest.RunUserStoreTests(t, func(*testing.T) storage.UserStore { return NewUserStore() })
}

func TestTokenStore(t *testing.T) {
	storagetest.RunTokenStoreTests(t, func(*testing.T) storage.TokenStore { return NewTokenStore() })
}

func TestTokenStore_Sweep(t *testing.T) {
	s := NewTokenStore()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	_ = s.SaveToken(ctx, &domain.AuthToken{TokenHash: "a", ExpiresAt: now.Add(time.Minute)})
	_ = s.SaveToken(ctx, &domain.AuthToken{TokenHash: "b", ExpiresAt: now.Add(-time.Minute)})
	_ = s.SaveToken(ctx, &domain.AuthToken{TokenHash: "c"})

	if n := s.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
	if _, err := s.GetToken(ctx, "a"); err != nil {
		t.Errorf("live token dropped: %v", err)
	}
	if _, err := s.GetToken(ctx, "c"); err != nil {
		t.Errorf("unbounded token dropped: %v", err)
	}
}

func TestKeyStore_ReturnsCopies(t *testing.T) {
	s := NewKeyStore()
	ctx := context.Background()
	k := &domain.APIKey{Key: "k", Owner: "o", IsActive: true}
	if err := s.Create(ctx, k); err != nil {
		t.Fatal(err)
	}
	k.IsActive = false

	got, _ := s.Get(ctx, "k")
	if !got.IsActive {
		t.Error("store must not alias the caller's value")
	}
	got.IsActive = false
	again, _ := s.Get(ctx, "k")
	if !again.IsActive {
		t.Error("store must not hand out internal pointers")
	}
}

func TestKeyStore_ConcurrentToggle(t *testing.T) {
	s := NewKeyStore()
	ctx := context.Background()
	_ = s.Create(ctx, &domain.APIKey{Key: "k", Owner: "o", IsActive: true})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Toggle(ctx, "o", "k")
		}()
	}
	wg.Wait()

	got, _ := s.Get(ctx, "k")
	if !got.IsActive {
		t.Error("an even number of toggles must restore the original state")
	}
}

func TestOwnerIndex(t *testing.T) {
	idx := NewOwnerIndex()
	idx.Add("alice", "k1")
	idx.Add("alice", "k2")
	idx.Add("bob", "k3")

	if got := len(idx.Get("alice")); got != 2 {
		t.Errorf("Get(alice) len = %d", got)
	}
	idx.Remove("alice", "k1")
	idx.Remove("alice", "k2")
	if got := idx.Get("alice"); got != nil {
		t.Errorf("empty owner should be dropped, got %v", got)
	}
	if got := idx.Clear("bob"); len(got) != 1 || got[0] != "k3" {
		t.Errorf("Clear(bob) = %v", got)
	}
}

func TestStore_ExportImport(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	src := New()
	_ = src.CreateUser(ctx, &domain.User{ID: "u1", Username: "alice", PasswordHash: "h", CreatedAt: now})
	k, err := domain.NewAPIKey("alice", "")
	if err != nil {
		t.Fatalf("NewAPIKey() error = %v", err)
	}
	_ = src.Create(ctx, k)
	_, _ = src.RecordUsage(ctx, k.Key, now)
	_ = src.SaveToken(ctx, &domain.AuthToken{TokenHash: "live", Username: "alice", ExpiresAt: now.Add(time.Hour)})
	_ = src.SaveToken(ctx, &domain.AuthToken{TokenHash: "dead", Username: "alice", ExpiresAt: now.Add(-time.Hour)})

	st := src.Export()
	if len(st.Users) != 1 || len(st.Keys) != 1 || len(st.Tokens) != 1 {
		t.Fatalf("Export() = %d users, %d keys, %d tokens", len(st.Users), len(st.Keys), len(st.Tokens))
	}

	dst := New()
	_ = dst.CreateUser(ctx, &domain.User{ID: "u2", Username: "alice", PasswordHash: "other"})
	dst.Import(st)

	if u, _ := dst.GetUser(ctx, "alice"); u.ID != "u2" {
		t.Errorf("Import overwrote an existing user: %+v", u)
	}
	keys, _ := dst.List(ctx, "alice")
	if len(keys) != 1 || keys[0].UsageCount != 1 || keys[0].Owner != "alice" {
		t.Errorf("imported keys = %+v", keys)
	}
	if _, err := dst.GetToken(ctx, "live"); err != nil {
		t.Errorf("live token not imported: %v", err)
	}
	if _, err := dst.GetToken(ctx, "dead"); err == nil {
		t.Error("expired token imported")
	}
}
