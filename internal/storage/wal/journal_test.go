package wal

import (
	"context"
	"testing"
	"time"

	"github.com/yndnr/metalgate/internal/core/domain"
	"github.com/yndnr/metalgate/internal/storage"
	"github.com/yndnr/metalgate/internal/storage/memory"
	"github.com/yndnr/metalgate/internal/storage/storagetest"
)

func newJournal(t *testing.T, dir string) *Journal {
	t.Helper()
	w := openWriter(t, Config{Dir: dir, SyncMode: SyncModeSync})
	return NewJournal(memory.New(), w)
}

func TestJournal_KeyStore(t *testing.T) {
	storagetest.RunKeyStoreTests(t, func(t *testing.T) storage.KeyStore {
		j := newJournal(t, t.TempDir())
		t.Cleanup(func() { j.Close() })
		return j
	})
}

func TestJournal_UserStore(t *testing.T) {
	storagetest.RunUserStoreTests(t, func(t *testing.T) storage.UserStore {
		j := newJournal(t, t.TempDir())
		t.Cleanup(func() { j.Close() })
		return j
	})
}

func TestJournal_TokenStore(t *testing.T) {
	storagetest.RunTokenStoreTests(t, func(t *testing.T) storage.TokenStore {
		j := newJournal(t, t.TempDir())
		t.Cleanup(func() { j.Close() })
		return j
	})
}

func TestJournal_Replay(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	j := newJournal(t, dir)

	u, err := domain.NewUser(domain.Credentials{Username: "alice", Password: "correct-horse"})
	if err != nil {
		t.Fatal(err)
	}
	if err := j.CreateUser(ctx, u); err != nil {
		t.Fatal(err)
	}
	// Failed mutations are not logged.
	if err := j.CreateUser(ctx, u); err == nil {
		t.Fatal("duplicate CreateUser should fail")
	}

	k1, _ := domain.NewAPIKey("alice", "")
	k2, _ := domain.NewAPIKey("alice", "")
	for _, k := range []*domain.APIKey{k1, k2} {
		if err := j.Create(ctx, k); err != nil {
			t.Fatal(err)
		}
	}
	used := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	j.RecordUsage(ctx, k1.Key, used)
	j.RecordUsage(ctx, k1.Key, used.Add(time.Minute))
	if _, err := j.Toggle(ctx, "alice", k1.Key); err != nil {
		t.Fatal(err)
	}
	if err := j.Delete(ctx, "alice", k2.Key); err != nil {
		t.Fatal(err)
	}

	live := &domain.AuthToken{TokenHash: "live", Username: "alice", ExpiresAt: time.Now().Add(time.Hour)}
	gone := &domain.AuthToken{TokenHash: "gone", Username: "alice", ExpiresAt: time.Now().Add(time.Hour)}
	j.SaveToken(ctx, live)
	j.SaveToken(ctx, gone)
	j.DeleteToken(ctx, "gone")

	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	restored := memory.New()
	r, err := NewReader(dir, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	stats, err := Replay(ctx, r, restored, time.Now())
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if stats.Applied != 10 || stats.Skipped != 0 {
		t.Errorf("stats = %+v, want 10 applied", stats)
	}

	if _, err := restored.GetUser(ctx, "alice"); err != nil {
		t.Errorf("GetUser() error = %v", err)
	}
	keys, _ := restored.List(ctx, "alice")
	if len(keys) != 1 || keys[0].Key != k1.Key {
		t.Fatalf("keys = %d, want only k1", len(keys))
	}
	if got := keys[0]; got.IsActive || got.UsageCount != 2 || !got.LastUsedAt.Equal(used.Add(time.Minute)) {
		t.Errorf("k1 = %+v", got)
	}
	if _, err := restored.GetToken(ctx, "live"); err != nil {
		t.Errorf("live token: %v", err)
	}
	if _, err := restored.GetToken(ctx, "gone"); err == nil {
		t.Error("deleted token restored")
	}
}

func TestJournal_ReplaySkipsStale(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	j := newJournal(t, dir)

	u, _ := domain.NewUser(domain.Credentials{Username: "alice", Password: "correct-horse"})
	j.CreateUser(ctx, u)
	short := &domain.AuthToken{TokenHash: "short", Username: "alice", ExpiresAt: time.Now().Add(time.Minute)}
	j.SaveToken(ctx, short)
	j.Close()

	// The user already exists and the token has expired by replay time.
	target := memory.New()
	target.CreateUser(ctx, u)
	r, _ := NewReader(dir, 0, nil)
	defer r.Close()
	stats, err := Replay(ctx, r, target, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if stats.Applied != 0 || stats.Skipped != 2 {
		t.Errorf("stats = %+v, want 2 skipped", stats)
	}
}

func TestJournal_Checkpoint(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	j := newJournal(t, dir)
	defer j.Close()

	before := &domain.AuthToken{TokenHash: "before", Username: "alice", ExpiresAt: time.Now().Add(time.Hour)}
	j.SaveToken(ctx, before)

	var segment uint64
	err := j.Checkpoint(func(seg uint64) error {
		segment = seg
		return nil
	})
	if err != nil || segment != 2 {
		t.Fatalf("Checkpoint() segment = %d, err = %v", segment, err)
	}

	after := &domain.AuthToken{TokenHash: "after", Username: "alice", ExpiresAt: time.Now().Add(time.Hour)}
	j.SaveToken(ctx, after)

	entries, _ := readAll(t, dir, segment, nil)
	if len(entries) != 1 || entries[0].Token.TokenHash != "after" {
		t.Errorf("entries after checkpoint = %d", len(entries))
	}
}
