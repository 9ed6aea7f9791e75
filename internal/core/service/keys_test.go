package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/metalgate/internal/core/domain"
	"github.com/yndnr/metalgate/internal/storage/memory"
)

func newKeyService(t *testing.T) *KeyService {
	t.Helper()
	return NewKeyService(memory.NewKeyStore(), nil)
}

func TestKeyService_Lifecycle(t *testing.T) {
	svc := newKeyService(t)
	ctx := context.Background()

	generated, err := svc.Create(ctx, "alice", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !strings.HasPrefix(generated.Key, "mgk_") || !generated.IsActive || !generated.NeverUsed() {
		t.Errorf("generated key = %+v", generated)
	}

	supplied := strings.Repeat("s", 32)
	if _, err := svc.Create(ctx, "alice", supplied); err != nil {
		t.Fatalf("Create(supplied) error = %v", err)
	}

	keys, err := svc.List(ctx, "alice")
	if err != nil || len(keys) != 2 {
		t.Fatalf("List() = %d keys, %v", len(keys), err)
	}

	toggled, err := svc.Toggle(ctx, "alice", supplied)
	if err != nil || toggled.IsActive {
		t.Fatalf("Toggle() = %+v, %v", toggled, err)
	}
	if _, err := svc.Toggle(ctx, "bob", supplied); !errors.Is(err, domain.ErrAPIKeyNotFound) {
		t.Errorf("Toggle() by non-owner error = %v", err)
	}

	if err := svc.Delete(ctx, "alice", supplied); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := svc.Delete(ctx, "alice", supplied); !errors.Is(err, domain.ErrAPIKeyNotFound) {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestKeyService_CreateErrors(t *testing.T) {
	svc := newKeyService(t)
	ctx := context.Background()
	key := strings.Repeat("k", 40)
	if _, err := svc.Create(ctx, "alice", key); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		key  string
		want error
	}{
		{"too short", "short", domain.ErrValidation},
		{"duplicate", key, domain.ErrAPIKeyConflict},
		{"bad characters", strings.Repeat("k", 31) + "/", domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, "bob", tt.key); !errors.Is(err, tt.want) {
				t.Errorf("Create() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestKeyService_UseRecordsUsage(t *testing.T) {
	svc := newKeyService(t)
	ctx := context.Background()
	k, err := svc.Create(ctx, "alice", "")
	if err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 3; i++ {
		got, err := svc.Use(ctx, k.Key)
		if err != nil {
			t.Fatalf("Use() #%d error = %v", i, err)
		}
		if got.UsageCount != int64(i) || got.NeverUsed() {
			t.Errorf("after use #%d: %+v", i, got)
		}
	}

	stats, err := svc.Stats(ctx, "alice")
	if err != nil || stats.TotalKeys != 1 || stats.TotalUsage != 3 {
		t.Errorf("Stats() = %+v, %v", stats, err)
	}
}

func TestKeyService_UseRejectsInactive(t *testing.T) {
	svc := newKeyService(t)
	ctx := context.Background()
	k, _ := svc.Create(ctx, "alice", "")

	if _, err := svc.Use(ctx, k.Key); err != nil {
		t.Fatal(err)
	}
	// The key is cached as valid now; toggling must still take effect.
	if _, err := svc.Toggle(ctx, "alice", k.Key); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Use(ctx, k.Key); !errors.Is(err, domain.ErrAPIKeyInactive) {
		t.Errorf("Use() of inactive key error = %v", err)
	}

	for _, key := range []string{"", "mgk_unknown"} {
		if _, err := svc.Use(ctx, key); !errors.Is(err, domain.ErrAPIKeyInactive) {
			t.Errorf("Use(%q) error = %v", key, err)
		}
	}
}

func TestKeyService_UseAfterDelete(t *testing.T) {
	svc := newKeyService(t)
	ctx := context.Background()
	k, _ := svc.Create(ctx, "alice", "")
	if _, err := svc.Use(ctx, k.Key); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, "alice", k.Key); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Use(ctx, k.Key); !errors.Is(err, domain.ErrAPIKeyInactive) {
		t.Errorf("Use() of deleted key error = %v", err)
	}
}

func TestKeyService_LogUsage(t *testing.T) {
	svc := newKeyService(t)
	ctx := context.Background()
	k, _ := svc.Create(ctx, "alice", "")

	got, err := svc.LogUsage(ctx, "alice", k.Key)
	if err != nil || got.UsageCount != 1 {
		t.Fatalf("LogUsage() = %+v, %v", got, err)
	}
	if _, err := svc.LogUsage(ctx, "bob", k.Key); !errors.Is(err, domain.ErrAPIKeyNotFound) {
		t.Errorf("LogUsage() by non-owner error = %v", err)
	}
}

func TestAPIKeyCache(t *testing.T) {
	c := NewAPIKeyCache(2, time.Minute)
	for i := 0; i < 3; i++ {
		k := fmt.Sprintf("k%d", i)
		c.Set(k, &domain.APIKey{Key: k})
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
	if c.Get("k0") != nil {
		t.Error("least recently used entry should be evicted")
	}
	if c.Get("k2") == nil {
		t.Error("newest entry missing")
	}

	c.Delete("k2")
	if c.Get("k2") != nil {
		t.Error("Delete() did not remove entry")
	}

	expired := NewAPIKeyCache(10, time.Nanosecond)
	expired.Set("k", &domain.APIKey{Key: "k"})
	time.Sleep(time.Millisecond)
	if expired.Get("k") != nil {
		t.Error("expired entry returned")
	}

	disabled := NewAPIKeyCache(10, 0)
	disabled.Set("k", &domain.APIKey{Key: "k"})
	if disabled.Len() != 0 {
		t.Error("zero TTL should disable caching")
	}
}
