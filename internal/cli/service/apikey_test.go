package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/yndnr/metalgate/internal/cli/connection"
	"github.com/yndnr/metalgate/internal/core/domain"
	"github.com/yndnr/metalgate/internal/storage/memory"
	"github.com/yndnr/metalgate/internal/telemetry/logger"
)

func TestAPIKeyService_RequiresAuthentication(t *testing.T) {
	sm := connection.NewSessionManager(connection.NewHTTPClient("http://127.0.0.1:1"),
		connection.WithSessionLogger(logger.Discard()))
	svc := NewAPIKeyService(sm, memory.NewKeyStore(), logger.Discard())
	ctx := context.Background()

	checks := map[string]error{}
	_, checks["List"] = svc.List(ctx)
	_, checks["Create"] = svc.Create(ctx, CreateKeyRequest{})
	_, checks["Create short key"] = svc.Create(ctx, CreateKeyRequest{Key: "short"})
	checks["Toggle"] = svc.Toggle(ctx, "k")
	checks["Revoke"] = svc.Revoke(ctx, "k")
	_, checks["FetchStats"] = NewUsageStatsService(sm).FetchStats(ctx)

	for op, err := range checks {
		if !errors.Is(err, domain.ErrNotAuthenticated) {
			t.Errorf("%s error = %v, want ErrNotAuthenticated", op, err)
		}
	}
	if got := svc.Cached(ctx); len(got) != 0 {
		t.Errorf("Cached() = %v", got)
	}
}

func TestAPIKeyService_List(t *testing.T) {
	fx := newFixture(t)
	fx.server.addKey("mgk_first_key_aaaaaaaaaaaaaaaaaaaaaaaa", true, 3)
	fx.server.addKey("mgk_second_key_bbbbbbbbbbbbbbbbbbbbbbb", false, 0)

	keys, err := fx.keys.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("List() returned %d keys, want 2", len(keys))
	}
	if !keys[0].IsActive || keys[0].UsageCount != 3 || keys[1].IsActive {
		t.Errorf("keys = %+v %+v", keys[0], keys[1])
	}
	if !keys[1].NeverUsed() {
		t.Error("second key should be never used")
	}

	cached := fx.keys.Cached(context.Background())
	if len(cached) != 2 || cached[0].Key != keys[0].Key || cached[1].Key != keys[1].Key {
		t.Errorf("Cached() = %v", cached)
	}
}

func TestAPIKeyService_ListReplacesCache(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	_ = fx.cache.Create(ctx, &domain.APIKey{Key: "mgk_stale", Owner: "alice", IsActive: true})
	fx.server.addKey("mgk_fresh_key_ccccccccccccccccccccccccc", true, 0)

	if _, err := fx.keys.List(ctx); err != nil {
		t.Fatalf("List() error = %v", err)
	}
	cached := fx.keys.Cached(ctx)
	if len(cached) != 1 || cached[0].Key != "mgk_fresh_key_ccccccccccccccccccccccccc" {
		t.Errorf("Cached() = %v", cached)
	}
}

func TestAPIKeyService_Create(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	key, err := fx.keys.Create(ctx, CreateKeyRequest{})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !strings.HasPrefix(key.Key, domain.APIKeyPrefix) || !key.IsActive {
		t.Errorf("created key = %+v", key)
	}
	if cached := fx.keys.Cached(ctx); len(cached) != 1 || cached[0].Key != key.Key {
		t.Errorf("Cached() = %v", cached)
	}

	custom := strings.Repeat("c", domain.MinAPIKeyLength)
	if _, err := fx.keys.Create(ctx, CreateKeyRequest{Key: custom}); err != nil {
		t.Fatalf("Create(custom) error = %v", err)
	}
	if len(fx.keys.Cached(ctx)) != 2 {
		t.Errorf("custom key not appended")
	}
}

func TestAPIKeyService_CreateRejected(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if _, err := fx.keys.Create(ctx, CreateKeyRequest{Key: "short"}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("short key error = %v, want ErrValidation", err)
	}

	dup := strings.Repeat("d", domain.MinAPIKeyLength)
	fx.server.addKey(dup, true, 0)
	_, err := fx.keys.Create(ctx, CreateKeyRequest{Key: dup})
	if !errors.Is(err, domain.ErrValidation) || domain.DetailOf(err) != "API key already exists" {
		t.Errorf("duplicate error = %v", err)
	}
	if len(fx.keys.Cached(ctx)) != 0 {
		t.Error("rejected create changed the cache")
	}
}

func TestAPIKeyService_CreateNetworkFailureLeavesNoPhantomKey(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.server.addKey("mgk_existing_key_dddddddddddddddddddddd", true, 0)
	if _, err := fx.keys.List(ctx); err != nil {
		t.Fatalf("List() error = %v", err)
	}

	fx.srv.Close()

	if _, err := fx.keys.Create(ctx, CreateKeyRequest{}); !errors.Is(err, domain.ErrNetwork) {
		t.Fatalf("Create() error = %v, want ErrNetwork", err)
	}
	cached := fx.keys.Cached(ctx)
	if len(cached) != 1 || cached[0].Key != "mgk_existing_key_dddddddddddddddddddddd" {
		t.Errorf("Cached() = %v", cached)
	}
}

func TestAPIKeyService_CreateServerErrorLeavesCacheUnchanged(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.server.mu.Lock()
	fx.server.failWith["POST /api-keys"] = http.StatusInternalServerError
	fx.server.mu.Unlock()

	if _, err := fx.keys.Create(ctx, CreateKeyRequest{}); !errors.Is(err, domain.ErrRequestFailed) {
		t.Fatalf("Create() error = %v, want ErrRequestFailed", err)
	}
	if len(fx.keys.Cached(ctx)) != 0 {
		t.Error("failed create changed the cache")
	}
}

func TestAPIKeyService_ToggleRoundTrip(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	const key = "mgk_toggle_key_eeeeeeeeeeeeeeeeeeeeeeee"
	fx.server.addKey(key, true, 0)
	if _, err := fx.keys.List(ctx); err != nil {
		t.Fatalf("List() error = %v", err)
	}

	if err := fx.keys.Toggle(ctx, key); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if cached := fx.keys.Cached(ctx); cached[0].IsActive {
		t.Error("key still active after one toggle")
	}
	if err := fx.keys.Toggle(ctx, key); err != nil {
		t.Fatalf("second Toggle() error = %v", err)
	}
	if cached := fx.keys.Cached(ctx); !cached[0].IsActive {
		t.Error("key inactive after two toggles")
	}

	fx.server.mu.Lock()
	serverActive := fx.server.find(key).IsActive
	fx.server.mu.Unlock()
	if !serverActive {
		t.Error("server state inactive after two toggles")
	}
}

func TestAPIKeyService_ToggleFailureKeepsOptimisticState(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	const key = "mgk_toggle_fail_ffffffffffffffffffffffff"
	fx.server.addKey(key, true, 0)
	if _, err := fx.keys.List(ctx); err != nil {
		t.Fatalf("List() error = %v", err)
	}

	fx.server.mu.Lock()
	fx.server.failWith["POST /api-keys/"+key+"/toggle"] = http.StatusInternalServerError
	fx.server.mu.Unlock()

	if err := fx.keys.Toggle(ctx, key); !errors.Is(err, domain.ErrRequestFailed) {
		t.Fatalf("Toggle() error = %v", err)
	}
	if cached := fx.keys.Cached(ctx); cached[0].IsActive {
		t.Error("local flip was rolled back")
	}

	fx.server.mu.Lock()
	delete(fx.server.failWith, "POST /api-keys/"+key+"/toggle")
	fx.server.mu.Unlock()

	keys, err := fx.keys.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if !keys[0].IsActive || !fx.keys.Cached(ctx)[0].IsActive {
		t.Error("List did not reconcile with server state")
	}
}

func TestAPIKeyService_Revoke(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	const key = "mgk_revoke_key_gggggggggggggggggggggggg"
	fx.server.addKey(key, true, 0)
	if _, err := fx.keys.List(ctx); err != nil {
		t.Fatalf("List() error = %v", err)
	}

	if err := fx.keys.Revoke(ctx, key); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if len(fx.keys.Cached(ctx)) != 0 {
		t.Error("key still cached after revoke")
	}

	err := fx.keys.Revoke(ctx, key)
	if !errors.Is(err, domain.ErrNotFound) || domain.DetailOf(err) != "API key not found" {
		t.Errorf("second Revoke() error = %v", err)
	}
}

func TestAPIKeyService_RevokeFailureKeepsOptimisticState(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	const key = "mgk_revoke_fail_hhhhhhhhhhhhhhhhhhhhhhhh"
	fx.server.addKey(key, true, 0)
	if _, err := fx.keys.List(ctx); err != nil {
		t.Fatalf("List() error = %v", err)
	}

	fx.server.mu.Lock()
	fx.server.failWith["DELETE /api-keys/"+key] = http.StatusInternalServerError
	fx.server.mu.Unlock()

	if err := fx.keys.Revoke(ctx, key); !errors.Is(err, domain.ErrRequestFailed) {
		t.Fatalf("Revoke() error = %v", err)
	}
	if cached := fx.keys.Cached(ctx); len(cached) != 0 {
		t.Errorf("revoked key restored locally: %v", cached)
	}

	fx.server.mu.Lock()
	delete(fx.server.failWith, "DELETE /api-keys/"+key)
	fx.server.mu.Unlock()

	keys, err := fx.keys.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(keys) != 1 || len(fx.keys.Cached(ctx)) != 1 {
		t.Errorf("List did not reconcile: server %d keys, cache %d", len(keys), len(fx.keys.Cached(ctx)))
	}
}

func TestAPIKeyService_UnauthorizedLogsOut(t *testing.T) {
	fx := newFixture(t)
	fx.server.mu.Lock()
	fx.server.revoked = true
	fx.server.mu.Unlock()

	_, err := fx.keys.List(context.Background())
	if !errors.Is(err, domain.ErrSessionExpired) {
		t.Fatalf("List() error = %v, want ErrSessionExpired", err)
	}
	if s := fx.session.Current(); s.Status != domain.StatusUnauthenticated {
		t.Errorf("status = %v, want unauthenticated", s.Status)
	}
	if _, err := fx.keys.List(context.Background()); !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Errorf("follow-up error = %v, want ErrNotAuthenticated", err)
	}
}

func TestAPIKeyService_StaleListNotCached(t *testing.T) {
	fx := newFixture(t)
	fx.server.addKey("mgk_late_key_hhhhhhhhhhhhhhhhhhhhhhhhhh", true, 0)
	fx.server.listEnter = make(chan struct{})
	fx.server.listGate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := fx.keys.List(context.Background())
		done <- err
	}()

	<-fx.server.listEnter
	fx.session.Logout()
	close(fx.server.listGate)

	if err := <-done; err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if keys, _ := fx.cache.List(context.Background(), "alice"); len(keys) != 0 {
		t.Errorf("stale result written to cache: %v", keys)
	}
}

func TestUsageStatsService_FetchStats(t *testing.T) {
	fx := newFixture(t)
	fx.server.addKey("mgk_stats_one_iiiiiiiiiiiiiiiiiiiiiiiiii", true, 4)
	fx.server.addKey("mgk_stats_two_jjjjjjjjjjjjjjjjjjjjjjjjjj", false, 6)

	stats, err := NewUsageStatsService(fx.session).FetchStats(context.Background())
	if err != nil {
		t.Fatalf("FetchStats() error = %v", err)
	}
	if stats.TotalKeys != 2 || stats.TotalUsage != 10 {
		t.Errorf("stats = %+v", stats)
	}
}
