package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/metalgate/internal/cli/connection"
	"github.com/yndnr/metalgate/internal/core/domain"
	"github.com/yndnr/metalgate/internal/storage/memory"
	"github.com/yndnr/metalgate/internal/telemetry/logger"
)

const testToken = "mgt_servicetest"

// fakeServer serves the authenticated key, stats and price endpoints for
// a single user "alice".
type fakeServer struct {
	mu        sync.Mutex
	keys      []*domain.APIKey
	revoked   bool
	failWith  map[string]int
	prices    string
	pricesFor string
	listGate  chan struct{}
	listEnter chan struct{}
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	f := &fakeServer{failWith: map[string]int{}}
	srv := httptest.NewServer(f.routes())
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeServer) addKey(key string, active bool, usage int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, &domain.APIKey{
		Key:        key,
		IsActive:   active,
		CreatedAt:  time.Unix(1700000000+int64(len(f.keys)), 0).UTC(),
		UsageCount: usage,
	})
}

func (f *fakeServer) find(key string) *domain.APIKey {
	for _, k := range f.keys {
		if k.Key == key {
			return k
		}
	}
	return nil
}

func (f *fakeServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"access_token": testToken, "token_type": "bearer"})
	})
	mux.HandleFunc("GET /users/me", f.authed(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"username": "alice"})
	}))
	mux.HandleFunc("GET /api-keys", f.authed(func(w http.ResponseWriter, r *http.Request) {
		if f.listEnter != nil {
			f.listEnter <- struct{}{}
			<-f.listGate
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode(f.keys)
	}))
	mux.HandleFunc("POST /api-keys", f.authed(func(w http.ResponseWriter, r *http.Request) {
		var req CreateKeyRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Key == "" {
			req.Key = "mgk_generated_key_0123456789abcdefghij"
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.find(req.Key) != nil {
			writeDetail(w, http.StatusBadRequest, "API key already exists")
			return
		}
		k := &domain.APIKey{Key: req.Key, IsActive: true, CreatedAt: time.Now().UTC()}
		f.keys = append(f.keys, k)
		json.NewEncoder(w).Encode(k)
	}))
	mux.HandleFunc("POST /api-keys/{key}/toggle", f.authed(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		k := f.find(r.PathValue("key"))
		if k == nil {
			writeDetail(w, http.StatusNotFound, "API key not found")
			return
		}
		k.IsActive = !k.IsActive
		json.NewEncoder(w).Encode(k)
	}))
	mux.HandleFunc("DELETE /api-keys/{key}", f.authed(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, k := range f.keys {
			if k.Key == r.PathValue("key") {
				f.keys = append(f.keys[:i], f.keys[i+1:]...)
				w.Write([]byte(`{"message":"API key deleted"}`))
				return
			}
		}
		writeDetail(w, http.StatusNotFound, "API key not found")
	}))
	mux.HandleFunc("GET /api-keys/stats", f.authed(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode(domain.SummarizeUsage(f.keys))
	}))
	mux.HandleFunc("GET /dashboard/prices", f.authed(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.pricesFor = r.URL.Query().Get("commodities")
		w.Write([]byte(f.prices))
	}))
	return mux
}

// authed rejects revoked sessions and injects configured failures.
func (f *fakeServer) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		revoked := f.revoked
		status := f.failWith[r.Method+" "+r.URL.Path]
		f.mu.Unlock()
		if revoked || strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ") != testToken {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		if status != 0 {
			writeDetail(w, status, "injected failure")
			return
		}
		next(w, r)
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

type fixture struct {
	server  *fakeServer
	srv     *httptest.Server
	session *connection.SessionManager
	cache   *memory.KeyStore
	keys    *APIKeyService
}

// newFixture returns services bound to a logged-in session.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f, srv := newFakeServer(t)
	hc := connection.NewHTTPClient(srv.URL,
		connection.WithLogger(logger.Discard()), connection.WithTimeout(5*time.Second))
	sm := connection.NewSessionManager(hc, connection.WithSessionLogger(logger.Discard()))
	if _, err := sm.Login(context.Background(), domain.Credentials{Username: "alice", Password: "correct-horse"}); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	cache := memory.NewKeyStore()
	return &fixture{
		server:  f,
		srv:     srv,
		session: sm,
		cache:   cache,
		keys:    NewAPIKeyService(sm, cache, logger.Discard()),
	}
}
