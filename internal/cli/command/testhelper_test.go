package command

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/metalgate/internal/core/domain"
)

// mockAPI is an in-memory metalgate API for end-to-end command tests.
type mockAPI struct {
	mu     sync.Mutex
	users  map[string]string
	tokens map[string]string
	keys   map[string][]*domain.APIKey
	seq    int
	prices string
}

func newMockAPI(t *testing.T) (*mockAPI, *httptest.Server) {
	t.Helper()
	m := &mockAPI{
		users:  map[string]string{},
		tokens: map[string]string{},
		keys:   map[string][]*domain.APIKey{},
		prices: `{"prices":{"gold":{"price":2350.5,"unit":"per troy ounce"}},"errors":{"silver":"rate limited"}}`,
	}
	srv := httptest.NewServer(m.routes())
	t.Cleanup(srv.Close)
	return m, srv
}

func (m *mockAPI) expireAll() {
	m.mu.Lock()
	m.tokens = map[string]string{}
	m.mu.Unlock()
}

func (m *mockAPI) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", func(w http.ResponseWriter, r *http.Request) {
		var c domain.Credentials
		_ = json.NewDecoder(r.Body).Decode(&c)
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.users[c.Username]; ok {
			detail(w, http.StatusBadRequest, "Username already registered")
			return
		}
		m.users[c.Username] = c.Password
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		m.mu.Lock()
		defer m.mu.Unlock()
		u := r.PostForm.Get("username")
		if pw, ok := m.users[u]; !ok || pw != r.PostForm.Get("password") {
			detail(w, http.StatusUnauthorized, "Incorrect username or password")
			return
		}
		m.seq++
		tok := fmt.Sprintf("mgt_cmdtest%d", m.seq)
		m.tokens[tok] = u
		json.NewEncoder(w).Encode(map[string]string{"access_token": tok, "token_type": "bearer"})
	})
	mux.HandleFunc("POST /logout", m.authed(func(w http.ResponseWriter, r *http.Request, _ string) {
		delete(m.tokens, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		w.WriteHeader(http.StatusNoContent)
	}))
	mux.HandleFunc("GET /users/me", m.authed(func(w http.ResponseWriter, r *http.Request, user string) {
		json.NewEncoder(w).Encode(map[string]string{"username": user})
	}))
	mux.HandleFunc("GET /api-keys", m.authed(func(w http.ResponseWriter, r *http.Request, user string) {
		keys := m.keys[user]
		if keys == nil {
			keys = []*domain.APIKey{}
		}
		json.NewEncoder(w).Encode(keys)
	}))
	mux.HandleFunc("POST /api-keys", m.authed(func(w http.ResponseWriter, r *http.Request, user string) {
		var req struct {
			Key string `json:"key"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Key == "" {
			m.seq++
			req.Key = fmt.Sprintf("mgk_generated_%030d", m.seq)
		}
		k := &domain.APIKey{Key: req.Key, IsActive: true, CreatedAt: time.Now().UTC()}
		m.keys[user] = append(m.keys[user], k)
		json.NewEncoder(w).Encode(k)
	}))
	mux.HandleFunc("POST /api-keys/{key}/toggle", m.authed(func(w http.ResponseWriter, r *http.Request, user string) {
		for _, k := range m.keys[user] {
			if k.Key == r.PathValue("key") {
				k.IsActive = !k.IsActive
				json.NewEncoder(w).Encode(k)
				return
			}
		}
		detail(w, http.StatusNotFound, "API key not found")
	}))
	mux.HandleFunc("DELETE /api-keys/{key}", m.authed(func(w http.ResponseWriter, r *http.Request, user string) {
		keys := m.keys[user]
		for i, k := range keys {
			if k.Key == r.PathValue("key") {
				m.keys[user] = append(keys[:i], keys[i+1:]...)
				w.Write([]byte(`{"message":"API key deleted"}`))
				return
			}
		}
		detail(w, http.StatusNotFound, "API key not found")
	}))
	mux.HandleFunc("GET /api-keys/stats", m.authed(func(w http.ResponseWriter, r *http.Request, user string) {
		json.NewEncoder(w).Encode(domain.SummarizeUsage(m.keys[user]))
	}))
	mux.HandleFunc("GET /dashboard/prices", m.authed(func(w http.ResponseWriter, r *http.Request, _ string) {
		w.Write([]byte(m.prices))
	}))
	return mux
}

// authed resolves the bearer token and runs next with m.mu held.
func (m *mockAPI) authed(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()
		user, ok := m.tokens[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]
		if !ok {
			detail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		next(w, r, user)
	}
}

func detail(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": msg})
}

// cliEnv runs commands against one server with isolated local state.
type cliEnv struct {
	t          *testing.T
	server     string
	configPath string
	stateDir   string
}

func newCLIEnv(t *testing.T, server string) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	state := filepath.Join(dir, "state")
	t.Setenv("METALGATE_STATE_DIR", state)
	return &cliEnv{
		t:          t,
		server:     server,
		configPath: filepath.Join(dir, "cli.yaml"),
		stateDir:   state,
	}
}

type result struct {
	stdout string
	stderr string
	code   int
}

func (e *cliEnv) run(stdin string, args ...string) result {
	e.t.Helper()
	var stdout, stderr bytes.Buffer
	app := App()
	app.Reader = strings.NewReader(stdin)
	app.Writer = &stdout
	app.ErrWriter = &stderr

	full := append([]string{"metalgate-cli", "--server", e.server, "--config", e.configPath}, args...)
	code := Run(app, full, &stderr)
	return result{stdout: stdout.String(), stderr: stderr.String(), code: code}
}

func (e *cliEnv) mustRun(stdin string, args ...string) string {
	e.t.Helper()
	r := e.run(stdin, args...)
	if r.code != 0 {
		e.t.Fatalf("%v exited %d\nstdout: %s\nstderr: %s", args, r.code, r.stdout, r.stderr)
	}
	return r.stdout
}

// loginAlice registers and logs in alice.
func (e *cliEnv) loginAlice() {
	e.t.Helper()
	e.mustRun("", "register", "-u", "alice", "-p", "correct-horse")
	e.mustRun("", "login", "-u", "alice", "-p", "correct-horse")
}
