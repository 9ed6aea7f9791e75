package connection

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeAPI is a minimal in-process stand-in for the metalgate server.
type fakeAPI struct {
	mu       sync.Mutex
	users    map[string]string
	tokens   map[string]string
	issued   int
	meStatus int

	// meEntered/meRelease, when set, block GET /users/me until released.
	meEntered chan struct{}
	meRelease chan struct{}
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	f := &fakeAPI{
		users:  map[string]string{"alice": "correct-horse"},
		tokens: map[string]string{},
	}
	srv := httptest.NewServer(f.routes())
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAPI) revokeAll() {
	f.mu.Lock()
	f.tokens = map[string]string{}
	f.mu.Unlock()
}

func (f *fakeAPI) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Username, Password string }
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.users[body.Username]; ok {
			writeDetail(w, http.StatusBadRequest, "Username already registered")
			return
		}
		f.users[body.Username] = body.Password
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"message":"User created successfully"}`))
	})
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.mu.Lock()
		defer f.mu.Unlock()
		if pw, ok := f.users[r.PostForm.Get("username")]; !ok || pw != r.PostForm.Get("password") {
			writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
			return
		}
		f.issued++
		tok := fmt.Sprintf("mgt_token%d", f.issued)
		f.tokens[tok] = r.PostForm.Get("username")
		json.NewEncoder(w).Encode(map[string]string{"access_token": tok, "token_type": "bearer"})
	})
	mux.HandleFunc("POST /logout", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		delete(f.tokens, bearer(r))
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /users/me", func(w http.ResponseWriter, r *http.Request) {
		if f.meEntered != nil {
			f.meEntered <- struct{}{}
			<-f.meRelease
		}
		f.mu.Lock()
		status := f.meStatus
		user, ok := f.tokens[bearer(r)]
		f.mu.Unlock()
		if status != 0 {
			writeDetail(w, status, "boom")
			return
		}
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"username": user})
	})
	mux.HandleFunc("GET /api-keys", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		_, ok := f.tokens[bearer(r)]
		f.mu.Unlock()
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		w.Write([]byte(`[]`))
	})
	return mux
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
