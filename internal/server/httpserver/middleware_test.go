package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/metalgate/internal/core/domain"
	"github.com/yndnr/metalgate/internal/core/service"
	"github.com/yndnr/metalgate/internal/server/httpserver/handler"
	"github.com/yndnr/metalgate/internal/storage/memory"
	"github.com/yndnr/metalgate/internal/telemetry/logger"
	"github.com/yndnr/metalgate/internal/telemetry/metric"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func detailOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return body.Detail
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	Chain(okHandler(), mark("a"), mark("b"), mark("c")).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got := strings.Join(order, ","); got != "a,b,c" {
		t.Errorf("order = %s, want a,b,c", got)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFromContext(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		reuse  bool
	}{
		{"generated", "", false},
		{"propagated", "req-from-proxy", true},
		{"too long", strings.Repeat("x", maxRequestIDLength+1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("X-Request-ID", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			got := rec.Header().Get("X-Request-ID")
			if got != seen {
				t.Errorf("header %q != context %q", got, seen)
			}
			if tt.reuse && got != tt.header {
				t.Errorf("request ID = %q, want %q", got, tt.header)
			}
			if !tt.reuse && len(got) != 26 {
				t.Errorf("generated request ID %q is not a ULID", got)
			}
		})
	}
}

func TestAuth(t *testing.T) {
	store := memory.New()
	accounts := service.NewAccountService(store, store, nil)
	ctx := context.Background()
	creds := domain.Credentials{Username: "alice", Password: "correct-horse"}
	if _, err := accounts.Register(ctx, creds); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	login, err := accounts.Login(ctx, creds)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	var got handler.Session
	h := Auth(accounts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = handler.SessionFromContext(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		status int
		detail string
	}{
		{"missing", "", http.StatusUnauthorized, "Not authenticated"},
		{"wrong scheme", "Basic YWxpY2U6cHc=", http.StatusUnauthorized, "Not authenticated"},
		{"empty token", "Bearer ", http.StatusUnauthorized, "Not authenticated"},
		{"unknown token", "Bearer mgt_unknown", http.StatusUnauthorized, "Could not validate credentials"},
		{"valid", "Bearer " + login.AccessToken, http.StatusOK, ""},
		{"lowercase scheme", "bearer " + login.AccessToken, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = handler.Session{}
			req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.status == http.StatusOK {
				if got.Subject.Username != "alice" || got.Token != login.AccessToken {
					t.Errorf("session = %+v", got)
				}
				return
			}
			if d := detailOf(t, rec); d != tt.detail {
				t.Errorf("detail = %q, want %q", d, tt.detail)
			}
			if rec.Header().Get("WWW-Authenticate") != "Bearer" {
				t.Error("WWW-Authenticate header not set")
			}
		})
	}
}

func TestMetrics(t *testing.T) {
	reg := metric.NewRegistry()
	h := Metrics(reg, "/api-keys/{key}")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	}))

	for range 3 {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/api-keys/abc", nil))
	}

	if got := testutil.ToFloat64(reg.RequestsTotal.WithLabelValues("DELETE", "/api-keys/{key}", "404")); got != 3 {
		t.Errorf("requests_total = %v, want 3", got)
	}
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	log, err := logger.New(logger.Config{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("logger.New() error = %v", err)
	}

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.L(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusTeapot)
	}), RequestID(), AccessLog(log))

	req := httptest.NewRequest(http.MethodGet, "/gold", nil)
	req.Header.Set("X-Request-ID", "req-123")
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, want := range []string{`"msg":"inside handler"`, `"msg":"request completed with client error"`, `"status":418`, `"request_id":"req-123"`, `"path":"/gold"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s:\n%s", want, out)
		}
	}
}

func TestRecover(t *testing.T) {
	h := Recover(logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if d := detailOf(t, rec); d != "Internal server error" {
		t.Errorf("detail = %q", d)
	}
}

func TestNetworkACL(t *testing.T) {
	tests := []struct {
		name   string
		allow  []string
		remote string
		xff    string
		want   int
	}{
		{"empty list allows all", nil, "203.0.113.9:1234", "", http.StatusOK},
		{"single ip", []string{"127.0.0.1"}, "127.0.0.1:5555", "", http.StatusOK},
		{"cidr", []string{"10.0.0.0/8"}, "10.1.2.3:80", "", http.StatusOK},
		{"ipv6", []string{"::1"}, "[::1]:9090", "", http.StatusOK},
		{"forwarded client", []string{"192.168.0.0/16"}, "127.0.0.1:80", "192.168.4.4, 10.0.0.1", http.StatusOK},
		{"outside", []string{"10.0.0.0/8"}, "203.0.113.9:1234", "", http.StatusForbidden},
		{"invalid entries ignored", []string{"not-an-ip", "10.0.0.0/99"}, "10.1.2.3:80", "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NetworkACL(tt.allow, logger.Discard())(okHandler())
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		origins    []string
		origin     string
		method     string
		wantAllow  string
		wantStatus int
	}{
		{"allowed origin", []string{"https://app.example.com"}, "https://app.example.com", http.MethodGet, "https://app.example.com", http.StatusOK},
		{"wildcard", []string{"*"}, "https://other.example.com", http.MethodGet, "https://other.example.com", http.StatusOK},
		{"disallowed origin", []string{"https://app.example.com"}, "https://evil.example.com", http.MethodGet, "", http.StatusOK},
		{"disabled", nil, "https://app.example.com", http.MethodGet, "", http.StatusOK},
		{"preflight", []string{"*"}, "https://app.example.com", http.MethodOptions, "https://app.example.com", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := CORS(tt.origins)(okHandler())
			req := httptest.NewRequest(tt.method, "/api-keys", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
		})
	}
}

func TestResponseWriter_KeepsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}
	_, _ = w.Write([]byte("ok"))
	w.WriteHeader(http.StatusInternalServerError)
	if w.statusCode != http.StatusOK {
		t.Errorf("statusCode = %d, want 200", w.statusCode)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		header http.Header
		want   string
	}{
		{"remote addr", "192.0.2.1:1234", nil, "192.0.2.1"},
		{"ipv6 remote", "[2001:db8::1]:443", nil, "2001:db8::1"},
		{"x-forwarded-for", "127.0.0.1:1", http.Header{"X-Forwarded-For": {" 198.51.100.7 , 10.0.0.1"}}, "198.51.100.7"},
		{"x-real-ip", "127.0.0.1:1", http.Header{"X-Real-Ip": {"198.51.100.8"}}, "198.51.100.8"},
		{"no port", "192.0.2.9", nil, "192.0.2.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.header {
				req.Header[k] = v
			}
			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRouteLabel(t *testing.T) {
	if got := routeLabel("POST /api-keys/{key}/toggle"); got != "/api-keys/{key}/toggle" {
		t.Errorf("routeLabel() = %q", got)
	}
	if got := routeLabel("/plain"); got != "/plain" {
		t.Errorf("routeLabel() = %q", got)
	}
}
