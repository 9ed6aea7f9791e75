package httpserver

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/metalgate/internal/core/domain"
	"github.com/yndnr/metalgate/internal/core/service"
	"github.com/yndnr/metalgate/internal/storage/memory"
	"github.com/yndnr/metalgate/internal/telemetry/logger"
	"github.com/yndnr/metalgate/internal/telemetry/metric"
)

func newTestRouter(t *testing.T, metricsAllow []string) *httptest.Server {
	t.Helper()
	store := memory.New()
	router := NewRouter(&RouterConfig{
		Accounts: service.NewAccountService(store, store, nil),
		Keys:     service.NewKeyService(store, nil),
		Quotes: service.NewQuoteService(
			[]service.Source{service.NewStaticSource(map[domain.Commodity]float64{domain.Gold: 2401.25})},
			&service.QuoteServiceConfig{CacheTTL: time.Minute, FetchTimeout: time.Second},
		),
		Metrics:      metric.NewRegistry(),
		Logger:       logger.Discard(),
		CORSOrigins:  []string{"https://dash.example.com"},
		MetricsAllow: metricsAllow,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func send(t *testing.T, method, target string, header http.Header, body io.Reader) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, target, body)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func TestRouter_EndToEnd(t *testing.T) {
	srv := newTestRouter(t, nil)

	resp, body := send(t, http.MethodPost, srv.URL+"/register",
		http.Header{"Content-Type": {"application/json"}},
		strings.NewReader(`{"username":"alice","password":"correct-horse"}`))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d, body = %s", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not set")
	}

	form := url.Values{"username": {"alice"}, "password": {"correct-horse"}}
	resp, body = send(t, http.MethodPost, srv.URL+"/login",
		http.Header{"Content-Type": {"application/x-www-form-urlencoded"}},
		strings.NewReader(form.Encode()))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", resp.StatusCode, body)
	}
	var tok struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	bearer := http.Header{"Authorization": {"Bearer " + tok.AccessToken}}

	resp, body = send(t, http.MethodGet, srv.URL+"/users/me", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized || !strings.Contains(string(body), "Not authenticated") {
		t.Errorf("anonymous me = %d %s", resp.StatusCode, body)
	}
	resp, body = send(t, http.MethodGet, srv.URL+"/users/me",
		http.Header{"Authorization": {"Bearer mgt_forged"}}, nil)
	if resp.StatusCode != http.StatusUnauthorized || !strings.Contains(string(body), "Could not validate credentials") {
		t.Errorf("forged me = %d %s", resp.StatusCode, body)
	}

	resp, body = send(t, http.MethodPost, srv.URL+"/api-keys", bearer, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create key status = %d, body = %s", resp.StatusCode, body)
	}
	var key domain.APIKey
	if err := json.Unmarshal(body, &key); err != nil {
		t.Fatalf("decode key: %v", err)
	}

	resp, body = send(t, http.MethodGet, srv.URL+"/gold", http.Header{"Api-Key": {key.Key}}, nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"gold_price":2401.25`) {
		t.Fatalf("gold = %d %s", resp.StatusCode, body)
	}

	resp, body = send(t, http.MethodGet, srv.URL+"/api-keys/stats", bearer, nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"total_usage":1`) {
		t.Errorf("stats = %d %s", resp.StatusCode, body)
	}

	resp, body = send(t, http.MethodGet, srv.URL+"/metrics", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
	for _, want := range []string{
		`metalgate_http_requests_total{code="200",method="GET",route="/gold"} 1`,
		`metalgate_http_requests_total{code="401",method="GET",route="/users/me"} 2`,
		`metalgate_apikeys_uses_total{result="ok"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %s", want)
		}
	}
}

func TestRouter_MetricsAllowList(t *testing.T) {
	srv := newTestRouter(t, []string{"10.0.0.0/8"})

	resp, _ := send(t, http.MethodGet, srv.URL+"/metrics", nil, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("metrics from loopback = %d, want 403", resp.StatusCode)
	}
	resp, _ = send(t, http.MethodGet, srv.URL+"/health", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health = %d, want 200", resp.StatusCode)
	}
}

func TestRouter_Preflight(t *testing.T) {
	srv := newTestRouter(t, nil)

	resp, _ := send(t, http.MethodOptions, srv.URL+"/api-keys/some-key/toggle", http.Header{
		"Origin":                        {"https://dash.example.com"},
		"Access-Control-Request-Method": {"POST"},
	}, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://dash.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	srv := newTestRouter(t, nil)
	resp, _ := send(t, http.MethodPut, srv.URL+"/api-keys", nil, nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("PUT /api-keys = %d, want 405", resp.StatusCode)
	}
}
