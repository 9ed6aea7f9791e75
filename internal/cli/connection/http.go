package connection

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yndnr/metalgate/internal/core/domain"
	"github.com/yndnr/metalgate/internal/infra/buildinfo"
	"github.com/yndnr/metalgate/internal/telemetry/logger"
)

// DefaultTimeout bounds a single HTTP exchange.
const DefaultTimeout = 30 * time.Second

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// HTTPClient performs raw HTTP exchanges with the API server.
type HTTPClient struct {
	baseURL   string
	client    *http.Client
	userAgent string
	logger    logger.Logger
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithTLSConfig sets the TLS configuration for https servers.
func WithTLSConfig(cfg *tls.Config) HTTPOption {
	return func(c *HTTPClient) {
		if cfg == nil {
			return
		}
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = cfg
		c.client.Transport = t
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l logger.Logger) HTTPOption {
	return func(c *HTTPClient) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewHTTPClient creates a client for server. A missing scheme defaults to
// http://.
func NewHTTPClient(server string, opts ...HTTPOption) *HTTPClient {
	baseURL := strings.TrimRight(strings.TrimSpace(server), "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}

	c := &HTTPClient{
		baseURL:   baseURL,
		client:    &http.Client{Timeout: DefaultTimeout},
		userAgent: buildinfo.UserAgent("metalgate-cli"),
		logger:    logger.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the normalized server URL.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// Request describes one API call. At most one of JSON and Form is set.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	JSON   any
	Form   url.Values
	Token  string
}

// Do sends r. Transport failures are returned unwrapped; callers map them
// to ErrNetwork.
func (c *HTTPClient) Do(ctx context.Context, r Request) (*http.Response, error) {
	target := c.baseURL + r.Path
	if len(r.Query) > 0 {
		target += "?" + r.Query.Encode()
	}

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case r.JSON != nil:
		data, err := json.Marshal(r.JSON)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	case r.Form != nil:
		body = strings.NewReader(r.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "method", r.Method, "path", r.Path, "error", err)
		return nil, err
	}
	c.logger.Debug("request", "method", r.Method, "path", r.Path,
		"status", resp.StatusCode, "elapsed", time.Since(start))
	return resp, nil
}

// ParseResponse decodes a 2xx JSON body into target (nil discards it) and
// maps other statuses to domain errors carrying the server's detail.
func ParseResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return StatusError(resp.StatusCode, ReadDetail(resp.Body))
	}

	if target == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return domain.ErrRequestFailed.WithDetails("malformed response").WithCause(err)
	}
	return nil
}

// StatusError maps a non-2xx status to a domain error.
func StatusError(status int, detail string) error {
	if detail == "" {
		detail = http.StatusText(status)
	}
	switch status {
	case http.StatusUnauthorized:
		return domain.ErrSessionExpired.WithDetails(detail)
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusConflict:
		return domain.ErrValidation.WithDetails(detail)
	case http.StatusNotFound:
		return domain.ErrNotFound.WithDetails(detail)
	default:
		return domain.ErrRequestFailed.WithDetails(fmt.Sprintf("%d: %s", status, detail))
	}
}

// ReadDetail extracts the human-readable message of an error body. It
// understands {"detail": "..."} and the list form
// {"detail": [{"msg": "..."}]}; anything else is returned as trimmed text.
func ReadDetail(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || len(envelope.Detail) == 0 {
		return strings.TrimSpace(string(data))
	}

	var s string
	if err := json.Unmarshal(envelope.Detail, &s); err == nil {
		return s
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}
	return strings.TrimSpace(string(envelope.Detail))
}

// drain discards and closes a response body.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
}
