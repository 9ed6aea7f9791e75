package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/yndnr/metalgate/internal/core/domain"
	"github.com/yndnr/metalgate/internal/core/service"
	"github.com/yndnr/metalgate/internal/telemetry/logger"
	"github.com/yndnr/metalgate/internal/telemetry/metric"
)

// maxBodyBytes bounds JSON and form request bodies.
const maxBodyBytes = 64 << 10

// Config wires the services behind the API.
type Config struct {
	Accounts *service.AccountService
	Keys     *service.KeyService
	Quotes   *service.QuoteService
	Metrics  *metric.Registry
	Logger   logger.Logger

	// Ready reports whether the storage backend is reachable. Nil means
	// always ready.
	Ready func(context.Context) error
}

// Handler routes API requests to the services.
type Handler struct {
	accounts *service.AccountService
	keys     *service.KeyService
	quotes   *service.QuoteService
	metrics  *metric.Registry
	logger   logger.Logger
	ready    func(context.Context) error
	mux      *http.ServeMux
}

// New creates a Handler.
func New(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metric.Global()
	}
	h := &Handler{
		accounts: cfg.Accounts,
		keys:     cfg.Keys,
		quotes:   cfg.Quotes,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		ready:    cfg.Ready,
		mux:      http.NewServeMux(),
	}

	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)

	h.mux.HandleFunc("POST /register", h.handleRegister)
	h.mux.HandleFunc("POST /login", h.handleLogin)
	h.mux.HandleFunc("POST /logout", h.handleLogout)
	h.mux.HandleFunc("GET /users/me", h.handleMe)

	h.mux.HandleFunc("GET /api-keys", h.handleListKeys)
	h.mux.HandleFunc("POST /api-keys", h.handleCreateKey)
	h.mux.HandleFunc("GET /api-keys/stats", h.handleKeyStats)
	h.mux.HandleFunc("POST /api-keys/{key}/toggle", h.handleToggleKey)
	h.mux.HandleFunc("POST /api-keys/{key}/log", h.handleLogUsage)
	h.mux.HandleFunc("DELETE /api-keys/{key}", h.handleDeleteKey)

	h.mux.HandleFunc("GET /dashboard/prices", h.handleDashboardPrices)
	h.mux.HandleFunc("GET /quotes/{commodity}", h.handleQuote)
	h.mux.HandleFunc("GET /gold", h.handleGold)
}

// Session is the authenticated caller of a bearer-protected endpoint.
type Session struct {
	Subject domain.Subject
	Token   string
}

type sessionKey struct{}

// WithSession attaches the authenticated session to ctx.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session attached by WithSession.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}

// requireSession returns the caller's session, writing a 401 when the
// request was not authenticated.
func (h *Handler) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	s, ok := SessionFromContext(r.Context())
	if !ok {
		h.writeError(w, r, http.StatusUnauthorized, domain.ErrNotAuthenticated.Code, "Not authenticated")
		return Session{}, false
	}
	return s, true
}

// errorResponse is the body of every error.
type errorResponse struct {
	Detail string `json:"detail"`
	Code   string `json:"code,omitempty"`
}

// writeJSON writes data as the response body.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	if id := logger.RequestIDFromContext(r.Context()); id != "" {
		w.Header().Set("X-Request-ID", id)
	}
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.L(r.Context()).Error("failed to encode response", "error", err)
	}
}

// writeError writes a {"detail": ...} error body.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	if id := logger.RequestIDFromContext(r.Context()); id != "" {
		w.Header().Set("X-Request-ID", id)
	}
	if status == http.StatusUnauthorized && strings.HasPrefix(code, "MG-AUTH-") {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Detail: detail, Code: code})
}

// handleServiceError converts service errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.GetErrorCode(err)
	if code == "" || strings.HasPrefix(code, "MG-SYS-") {
		logger.L(r.Context()).Error("internal error", "error", err)
		h.writeError(w, r, http.StatusInternalServerError, domain.ErrInternal.Code, "Internal server error")
		return
	}
	h.writeError(w, r, errorCodeToHTTPStatus(code), code, capitalize(domain.DetailOf(err)))
}

// errorCodeToHTTPStatus maps error codes to HTTP status codes.
func errorCodeToHTTPStatus(code string) int {
	switch {
	case strings.HasSuffix(code, "-4040"), strings.HasSuffix(code, "-4041"):
		return http.StatusNotFound
	case strings.HasSuffix(code, "-4090"), strings.HasSuffix(code, "-4091"):
		return http.StatusConflict
	case strings.HasSuffix(code, "-4290"):
		return http.StatusTooManyRequests
	case strings.HasSuffix(code, "-4010"), strings.HasSuffix(code, "-4011"), strings.HasSuffix(code, "-4012"):
		return http.StatusUnauthorized
	case strings.HasSuffix(code, "-4030"), strings.HasSuffix(code, "-4031"):
		return http.StatusForbidden
	case strings.HasSuffix(code, "-4000"), strings.HasPrefix(code, "MG-ARG-"):
		return http.StatusBadRequest
	case strings.HasSuffix(code, "-5020"), strings.HasSuffix(code, "-5030"):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.ErrValidation.WithDetails("invalid request body")
	}
	return nil
}

// capitalize upper-cases the first letter of a detail message.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
