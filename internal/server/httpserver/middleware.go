package httpserver

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/metalgate/internal/core/domain"
	"github.com/yndnr/metalgate/internal/core/service"
	"github.com/yndnr/metalgate/internal/server/httpserver/handler"
	"github.com/yndnr/metalgate/internal/telemetry/logger"
	"github.com/yndnr/metalgate/internal/telemetry/metric"
)

// maxRequestIDLength bounds caller-supplied request IDs.
const maxRequestIDLength = 128

// Middleware wraps an http.Handler with additional functionality.
type Middleware func(http.Handler) http.Handler

// Chain chains multiple middlewares together. The first middleware is the
// outermost.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RequestID tags each request with an ID, reusing a sane X-Request-ID
// header and generating a ULID otherwise.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" || len(requestID) > maxRequestIDLength {
				requestID = strings.ToLower(ulid.Make().String())
			}
			w.Header().Set("X-Request-ID", requestID)

			ctx := logger.WithRequestID(r.Context(), requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Auth resolves the bearer token of the request to a session. Requests
// without a valid token are rejected with 401.
func Auth(accounts *service.AccountService) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, ok := bearerToken(r)
			if !ok {
				writeAuthError(w, domain.ErrNotAuthenticated.Code, "Not authenticated")
				return
			}

			subj, err := accounts.Authenticate(r.Context(), tok)
			if err != nil {
				if errors.Is(err, domain.ErrSessionExpired) {
					writeAuthError(w, domain.ErrSessionExpired.Code, "Could not validate credentials")
					return
				}
				logger.L(r.Context()).Error("session lookup failed", "error", err)
				writeAuthError(w, domain.ErrInternal.Code, "Internal server error")
				return
			}

			ctx := handler.WithSession(r.Context(), handler.Session{Subject: subj, Token: tok})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	scheme, tok, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

// Metrics records request count and latency under route.
func Metrics(reg *metric.Registry, route string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			reg.ObserveRequest(r.Method, route, wrapped.statusCode, time.Since(start))
		})
	}
}

// AccessLog attaches log to the request context and logs each completed
// request.
func AccessLog(log logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			ctx := logger.WithLogger(r.Context(), log)
			r = r.WithContext(ctx)
			next.ServeHTTP(wrapped, r)

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
				"client_ip", getClientIP(r),
			}

			l := logger.L(ctx)
			switch {
			case wrapped.statusCode >= 500:
				l.Error("request completed with error", attrs...)
			case wrapped.statusCode >= 400:
				l.Warn("request completed with client error", attrs...)
			default:
				l.Info("request completed", attrs...)
			}
		})
	}
}

// Recover recovers from panics and returns 500 error.
func Recover(log logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					log.Error("panic recovered",
						"request_id", logger.RequestIDFromContext(r.Context()),
						"error", err,
						"path", r.URL.Path,
					)
					writeErrorBody(w, http.StatusInternalServerError, domain.ErrInternal.Code, "Internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// NetworkACL rejects clients outside allowList (IPs or CIDRs) with 403.
// An empty list allows everyone.
func NetworkACL(allowList []string, log logger.Logger) Middleware {
	var networks []*net.IPNet
	var singleIPs []net.IP

	for _, entry := range allowList {
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				log.Warn("invalid CIDR in allowlist", "entry", entry, "error", err)
				continue
			}
			networks = append(networks, ipNet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			log.Warn("invalid IP in allowlist", "entry", entry)
			continue
		}
		singleIPs = append(singleIPs, ip)
	}

	return func(next http.Handler) http.Handler {
		if len(allowList) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := net.ParseIP(getClientIP(r))
			if ip != nil {
				for _, allowed := range singleIPs {
					if allowed.Equal(ip) {
						next.ServeHTTP(w, r)
						return
					}
				}
				for _, network := range networks {
					if network.Contains(ip) {
						next.ServeHTTP(w, r)
						return
					}
				}
			}

			log.Warn("access denied by network ACL", "client_ip", getClientIP(r), "path", r.URL.Path)
			writeErrorBody(w, http.StatusForbidden, "MG-NET-4030", "Access denied")
		})
	}
}

// CORS adds Cross-Origin Resource Sharing headers and answers preflight
// requests.
func CORS(allowedOrigins []string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}

			if allowed && origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Api-Key, X-API-Key, X-Request-ID")
				w.Header().Set("Access-Control-Max-Age", "86400")
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.statusCode = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// writeAuthError writes a 401 for session codes and a 500 otherwise.
func writeAuthError(w http.ResponseWriter, code, detail string) {
	status := http.StatusUnauthorized
	if strings.HasPrefix(code, "MG-SYS-") {
		status = http.StatusInternalServerError
	} else {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeErrorBody(w, status, code, detail)
}

// writeErrorBody writes the {"detail": ...} body used by every error.
func writeErrorBody(w http.ResponseWriter, status int, code, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"detail": detail,
		"code":   code,
	})
}

// getClientIP extracts the client IP from the request.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
