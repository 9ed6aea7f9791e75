package httpserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/yndnr/metalgate/internal/core/service"
	"github.com/yndnr/metalgate/internal/server/httpserver/handler"
	"github.com/yndnr/metalgate/internal/telemetry/logger"
	"github.com/yndnr/metalgate/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	Accounts *service.AccountService
	Keys     *service.KeyService
	Quotes   *service.QuoteService

	// Metrics receives request metrics and backs /metrics.
	Metrics *metric.Registry

	// Logger for request logging.
	Logger logger.Logger

	// Ready reports storage reachability for /ready.
	Ready func(context.Context) error

	// CORSOrigins is the list of allowed CORS origins. Empty disables CORS.
	CORSOrigins []string

	// MetricsAllow restricts /metrics to these IPs or CIDRs.
	MetricsAllow []string
}

// Public and bearer-protected API routes.
var (
	publicRoutes = []string{
		"GET /health",
		"GET /ready",
		"POST /register",
		"POST /login",
		"GET /quotes/{commodity}",
		"GET /gold",
	}
	sessionRoutes = []string{
		"POST /logout",
		"GET /users/me",
		"GET /api-keys",
		"POST /api-keys",
		"GET /api-keys/stats",
		"POST /api-keys/{key}/toggle",
		"POST /api-keys/{key}/log",
		"DELETE /api-keys/{key}",
		"GET /dashboard/prices",
	}
)

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	reg := cfg.Metrics
	if reg == nil {
		reg = metric.Global()
	}

	h := handler.New(handler.Config{
		Accounts: cfg.Accounts,
		Keys:     cfg.Keys,
		Quotes:   cfg.Quotes,
		Metrics:  reg,
		Logger:   log,
		Ready:    cfg.Ready,
	})

	// Order: Recover -> RequestID -> AccessLog -> Metrics -> CORS [-> Auth] -> Handler
	chain := func(pattern string, extra ...Middleware) http.Handler {
		mws := []Middleware{
			Recover(log),
			RequestID(),
			AccessLog(log),
			Metrics(reg, routeLabel(pattern)),
			CORS(cfg.CORSOrigins),
		}
		return Chain(h, append(mws, extra...)...)
	}

	mux := http.NewServeMux()
	for _, pattern := range publicRoutes {
		mux.Handle(pattern, chain(pattern))
	}
	for _, pattern := range sessionRoutes {
		mux.Handle(pattern, chain(pattern, Auth(cfg.Accounts)))
	}

	mux.Handle("GET /metrics", Chain(reg.Handler(), Recover(log), NetworkACL(cfg.MetricsAllow, log)))

	// Preflight for any path.
	mux.Handle("OPTIONS /", Chain(http.NotFoundHandler(), Recover(log), CORS(cfg.CORSOrigins)))

	return mux
}

// routeLabel drops the method from a mux pattern.
func routeLabel(pattern string) string {
	if _, path, ok := strings.Cut(pattern, " "); ok {
		return path
	}
	return pattern
}
