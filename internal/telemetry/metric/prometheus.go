package metric

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yndnr/metalgate/internal/core/domain"
)

const namespace = "metalgate"

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Account metrics
	UsersRegistered prometheus.Counter
	LoginsTotal     *prometheus.CounterVec

	// API key metrics
	KeysCreated prometheus.Counter
	KeysDeleted prometheus.Counter
	KeyUses     *prometheus.CounterVec

	// Upstream quote metrics
	UpstreamFetches  *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
}

// NewRegistry creates a registry with all metrics registered.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		UsersRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "accounts",
			Name:      "registered_total",
			Help:      "Accounts registered.",
		}),
		LoginsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "accounts",
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		KeysCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "apikeys",
			Name:      "created_total",
			Help:      "API keys created.",
		}),
		KeysDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "apikeys",
			Name:      "deleted_total",
			Help:      "API keys deleted.",
		}),
		KeyUses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "apikeys",
			Name:      "uses_total",
			Help:      "API key presentations on quote endpoints by result.",
		}, []string{"result"}),
		UpstreamFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "fetches_total",
			Help:      "Upstream quote fetches by source, commodity and result.",
		}, []string{"source", "commodity", "result"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "fetch_duration_seconds",
			Help:      "Upstream quote fetch latency by source.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"source"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.RequestsTotal,
		r.RequestDuration,
		r.UsersRegistered,
		r.LoginsTotal,
		r.KeysCreated,
		r.KeysDeleted,
		r.KeyUses,
		r.UpstreamFetches,
		r.UpstreamDuration,
	)
	return r
}

var (
	globalOnce sync.Once
	global     *Registry
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() { global = NewRegistry() })
	return global
}

// Registerer exposes the underlying registry for components that register
// their own collectors.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.registry
}

// Gatherer exposes the underlying registry for reading.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler returns the /metrics handler.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Handler returns the /metrics handler of the global registry.
func Handler() http.Handler {
	return Global().Handler()
}

// ObserveRequest records one finished HTTP request.
func (r *Registry) ObserveRequest(method, route string, code int, elapsed time.Duration) {
	r.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	r.RequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveFetch records one upstream quote fetch.
func (r *Registry) ObserveFetch(source string, c domain.Commodity, err error, elapsed time.Duration) {
	r.UpstreamFetches.WithLabelValues(source, string(c), result(err)).Inc()
	r.UpstreamDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
