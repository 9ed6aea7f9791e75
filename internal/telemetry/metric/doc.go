// Package metric provides Prometheus metrics for metalgate-server.
//
// A Registry owns its own prometheus.Registry (plus Go runtime and process
// collectors) so tests can create as many as they like. Metrics are
// exposed at /metrics in Prometheus text format.
package metric
