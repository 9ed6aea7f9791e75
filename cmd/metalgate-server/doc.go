// Package main provides the entry point for metalgate-server.
//
// The server is the reference backend for metalgate-cli:
//
//   - Accounts with argon2id passwords and expiring bearer sessions
//   - API key management with usage statistics
//   - Metal quotes from Yahoo Finance or a static table, cached per
//     commodity and gated by API key on /gold and /quotes/{commodity}
//   - Prometheus metrics on /metrics
//
// Usage:
//
//	metalgate-server [flags]
//	metalgate-server --config /etc/metalgate/server.yaml
//
// Storage is in memory, Badger or PostgreSQL; session tokens can be moved
// to Redis. Every setting can be overridden with METALGATE_* variables.
package main
