// Package service provides the server-side domain services for metalgate.
//
// Services hold business rules and talk to storage through the narrow
// repository interfaces declared here, so any backend in internal/storage
// can be plugged in:
//
//   - AccountService: registration, login and bearer token validation
//   - KeyService: API key lifecycle, usage logging and key-gated access
//   - QuoteService: cached, fan-out commodity quotes from upstream sources
//
// All services are safe for concurrent use.
package service
