// Package httpserver provides the HTTP/HTTPS server for metalgate-server.
//
// It serves the API implemented by package handler using stdlib net/http:
//
//   - Account endpoints: /register, /login, /logout, /users/me
//   - API key endpoints: /api-keys, /api-keys/{key}/toggle, /api-keys/stats
//   - Quote endpoints: /dashboard/prices, /quotes/{commodity}, /gold
//   - Health endpoints: /health, /ready, /metrics
//
// Every route runs behind the middleware chain Recover, RequestID,
// AccessLog, Metrics and CORS. Bearer-protected routes add Auth, and
// /metrics can be restricted to a network allowlist.
package httpserver
