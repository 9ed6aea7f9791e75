// Package handler implements the metalgate HTTP API.
//
// Handlers are grouped by resource:
//
//   - account.go: registration, login, logout and the current user
//   - apikey.go: API key management and usage statistics
//   - quote.go: the dashboard price feed and the key-gated quote endpoints
//   - health.go: liveness and readiness
//
// Successful responses are bare JSON documents. Errors are written as
// {"detail": "..."} with the domain error code in the X-Error-Code header,
// which is the shape the CLI client understands.
package handler
