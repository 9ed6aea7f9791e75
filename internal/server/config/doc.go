// Package config provides server configuration for metalgate-server.
//
// This package defines the server configuration structure and validation:
//
//   - spec.go: ServerConfig struct definition
//   - default.go: Default configuration values
//   - verify.go: Business validation (backends, addresses, TLS pairs)
//   - sanitize.go: Log sanitization (hide passwords in DSNs)
//   - loader.go: Loading through internal/infra/confloader
//
// Sources are merged in order: defaults, YAML file, METALGATE_* variables.
package config
