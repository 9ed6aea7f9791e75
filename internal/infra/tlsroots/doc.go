// Package tlsroots loads TLS material for metalgate.
//
//   - roots.go: trust pools for clients, system roots plus a private CA
//   - watcher.go: server certificate that reloads when its files change
package tlsroots
