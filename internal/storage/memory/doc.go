// Package memory provides in-memory storage implementations.
//
// Stores are built on pkg/cmap so that per-key read-modify-write
// operations (toggle, usage counters) take a single shard lock. The
// KeyStore doubles as the client-side cache of the signed-in user's keys.
package memory
