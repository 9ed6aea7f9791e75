// Package storage defines the persistence interfaces for users, API keys
// and issued session tokens, and provides the Badger-backed implementation.
//
// Backends:
//
//   - memory: sharded in-memory maps (tests, single-process server, client cache)
//   - badger: embedded durable KV (KVStore over BadgerEngine)
//   - postgres: pgx connection pool (storage/postgres)
//   - redis: session tokens with native TTL (storage/redisstore)
//
// Every implementation reports domain errors (ErrAPIKeyNotFound,
// ErrAPIKeyConflict, ErrUserExists, ...) so callers never depend on the
// backend in use.
package storage
