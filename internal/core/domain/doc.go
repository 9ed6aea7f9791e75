// Package domain defines the core domain models for metalgate.
//
// Domain models are plain values without IO dependencies:
//
//   - APIKey: access key with usage counters and wire encoding
//   - User, Credentials, Subject: accounts and argon2id password hashing
//   - Session, AuthToken: client session state and server token records
//   - Commodity, PriceQuote, AggregateResult: per-commodity quote outcomes
//   - Errors: coded domain errors compared with errors.Is
package domain
