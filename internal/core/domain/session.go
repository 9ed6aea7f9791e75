package domain

import (
	"time"
)

// SessionStatus is the authentication state of the client session.
type SessionStatus int

// Session statuses.
const (
	// StatusUnauthenticated means no token is held.
	StatusUnauthenticated SessionStatus = iota

	// StatusResolving means a token is held but its subject is not yet known.
	StatusResolving

	// StatusAuthenticated means the token resolved to a subject.
	StatusAuthenticated

	// StatusExpired means resolution failed; terminal for that token.
	StatusExpired
)

// String returns the status name.
func (s SessionStatus) String() string {
	switch s {
	case StatusUnauthenticated:
		return "unauthenticated"
	case StatusResolving:
		return "resolving"
	case StatusAuthenticated:
		return "authenticated"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Session is the client-side authentication state.
//
// Status is Authenticated iff Token is non-empty and Subject was resolved
// from it. Generation changes whenever Token changes.
type Session struct {
	Token      string
	Subject    *Subject
	Status     SessionStatus
	Generation uint64
}

// IsAuthenticated reports whether authenticated calls may be issued.
func (s Session) IsAuthenticated() bool {
	return s.Status == StatusAuthenticated && s.Token != "" && s.Subject != nil
}

// Username returns the resolved username, or "" when unresolved.
func (s Session) Username() string {
	if s.Subject == nil {
		return ""
	}
	return s.Subject.Username
}

// AuthToken is the server-side record of an issued session token.
// Only the hash of the token is stored.
type AuthToken struct {
	TokenHash string    `json:"token_hash"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired reports whether the token is past its expiry at now.
// A zero ExpiresAt never expires.
func (t *AuthToken) IsExpired(now time.Time) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(t.ExpiresAt)
}

// TTL returns the remaining lifetime at now, 0 when expired or unbounded.
func (t *AuthToken) TTL(now time.Time) time.Duration {
	if t.ExpiresAt.IsZero() {
		return 0
	}
	d := t.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
