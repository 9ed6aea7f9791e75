package service

import (
	"github.com/yndnr/metalgate/internal/cli/connection"
	"github.com/yndnr/metalgate/internal/core/domain"
)

// SessionSource exposes the session state the services depend on.
// *connection.SessionManager implements it.
type SessionSource interface {
	Current() domain.Session
	Client() *connection.Client
	IsCurrent(generation uint64) bool
}

// authorize returns the username and client of an authenticated session.
func authorize(src SessionSource) (string, *connection.Client, error) {
	s := src.Current()
	if !s.IsAuthenticated() {
		return "", nil, domain.ErrNotAuthenticated
	}
	c := src.Client()
	if c.Generation() != s.Generation {
		return "", nil, domain.ErrNotAuthenticated.WithDetails("session changed")
	}
	return s.Username(), c, nil
}

var _ SessionSource = (*connection.SessionManager)(nil)
