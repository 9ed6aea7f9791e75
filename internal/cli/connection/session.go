package connection

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"

	"github.com/yndnr/metalgate/internal/core/domain"
	"github.com/yndnr/metalgate/internal/telemetry/logger"
)

// errSuperseded is returned when a resolution finished after the token it
// was resolving had been replaced or cleared.
var errSuperseded = domain.ErrSessionExpired.WithDetails("session changed while resolving")

// SessionManager owns the current session token and the identity derived
// from it. It is safe for concurrent use.
type SessionManager struct {
	http   *HTTPClient
	store  TokenStore
	logger logger.Logger

	mu      sync.Mutex
	session domain.Session
	client  *Client
}

// SessionOption configures a SessionManager.
type SessionOption func(*SessionManager)

// WithTokenStore persists the token across runs.
func WithTokenStore(s TokenStore) SessionOption {
	return func(m *SessionManager) {
		m.store = s
	}
}

// WithSessionLogger sets the logger for session transitions.
func WithSessionLogger(l logger.Logger) SessionOption {
	return func(m *SessionManager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewSessionManager creates an unauthenticated manager talking through hc.
func NewSessionManager(hc *HTTPClient, opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		http:    hc,
		logger:  logger.Default(),
		session: domain.Session{Status: domain.StatusUnauthenticated},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.client = m.newClientLocked()
	return m
}

// HTTP returns the underlying transport.
func (m *SessionManager) HTTP() *HTTPClient {
	return m.http
}

// Current returns a snapshot of the session.
func (m *SessionManager) Current() domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Client returns the client bound to the current token.
func (m *SessionManager) Client() *Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client
}

// IsCurrent reports whether generation still identifies the session's
// token.
func (m *SessionManager) IsCurrent(generation uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Generation == generation
}

// Register creates an account. It does not log in.
func (m *SessionManager) Register(ctx context.Context, creds domain.Credentials) error {
	resp, err := m.http.Do(ctx, Request{Method: http.MethodPost, Path: "/register", JSON: creds})
	if err != nil {
		return domain.ErrNetwork.WithDetails(err.Error()).WithCause(err)
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		detail := ReadDetail(resp.Body)
		drain(resp)
		return domain.ErrValidation.WithDetails(detail)
	}
	return ParseResponse(resp, nil)
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login exchanges credentials for a token, persists it, and resolves the
// subject before returning.
func (m *SessionManager) Login(ctx context.Context, creds domain.Credentials) (domain.Session, error) {
	form := url.Values{}
	form.Set("username", creds.Username)
	form.Set("password", creds.Password)

	resp, err := m.http.Do(ctx, Request{Method: http.MethodPost, Path: "/login", Form: form})
	if err != nil {
		return m.Current(), domain.ErrNetwork.WithDetails(err.Error()).WithCause(err)
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		detail := ReadDetail(resp.Body)
		drain(resp)
		return m.Current(), domain.ErrInvalidCredentials.WithDetails(detail)
	}

	var lr loginResponse
	if err := ParseResponse(resp, &lr); err != nil {
		return m.Current(), err
	}
	if lr.AccessToken == "" {
		return m.Current(), domain.ErrRequestFailed.WithDetails("login response has no access token")
	}

	m.mu.Lock()
	m.setTokenLocked(lr.AccessToken, domain.StatusResolving)
	m.mu.Unlock()
	m.persist(ctx, lr.AccessToken)

	return m.ResolveSubject(ctx, lr.AccessToken)
}

// Logout clears the session and the persisted token. Calling it without a
// session is a no-op.
func (m *SessionManager) Logout() {
	m.mu.Lock()
	hadToken := m.session.Token != ""
	if hadToken || m.session.Status != domain.StatusUnauthenticated {
		m.setTokenLocked("", domain.StatusUnauthenticated)
	}
	m.mu.Unlock()

	m.persist(context.Background(), "")
	if hadToken {
		m.logger.Info("logged out")
	}
}

// SignOut revokes the token server-side (best effort) and then logs out.
func (m *SessionManager) SignOut(ctx context.Context) {
	c := m.Client()
	if c.HasToken() {
		if err := c.Post(ctx, "/logout", nil, nil); err != nil {
			m.logger.Debug("server-side logout failed", "error", err)
		}
	}
	m.Logout()
}

// Restore seeds the session from the token store. Without a stored token
// the session stays Unauthenticated.
func (m *SessionManager) Restore(ctx context.Context) (domain.Session, error) {
	if m.store == nil {
		return m.Current(), nil
	}
	tok, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Warn("failed to load stored token", "error", err)
		return m.Current(), nil
	}
	if tok == "" {
		return m.Current(), nil
	}
	return m.ResolveSubject(ctx, tok)
}

// ResolveSubject fetches the identity behind token. Token becomes the
// current token if it is not already. Any failure marks the session
// Expired and discards the token; a result that arrives after the token
// was replaced is ignored.
func (m *SessionManager) ResolveSubject(ctx context.Context, token string) (domain.Session, error) {
	m.mu.Lock()
	if m.session.Token != token {
		m.setTokenLocked(token, domain.StatusResolving)
	} else {
		m.session.Status = domain.StatusResolving
		m.session.Subject = nil
	}
	gen := m.session.Generation
	m.mu.Unlock()

	subject, err := m.fetchSubject(ctx, token)

	m.mu.Lock()
	if m.session.Generation != gen {
		s := m.snapshotLocked()
		m.mu.Unlock()
		m.logger.Debug("dropping stale subject resolution", "generation", gen)
		return s, errSuperseded
	}
	if err != nil {
		m.setTokenLocked("", domain.StatusExpired)
		s := m.snapshotLocked()
		m.mu.Unlock()
		m.persist(ctx, "")
		m.logger.Warn("session token rejected", "error", err)
		return s, err
	}
	m.session.Subject = subject
	m.session.Status = domain.StatusAuthenticated
	s := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Debug("session authenticated", "username", subject.Username)
	return s, nil
}

func (m *SessionManager) fetchSubject(ctx context.Context, token string) (*domain.Subject, error) {
	resp, err := m.http.Do(ctx, Request{Method: http.MethodGet, Path: "/users/me", Token: token})
	if err != nil {
		return nil, domain.ErrNetwork.WithDetails(err.Error()).WithCause(err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		detail := ReadDetail(resp.Body)
		drain(resp)
		return nil, domain.ErrSessionExpired.WithDetails(detail)
	}
	var subject domain.Subject
	if err := ParseResponse(resp, &subject); err != nil {
		return nil, err
	}
	if subject.Username == "" {
		return nil, domain.ErrSessionExpired.WithDetails("server returned no username")
	}
	return &subject, nil
}

// handleUnauthorized tears the session down after a 401, once per token.
func (m *SessionManager) handleUnauthorized(generation uint64) {
	m.mu.Lock()
	if m.session.Generation != generation || m.session.Token == "" {
		m.mu.Unlock()
		return
	}
	m.setTokenLocked("", domain.StatusUnauthenticated)
	m.mu.Unlock()

	m.persist(context.Background(), "")
	m.logger.Warn("session rejected by server, logged out")
}

// setTokenLocked replaces the token, bumps the generation, and rebuilds
// the client. Caller holds m.mu.
func (m *SessionManager) setTokenLocked(token string, status domain.SessionStatus) {
	m.session = domain.Session{
		Token:      token,
		Status:     status,
		Generation: m.session.Generation + 1,
	}
	m.client = m.newClientLocked()
}

func (m *SessionManager) newClientLocked() *Client {
	return &Client{
		http:       m.http,
		token:      m.session.Token,
		generation: m.session.Generation,
		onExpired:  m.handleUnauthorized,
	}
}

func (m *SessionManager) snapshotLocked() domain.Session {
	s := m.session
	if s.Subject != nil {
		subj := *s.Subject
		s.Subject = &subj
	}
	return s
}

// persist saves token, or clears the store when token is empty. Store
// failures are logged; the in-memory session stays authoritative.
func (m *SessionManager) persist(ctx context.Context, token string) {
	if m.store == nil {
		return
	}
	var err error
	if token == "" {
		err = m.store.Clear(ctx)
	} else {
		err = m.store.Save(ctx, token)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Warn("failed to persist session token", "error", err)
	}
}
