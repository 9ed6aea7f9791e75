package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/yndnr/metalgate/internal/core/domain"
	"github.com/yndnr/metalgate/pkg/token"
)

// Messages returned to API clients. Unknown users and wrong passwords
// share one message.
const (
	msgBadCredentials = "Incorrect username or password"
	msgBadToken       = "Could not validate credentials"
)

// AccountService handles registration, login and bearer token validation.
type AccountService struct {
	users  UserRepository
	tokens TokenRepository
	ttl    time.Duration
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// AccountServiceConfig holds configuration for AccountService.
type AccountServiceConfig struct {
	// TokenTTL is the lifetime of issued session tokens (default: 24h).
	TokenTTL time.Duration
}

// DefaultAccountServiceConfig returns default configuration.
func DefaultAccountServiceConfig() *AccountServiceConfig {
	return &AccountServiceConfig{TokenTTL: 24 * time.Hour}
}

// NewAccountService creates a new AccountService.
func NewAccountService(users UserRepository, tokens TokenRepository, config *AccountServiceConfig) *AccountService {
	if config == nil {
		config = DefaultAccountServiceConfig()
	}
	if config.TokenTTL <= 0 {
		config.TokenTTL = DefaultAccountServiceConfig().TokenTTL
	}
	return &AccountService{
		users:  users,
		tokens: tokens,
		ttl:    config.TokenTTL,
		now:    time.Now,
	}
}

// Register creates an account. Duplicate names return ErrUserExists.
func (s *AccountService) Register(ctx context.Context, c domain.Credentials) (*domain.User, error) {
	u, err := domain.NewUser(c)
	if err != nil {
		return nil, err
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// LoginResponse carries a freshly issued session token.
type LoginResponse struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
}

// Login verifies credentials and issues a session token. Only the token
// hash is stored.
func (s *AccountService) Login(ctx context.Context, c domain.Credentials) (*LoginResponse, error) {
	u, err := s.users.GetUser(ctx, c.Username)
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		// Burn the same time as a real check.
		domain.VerifyPassword(c.Password, s.dummy())
		return nil, domain.ErrInvalidCredentials.WithDetails(msgBadCredentials)
	case err != nil:
		return nil, err
	}
	if !domain.VerifyPassword(c.Password, u.PasswordHash) {
		return nil, domain.ErrInvalidCredentials.WithDetails(msgBadCredentials)
	}

	plaintext, err := token.Generate(token.SessionPrefix)
	if err != nil {
		return nil, domain.ErrInternal.WithCause(err)
	}
	now := s.now().UTC()
	rec := &domain.AuthToken{
		TokenHash: token.Hash(plaintext),
		Username:  u.Username,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.tokens.SaveToken(ctx, rec); err != nil {
		return nil, err
	}
	return &LoginResponse{AccessToken: plaintext, TokenType: "bearer", ExpiresAt: rec.ExpiresAt}, nil
}

// Authenticate resolves a bearer token to its subject. Any failure is
// reported as ErrSessionExpired.
func (s *AccountService) Authenticate(ctx context.Context, plaintext string) (domain.Subject, error) {
	if !strings.HasPrefix(plaintext, token.SessionPrefix) {
		return domain.Subject{}, domain.ErrSessionExpired.WithDetails(msgBadToken)
	}
	rec, err := s.tokens.GetToken(ctx, token.Hash(plaintext))
	if err != nil {
		if errors.Is(err, domain.ErrSessionExpired) {
			return domain.Subject{}, domain.ErrSessionExpired.WithDetails(msgBadToken)
		}
		return domain.Subject{}, err
	}
	if rec.IsExpired(s.now()) {
		return domain.Subject{}, domain.ErrSessionExpired.WithDetails(msgBadToken)
	}
	u, err := s.users.GetUser(ctx, rec.Username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.Subject{}, domain.ErrSessionExpired.WithDetails(msgBadToken)
		}
		return domain.Subject{}, err
	}
	return u.Subject(), nil
}

// Logout revokes a session token. Unknown tokens are ignored.
func (s *AccountService) Logout(ctx context.Context, plaintext string) error {
	return s.tokens.DeleteToken(ctx, token.Hash(plaintext))
}

func (s *AccountService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = domain.HashPassword("metalgate-dummy-password")
	})
	return s.dummyHash
}
