package domain

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for password hashing.
const (
	// Argon2Memory is the memory parameter in KB (16 MB).
	Argon2Memory uint32 = 16384

	// Argon2Time is the iteration count.
	Argon2Time uint32 = 2

	// Argon2Parallelism is the parallelism factor.
	Argon2Parallelism uint8 = 2

	// Argon2KeyLen is the output hash length in bytes.
	Argon2KeyLen uint32 = 32

	// Argon2SaltLen is the salt length in bytes.
	Argon2SaltLen = 16
)

// Registration constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 64
	MinPasswordLength = 8
	MaxPasswordLength = 256
)

// Credentials are the username/password pair exchanged for a session token.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate checks registration constraints.
func (c Credentials) Validate() error {
	name := strings.TrimSpace(c.Username)
	if name != c.Username {
		return ErrValidation.WithDetails("username must not start or end with whitespace")
	}
	n := utf8.RuneCountInString(name)
	if n < MinUsernameLength || n > MaxUsernameLength {
		return ErrValidation.WithDetails(
			fmt.Sprintf("username must be between %d and %d characters", MinUsernameLength, MaxUsernameLength))
	}
	for _, r := range name {
		if !isUsernameRune(r) {
			return ErrValidation.WithDetails("username may only contain letters, digits, '.', '_' and '-'")
		}
	}
	if len(c.Password) < MinPasswordLength {
		return ErrValidation.WithDetails(
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(c.Password) > MaxPasswordLength {
		return ErrValidation.WithDetails("password is too long")
	}
	return nil
}

func isUsernameRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_' || r == '-'
}

// Subject is the identity resolved from a session token (GET /users/me).
type Subject struct {
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// User is a registered account, stored server-side.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewUser creates a user with a ULID identifier and hashed password.
func NewUser(c Credentials) (*User, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	hash, err := HashPassword(c.Password)
	if err != nil {
		return nil, err
	}
	now := timeNow().UTC()
	id, err := ulid.New(ulid.Timestamp(now), ulid.Monotonic(rand.Reader, 0))
	if err != nil {
		return nil, ErrInternal.WithCause(err)
	}
	return &User{
		ID:           strings.ToLower(id.String()),
		Username:     c.Username,
		PasswordHash: hash,
		CreatedAt:    now,
	}, nil
}

// Subject returns the public identity of the user.
func (u *User) Subject() Subject {
	return Subject{Username: u.Username, CreatedAt: u.CreatedAt}
}

// HashPassword computes an Argon2id hash of the password.
// Returns the hash in the format: $argon2id$v=19$m=16384,t=2,p=2$<salt>$<hash>
func HashPassword(password string) (string, error) {
	salt := make([]byte, Argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", ErrInternal.WithCause(err)
	}

	hash := argon2.IDKey([]byte(password), salt, Argon2Time, Argon2Memory, Argon2Parallelism, Argon2KeyLen)

	saltB64 := base64.RawStdEncoding.EncodeToString(salt)
	hashB64 := base64.RawStdEncoding.EncodeToString(hash)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, Argon2Memory, Argon2Time, Argon2Parallelism, saltB64, hashB64), nil
}

// VerifyPassword checks password against an encoded Argon2id hash.
func VerifyPassword(password, encoded string) bool {
	parts := strings.Split(encoded, "$")
	// ["", "argon2id", "v=19", "m=...,t=...,p=...", salt, hash]
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	actual := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(actual, expected) == 1
}
