package snapshot

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/yndnr/metalgate/pkg/crypto/adaptive"
)

// Encryption errors.
var (
	ErrPassphraseTooWeak = fmt.Errorf("snapshot: passphrase must be at least %d characters", MinPassphraseLength)
	ErrEncrypted         = errors.New("snapshot: snapshot is encrypted and no passphrase is configured")
	ErrNotEncrypted      = errors.New("snapshot: expected an encrypted snapshot")
	ErrDecryptionFailed  = errors.New("snapshot: decryption failed, wrong passphrase or corrupted data")
)

const (
	// MinPassphraseLength is the minimum passphrase length.
	MinPassphraseLength = 8

	// SaltLength is the Argon2id salt length.
	SaltLength = 16

	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4
)

// DeriveKey derives a cipher key from a passphrase with Argon2id.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argon2Time, argon2Memory, argon2Threads, adaptive.KeySize)
}

// NewSalt returns a random salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("snapshot: generate salt: %w", err)
	}
	return salt, nil
}

// ZeroKey overwrites key material.
func ZeroKey(key []byte) {
	clear(key)
}
