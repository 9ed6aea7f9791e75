package adaptive

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"runtime"
)

// KeySize is the key length accepted by every cipher.
const KeySize = 32

// CipherType identifies the cipher algorithm.
type CipherType string

// Supported cipher types. CipherAuto resolves to one of the others.
const (
	CipherAuto     CipherType = "auto"
	CipherAESGCM   CipherType = "aes-gcm"
	CipherChaCha20 CipherType = "chacha20-poly1305"
)

var (
	// ErrKeySize is returned for keys that are not KeySize bytes.
	ErrKeySize = fmt.Errorf("adaptive: key must be %d bytes", KeySize)

	// ErrDecrypt is returned when authentication fails.
	ErrDecrypt = errors.New("adaptive: decryption failed")
)

// Cipher provides authenticated encryption.
type Cipher interface {
	Type() CipherType
	Encrypt(plaintext, additionalData []byte) ([]byte, error)
	Decrypt(ciphertext, additionalData []byte) ([]byte, error)
}

// New creates the preferred cipher for this host.
func New(key []byte) (Cipher, error) {
	return NewWithType(key, CipherAuto)
}

// NewWithType creates a cipher of the given type.
func NewWithType(key []byte, t CipherType) (Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	switch Resolve(t) {
	case CipherAESGCM:
		return NewAESGCM(key)
	case CipherChaCha20:
		return NewChaCha20(key)
	default:
		return nil, fmt.Errorf("adaptive: unknown cipher type %q", t)
	}
}

// Resolve maps CipherAuto to the host's preferred cipher and returns other
// types unchanged.
func Resolve(t CipherType) CipherType {
	if t != CipherAuto {
		return t
	}
	if hasAESAcceleration() {
		return CipherAESGCM
	}
	return CipherChaCha20
}

// crypto/aes uses AES-NI on amd64 and the ARMv8 crypto extensions on arm64.
func hasAESAcceleration() bool {
	switch runtime.GOARCH {
	case "amd64", "arm64":
		return true
	default:
		return false
	}
}

// sealer implements Cipher over an AEAD.
type sealer struct {
	typ  CipherType
	aead cipher.AEAD
}

func (s *sealer) Type() CipherType { return s.typ }

func (s *sealer) Encrypt(plaintext, additionalData []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("adaptive: nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, additionalData), nil
}

func (s *sealer) Decrypt(ciphertext, additionalData []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(ciphertext) < n+s.aead.Overhead() {
		return nil, ErrDecrypt
	}
	plain, err := s.aead.Open(nil, ciphertext[:n], ciphertext[n:], additionalData)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plain, nil
}
