// Package token provides token generation and hashing utilities.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
)

// Token prefixes.
const (
	// SessionPrefix marks bearer session tokens issued on login.
	SessionPrefix = "mgt_"

	// APIKeyPrefix marks server-generated API keys.
	APIKeyPrefix = "mgk_"
)

// DefaultLength is the default token length in bytes.
const DefaultLength = 32

// Generate generates a cryptographically secure random token carrying prefix.
//
// The random body is Base64 RawURL encoded for safe URL transmission.
func Generate(prefix string) (string, error) {
	body, err := GenerateWithLength(DefaultLength)
	if err != nil {
		return "", err
	}
	return prefix + body, nil
}

// GenerateWithLength generates a prefix-less token with the specified byte length.
func GenerateWithLength(length int) (string, error) {
	bytes, err := GenerateBytes(length)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// GenerateBytes generates random bytes.
func GenerateBytes(length int) ([]byte, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return nil, err
	}
	return bytes, nil
}

// Mask shortens a token for display, keeping a known prefix and the first
// and last four characters of the body.
func Mask(tok string) string {
	prefix := ""
	for _, p := range []string{SessionPrefix, APIKeyPrefix} {
		if strings.HasPrefix(tok, p) {
			prefix = p
			break
		}
	}
	body := tok[len(prefix):]
	if len(body) <= 12 {
		return prefix + "***"
	}
	return prefix + body[:4] + "..." + body[len(body)-4:]
}
