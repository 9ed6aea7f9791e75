package token

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Hash computes the hex SHA-256 of a token for storage.
func Hash(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// Verify reports whether token hashes to expectedHash, in constant time.
func Verify(token, expectedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(Hash(token)), []byte(expectedHash)) == 1
}
