// Package token provides token generation and hashing utilities.
//
// Token Format:
//
//   - Prefix: mgt_ (session token) or mgk_ (API key)
//   - Body: 43 characters of Base64 RawURL encoded random bytes
//
// Servers store only the hex SHA-256 of session tokens; Verify compares
// in constant time.
package token
