// Package adaptive provides authenticated encryption with a cipher chosen
// for the host: AES-256-GCM where the CPU accelerates AES, otherwise
// ChaCha20-Poly1305.
//
//	c, err := adaptive.New(key)
//	sealed, err := c.Encrypt(plaintext, aad)
//	plaintext, err := c.Decrypt(sealed, aad)
//
// Sealed output carries its random nonce as a prefix.
package adaptive
