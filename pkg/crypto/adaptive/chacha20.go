package adaptive

import "golang.org/x/crypto/chacha20poly1305"

// NewChaCha20 creates a ChaCha20-Poly1305 cipher.
func NewChaCha20(key []byte) (Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return &sealer{typ: CipherChaCha20, aead: aead}, nil
}
