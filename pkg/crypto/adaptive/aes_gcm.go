package adaptive

import (
	"crypto/aes"
	"crypto/cipher"
)

// NewAESGCM creates an AES-256-GCM cipher.
func NewAESGCM(key []byte) (Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &sealer{typ: CipherAESGCM, aead: aead}, nil
}
