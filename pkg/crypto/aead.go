package crypto

import (
	"crypto/aes"
	"crypto/cipher"
)

// gcmContext is the AES-256-GCM AEAD shared by both backends.
type gcmContext struct {
	key  []byte
	aead cipher.AEAD
}

func newGCM(key []byte) (*gcmContext, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}

	c := &gcmContext{key: make([]byte, KeySize)}
	copy(c.key, key)

	block, err := aes.NewCipher(c.key)
	if err != nil {
		Erase(c.key)
		return nil, err
	}
	aead, err := cipher.NewGCMWithTagSize(block, TagSize)
	if err != nil {
		Erase(c.key)
		return nil, err
	}
	c.aead = aead
	return c, nil
}

func (c *gcmContext) Seal(dst, nonce, plaintext, ad []byte) ([]byte, error) {
	if c.aead == nil {
		return nil, ErrDestroyed
	}
	if len(nonce) != NonceSize {
		return nil, ErrInvalidNonceSize
	}
	return c.aead.Seal(dst, nonce, plaintext, ad), nil
}

func (c *gcmContext) Open(dst, nonce, ciphertext, ad []byte) ([]byte, error) {
	if c.aead == nil {
		return nil, ErrDestroyed
	}
	if len(nonce) != NonceSize {
		return nil, ErrInvalidNonceSize
	}
	if len(ciphertext) < TagSize {
		return nil, ErrAuthFailed
	}
	out, err := c.aead.Open(dst, nonce, ciphertext, ad)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return out, nil
}

// Destroy erases the key copy. The expanded AES key schedule inside the
// standard library block cipher cannot be reached and is dropped with it.
func (c *gcmContext) Destroy() {
	Erase(c.key)
	c.aead = nil
}
