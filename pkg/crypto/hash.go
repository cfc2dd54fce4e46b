// Package crypto provides the cryptographic capability used by the secure
// channel: AES-256-GCM, SHA-256, X25519, Ed25519/ECDSA verification and the
// two-output HKDF used by the handshake.
//
// Primitives are reached through the sealed Provider interface. Two backends
// are available and must behave identically at that interface:
//   - "std": Go standard library (crypto/ecdh, crypto/hkdf)
//   - "xcrypto": golang.org/x/crypto (curve25519, hkdf)
//
// Each backend runs a known-answer self test once per process, the first time
// it is constructed.
package crypto

import (
	"crypto/sha256"
	"hash"
)

// Size constants shared by both backends.
const (
	// HashSize is the SHA-256 digest length in bytes.
	HashSize = 32

	// KeySize is the AES-256-GCM key length and the HKDF output length.
	KeySize = 32

	// NonceSize is the AES-GCM IV length.
	NonceSize = 12

	// TagSize is the AES-GCM authentication tag length.
	TagSize = 16

	// X25519KeySize is the length of X25519 private keys, public keys and
	// shared secrets.
	X25519KeySize = 32

	// P256PublicKeySize is the uncompressed P-256 public key size.
	// Format: 0x04 || X (32 bytes) || Y (32 bytes)
	P256PublicKeySize = 65

	// Ed25519PublicKeySize is the Ed25519 public key size.
	Ed25519PublicKeySize = 32
)

// Sum hashes the concatenation of parts with the provider's SHA-256.
func Sum(p Provider, parts ...[]byte) [HashSize]byte {
	h := p.NewHash()
	for _, b := range parts {
		h.Write(b)
	}
	var out [HashSize]byte
	h.Sum(out[:0])
	return out
}

func newSHA256() hash.Hash {
	return sha256.New()
}
