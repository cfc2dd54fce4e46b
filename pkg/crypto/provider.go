package crypto

import (
	"fmt"
	"hash"
	"sort"
	"sync"
)

// Provider is the capability interface the secure channel consumes.
//
// The interface is sealed: only the backends in this package implement it,
// so every implementation is covered by the same equivalence tests.
type Provider interface {
	// Name returns the backend name ("std" or "xcrypto").
	Name() string

	// NewAEAD returns an AES-256-GCM context bound to a copy of key.
	NewAEAD(key []byte) (AEAD, error)

	// NewHash returns a fresh SHA-256 state.
	NewHash() hash.Hash

	// X25519 computes the shared secret between priv and the peer's pub.
	// An all-zero result is rejected with ErrKeyAgreement.
	X25519(priv, pub []byte) ([]byte, error)

	// X25519Base computes the public key for priv.
	X25519Base(priv []byte) ([]byte, error)

	// HKDF2 runs HKDF-SHA256 with salt ck, input key material input and an
	// empty info string, returning the first two 32-byte output blocks.
	HKDF2(ck, input []byte) (out1, out2 [KeySize]byte, err error)

	// VerifyEd25519 verifies an Ed25519 signature over msg.
	VerifyEd25519(pub, msg, sig []byte) error

	// VerifyECDSAP256 verifies an ASN.1 ECDSA signature over a SHA-256 digest.
	// pub is an uncompressed P-256 point.
	VerifyECDSAP256(pub, digest, sig []byte) error

	sealed()
}

// AEAD is an AES-256-GCM context bound to a single key.
type AEAD interface {
	// Seal encrypts plaintext and appends ciphertext || tag to dst.
	Seal(dst, nonce, plaintext, ad []byte) ([]byte, error)

	// Open authenticates and decrypts ciphertext || tag, appending the
	// plaintext to dst.
	Open(dst, nonce, ciphertext, ad []byte) ([]byte, error)

	// Destroy erases the key copy. Later calls return ErrDestroyed.
	Destroy()
}

// backend describes a registered provider constructor together with its
// once-only bootstrap.
type backend struct {
	once    sync.Once
	initErr error
	newFn   func() Provider
}

var backends = map[string]*backend{
	BackendStd:     {newFn: func() Provider { return stdProvider{} }},
	BackendXCrypto: {newFn: func() Provider { return xcryptoProvider{} }},
}

// Backend names.
const (
	BackendStd     = "std"
	BackendXCrypto = "xcrypto"
)

// New returns the provider registered under name. The backend's self test
// runs the first time it is requested; its result is cached for the process.
func New(name string) (Provider, error) {
	b, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	b.once.Do(func() {
		b.initErr = selfTest(b.newFn())
	})
	if b.initErr != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSelfTest, name, b.initErr)
	}
	return b.newFn(), nil
}

// Default returns the backend selected at build time (see DefaultBackend).
func Default() (Provider, error) {
	return New(DefaultBackend)
}

// Backends lists the registered backend names in sorted order.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
