package crypto

import "errors"

// Crypto provider errors.
var (
	// ErrUnknownBackend is returned by New for an unregistered backend name.
	ErrUnknownBackend = errors.New("crypto: unknown backend")

	// ErrSelfTest is returned when a backend fails its known-answer test.
	ErrSelfTest = errors.New("crypto: backend self test failed")

	// ErrInvalidKeySize is returned when a key has the wrong length.
	ErrInvalidKeySize = errors.New("crypto: invalid key size")

	// ErrInvalidNonceSize is returned when an AEAD nonce is not 12 bytes.
	ErrInvalidNonceSize = errors.New("crypto: invalid nonce size")

	// ErrAuthFailed is returned when AEAD tag verification fails.
	ErrAuthFailed = errors.New("crypto: message authentication failed")

	// ErrDestroyed is returned when an AEAD context is used after Destroy.
	ErrDestroyed = errors.New("crypto: aead context destroyed")

	// ErrKeyAgreement is returned when X25519 produces an invalid shared secret.
	ErrKeyAgreement = errors.New("crypto: key agreement failed")

	// ErrInvalidPublicKey is returned when a public key cannot be decoded.
	ErrInvalidPublicKey = errors.New("crypto: invalid public key")

	// ErrSignatureInvalid is returned when signature verification fails.
	ErrSignatureInvalid = errors.New("crypto: signature verification failed")
)
