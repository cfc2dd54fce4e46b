package certstore

import "errors"

var (
	ErrTruncated            = errors.New("certstore: truncated store")
	ErrVersion              = errors.New("certstore: unsupported store version")
	ErrCertCount            = errors.New("certstore: invalid certificate count")
	ErrEmptyCert            = errors.New("certstore: empty certificate")
	ErrTooLarge             = errors.New("certstore: store exceeds maximum size")
	ErrUnsupportedAlgorithm = errors.New("certstore: unsupported key or signature algorithm")
	ErrChainBroken          = errors.New("certstore: certificate chain validation failed")
	ErrNoStaticKey          = errors.New("certstore: device certificate carries no X25519 key")
)
