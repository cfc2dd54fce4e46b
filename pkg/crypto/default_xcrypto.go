//go:build selink_xcrypto

package crypto

// DefaultBackend is the backend returned by Default.
const DefaultBackend = BackendXCrypto
