//go:build !selink_xcrypto

package crypto

// DefaultBackend is the backend returned by Default. Build with the
// selink_xcrypto tag to select the x/crypto backend instead.
const DefaultBackend = BackendStd
