package certstore

import (
	"errors"
	"fmt"

	"github.com/backkem/selink/pkg/crypto"
	"github.com/backkem/selink/pkg/der"
)

// StaticPublicKey extracts STPub from the device certificate. The key is the
// trailing 32 bytes of the BIT STRING following the X25519 algorithm OID.
func (s *Store) StaticPublicKey() ([crypto.X25519KeySize]byte, error) {
	return StaticPublicKey(s.Device())
}

// StaticPublicKey extracts the X25519 subject key from a DER certificate.
func StaticPublicKey(cert []byte) ([crypto.X25519KeySize]byte, error) {
	var key [crypto.X25519KeySize]byte
	res, err := der.FindObject(cert, der.OIDX25519, key[:], der.CropPrefix)
	if err != nil {
		if errors.Is(err, der.ErrNotFound) {
			return key, fmt.Errorf("%w: %v", ErrNoStaticKey, err)
		}
		return key, err
	}
	// BIT STRING contents are the unused-bits octet plus the key.
	if res.Size != crypto.X25519KeySize+1 {
		return key, fmt.Errorf("%w: key object is %d bytes", ErrNoStaticKey, res.Size)
	}
	return key, nil
}
