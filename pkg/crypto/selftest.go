package crypto

import (
	"bytes"
	"encoding/hex"
	"errors"
)

// RFC 7748 Section 6.1 Diffie-Hellman vector.
var (
	kaAlicePriv = mustHex("77076d0a7318a57d3c16c17251b26645df4c2f87ebc0992ab177fba51db92c2a")
	kaAlicePub  = mustHex("8520f0098930a754748b7ddcb43ef75a0dbf3a0d26381af4eba4a98eaa9b4e6a")
	kaBobPub    = mustHex("de9edb7d7b7dc1b4d35b61c2ece435373f8343c85b78674dadfc7e146f882b4f")
	kaShared    = mustHex("4a5d9d5ba4ce2de1728e3bf480350f25e07e21c947d19e3376f09b3c1e161742")
)

// selfTest checks key agreement and an AEAD round trip before a backend is
// handed out.
func selfTest(p Provider) error {
	pub, err := p.X25519Base(kaAlicePriv)
	if err != nil {
		return err
	}
	if !bytes.Equal(pub, kaAlicePub) {
		return errors.New("x25519 base point multiplication mismatch")
	}

	shared, err := p.X25519(kaAlicePriv, kaBobPub)
	if err != nil {
		return err
	}
	defer Erase(shared)
	if !bytes.Equal(shared, kaShared) {
		return errors.New("x25519 shared secret mismatch")
	}

	aead, err := p.NewAEAD(shared)
	if err != nil {
		return err
	}
	defer aead.Destroy()

	nonce := make([]byte, NonceSize)
	sealed, err := aead.Seal(nil, nonce, kaAlicePub, nil)
	if err != nil {
		return err
	}
	opened, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return err
	}
	if !bytes.Equal(opened, kaAlicePub) {
		return errors.New("aead round trip mismatch")
	}
	return nil
}

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}
