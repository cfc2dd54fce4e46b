package crypto

import (
	"crypto/sha256"
	"hash"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// xcryptoProvider implements Provider on top of golang.org/x/crypto.
type xcryptoProvider struct{}

func (xcryptoProvider) sealed() {}

func (xcryptoProvider) Name() string { return BackendXCrypto }

func (xcryptoProvider) NewAEAD(key []byte) (AEAD, error) {
	return newGCM(key)
}

func (xcryptoProvider) NewHash() hash.Hash {
	return newSHA256()
}

func (xcryptoProvider) X25519(priv, pub []byte) ([]byte, error) {
	if len(priv) != X25519KeySize {
		return nil, ErrInvalidKeySize
	}
	if len(pub) != X25519KeySize {
		return nil, ErrInvalidPublicKey
	}
	shared, err := curve25519.X25519(priv, pub)
	if err != nil {
		// curve25519 reports the all-zero output of low order points.
		return nil, ErrKeyAgreement
	}
	return shared, nil
}

func (xcryptoProvider) X25519Base(priv []byte) ([]byte, error) {
	if len(priv) != X25519KeySize {
		return nil, ErrInvalidKeySize
	}
	return curve25519.X25519(priv, curve25519.Basepoint)
}

func (xcryptoProvider) HKDF2(ck, input []byte) (out1, out2 [KeySize]byte, err error) {
	r := hkdf.New(sha256.New, input, ck, nil)
	if _, err = io.ReadFull(r, out1[:]); err != nil {
		return out1, out2, err
	}
	if _, err = io.ReadFull(r, out2[:]); err != nil {
		Erase(out1[:])
		return out1, out2, err
	}
	return out1, out2, nil
}

func (xcryptoProvider) VerifyEd25519(pub, msg, sig []byte) error {
	return verifyEd25519(pub, msg, sig)
}

func (xcryptoProvider) VerifyECDSAP256(pub, digest, sig []byte) error {
	return verifyECDSAP256(pub, digest, sig)
}
