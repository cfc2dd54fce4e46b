package crypto

import (
	"crypto/ecdh"
	"crypto/hkdf"
	"crypto/sha256"
	"hash"
)

// stdProvider implements Provider with the Go standard library only.
type stdProvider struct{}

func (stdProvider) sealed() {}

func (stdProvider) Name() string { return BackendStd }

func (stdProvider) NewAEAD(key []byte) (AEAD, error) {
	return newGCM(key)
}

func (stdProvider) NewHash() hash.Hash {
	return newSHA256()
}

func (stdProvider) X25519(priv, pub []byte) ([]byte, error) {
	if len(priv) != X25519KeySize {
		return nil, ErrInvalidKeySize
	}
	if len(pub) != X25519KeySize {
		return nil, ErrInvalidPublicKey
	}
	sk, err := ecdh.X25519().NewPrivateKey(priv)
	if err != nil {
		return nil, ErrInvalidKeySize
	}
	pk, err := ecdh.X25519().NewPublicKey(pub)
	if err != nil {
		return nil, ErrInvalidPublicKey
	}
	shared, err := sk.ECDH(pk)
	if err != nil {
		// crypto/ecdh rejects the all-zero output of low order points.
		return nil, ErrKeyAgreement
	}
	return shared, nil
}

func (stdProvider) X25519Base(priv []byte) ([]byte, error) {
	if len(priv) != X25519KeySize {
		return nil, ErrInvalidKeySize
	}
	sk, err := ecdh.X25519().NewPrivateKey(priv)
	if err != nil {
		return nil, ErrInvalidKeySize
	}
	return sk.PublicKey().Bytes(), nil
}

func (stdProvider) HKDF2(ck, input []byte) (out1, out2 [KeySize]byte, err error) {
	okm, err := hkdf.Key(sha256.New, input, ck, "", 2*KeySize)
	if err != nil {
		return out1, out2, err
	}
	defer Erase(okm)
	copy(out1[:], okm[:KeySize])
	copy(out2[:], okm[KeySize:])
	return out1, out2, nil
}

func (stdProvider) VerifyEd25519(pub, msg, sig []byte) error {
	return verifyEd25519(pub, msg, sig)
}

func (stdProvider) VerifyECDSAP256(pub, digest, sig []byte) error {
	return verifyECDSAP256(pub, digest, sig)
}
