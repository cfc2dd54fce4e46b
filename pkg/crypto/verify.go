package crypto

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"math/big"
)

func verifyEd25519(pub, msg, sig []byte) error {
	if len(pub) != ed25519.PublicKeySize {
		return ErrInvalidPublicKey
	}
	if len(sig) != ed25519.SignatureSize || !ed25519.Verify(ed25519.PublicKey(pub), msg, sig) {
		return ErrSignatureInvalid
	}
	return nil
}

func verifyECDSAP256(pub, digest, sig []byte) error {
	if len(pub) != P256PublicKeySize {
		return ErrInvalidPublicKey
	}
	// ecdh validates that the point is on the curve and not the identity.
	if _, err := ecdh.P256().NewPublicKey(pub); err != nil {
		return ErrInvalidPublicKey
	}
	key := &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(pub[1:33]),
		Y:     new(big.Int).SetBytes(pub[33:65]),
	}
	if !ecdsa.VerifyASN1(key, digest, sig) {
		return ErrSignatureInvalid
	}
	return nil
}
