// Package handshake implements the fixed two-message key agreement that
// opens a secure session with the chip.
//
// The pattern is Noise KK1 over X25519, AES-256-GCM and SHA-256: both sides
// know each other's static keys, the host sends an ephemeral key and the
// pairing slot index, and the chip answers with its ephemeral key and a
// tag proving it derived the same transcript and keys.
//
// Key schedule (ck starts as Label, KDF is HKDF-SHA256 with salt ck):
//
//	ck        = KDF(ck, X25519(EHPriv, ETPub))
//	ck        = KDF(ck, X25519(SHiPriv, ETPub))
//	ck, kAUTH = KDF(ck, X25519(EHPriv, STPub))
//	kCMD, kRES = KDF(ck, "")
package handshake

import (
	"errors"
	"fmt"

	"github.com/backkem/selink/pkg/crypto"
)

// Label is the protocol name, zero padded to the hash size. It seeds both
// the transcript hash and the chaining key.
var Label = [crypto.HashSize]byte{
	'N', 'o', 'i', 's', 'e', '_', 'K', 'K', '1', '_',
	'2', '5', '5', '1', '9', '_',
	'A', 'E', 'S', 'G', 'C', 'M', '_',
	'S', 'H', 'A', '2', '5', '6',
}

// MaxPairingSlot is the highest pairing key slot index.
const MaxPairingSlot = 3

var (
	// ErrHandshake is returned when the chip's proof does not verify. Wrong
	// slot, wrong keys and a corrupted transcript are indistinguishable.
	ErrHandshake = errors.New("handshake: authentication failed")

	ErrInvalidState = errors.New("handshake: invalid state")
	ErrInvalidSlot  = errors.New("handshake: invalid pairing slot")
	ErrInvalidKey   = errors.New("handshake: invalid key")
)

// State is the initiator's progress through the handshake.
type State uint8

const (
	StateIdle State = iota
	StateEphemeralKeyGenerated
	StateRequestSent
	StateResponseReceived
	StateKeysDerived
	StateAuthVerified
	StateSessionActive
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateEphemeralKeyGenerated:
		return "EphemeralKeyGenerated"
	case StateRequestSent:
		return "RequestSent"
	case StateResponseReceived:
		return "ResponseReceived"
	case StateKeysDerived:
		return "KeysDerived"
	case StateAuthVerified:
		return "AuthVerified"
	case StateSessionActive:
		return "SessionActive"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// SessionKeys are the per-direction AEAD keys of an established session.
type SessionKeys struct {
	// Command protects host-to-chip packets (kCMD).
	Command [crypto.KeySize]byte

	// Result protects chip-to-host packets (kRES).
	Result [crypto.KeySize]byte
}

// Erase zeroes both keys.
func (k *SessionKeys) Erase() {
	crypto.EraseAll(k.Command[:], k.Result[:])
}

// transcript hashes the handshake context in order.
func transcript(p crypto.Provider, shiPub, stPub, ehPub []byte, slot uint8, etPub []byte) [crypto.HashSize]byte {
	h := crypto.Sum(p, Label[:])
	h = crypto.Sum(p, h[:], shiPub)
	h = crypto.Sum(p, h[:], stPub)
	h = crypto.Sum(p, h[:], ehPub)
	h = crypto.Sum(p, h[:], []byte{slot})
	return crypto.Sum(p, h[:], etPub)
}

// schedule runs the chaining-key derivation over the three agreements and
// returns kAUTH and the session keys. The shared secrets are erased.
func schedule(p crypto.Provider, ss1, ss2, ss3 []byte) (kAuth [crypto.KeySize]byte, keys SessionKeys, err error) {
	defer crypto.EraseAll(ss1, ss2, ss3)

	ck := Label
	defer crypto.Erase(ck[:])

	if ck, _, err = p.HKDF2(ck[:], ss1); err != nil {
		return kAuth, keys, err
	}
	if ck, _, err = p.HKDF2(ck[:], ss2); err != nil {
		return kAuth, keys, err
	}
	if ck, kAuth, err = p.HKDF2(ck[:], ss3); err != nil {
		return kAuth, keys, err
	}
	keys.Command, keys.Result, err = p.HKDF2(ck[:], nil)
	return kAuth, keys, err
}

// zeroNonce is the AEAD nonce of the handshake proof.
var zeroNonce [crypto.NonceSize]byte

// authTag computes the chip's proof: GCM over the empty message with the
// transcript hash as associated data.
func authTag(p crypto.Provider, kAuth, h []byte) ([]byte, error) {
	aead, err := p.NewAEAD(kAuth)
	if err != nil {
		return nil, err
	}
	defer aead.Destroy()
	return aead.Seal(nil, zeroNonce[:], nil, h)
}

func verifyAuthTag(p crypto.Provider, kAuth, h, tag []byte) error {
	aead, err := p.NewAEAD(kAuth)
	if err != nil {
		return err
	}
	defer aead.Destroy()
	if _, err := aead.Open(nil, zeroNonce[:], tag, h); err != nil {
		return ErrHandshake
	}
	return nil
}
