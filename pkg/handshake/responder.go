package handshake

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/backkem/selink/pkg/crypto"
	"github.com/backkem/selink/pkg/link"
)

// ResponderConfig holds the chip side's long-term inputs.
type ResponderConfig struct {
	Provider crypto.Provider

	// ChipPrivate is the chip's static private key (STPriv).
	ChipPrivate [crypto.X25519KeySize]byte

	// PairingKey returns the host public key installed in slot, or false if
	// the slot is empty.
	PairingKey func(slot uint8) ([crypto.X25519KeySize]byte, bool)

	// Rand is the source for the ephemeral key. Default: crypto/rand.
	Rand io.Reader
}

// Respond runs the chip half of the handshake for req. It is used by the
// chip model. An empty or out-of-range slot fails with ErrInvalidSlot.
func Respond(config ResponderConfig, req link.HandshakeRequest) (link.HandshakeResponse, *SessionKeys, error) {
	var rsp link.HandshakeResponse
	p := config.Provider

	if req.PairingSlot > MaxPairingSlot || config.PairingKey == nil {
		return rsp, nil, fmt.Errorf("%w: %d", ErrInvalidSlot, req.PairingSlot)
	}
	shiPub, ok := config.PairingKey(req.PairingSlot)
	if !ok {
		return rsp, nil, fmt.Errorf("%w: slot %d empty", ErrInvalidSlot, req.PairingSlot)
	}

	src := config.Rand
	if src == nil {
		src = rand.Reader
	}
	var etPriv [crypto.X25519KeySize]byte
	defer crypto.Erase(etPriv[:])
	if _, err := io.ReadFull(src, etPriv[:]); err != nil {
		return rsp, nil, err
	}
	etPub, err := p.X25519Base(etPriv[:])
	if err != nil {
		return rsp, nil, err
	}
	stPub, err := p.X25519Base(config.ChipPrivate[:])
	if err != nil {
		return rsp, nil, fmt.Errorf("%w: chip private key: %v", ErrInvalidKey, err)
	}

	ehPub := req.EphemeralPublic[:]
	ss1, err := p.X25519(etPriv[:], ehPub)
	if err != nil {
		return rsp, nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	ss2, err := p.X25519(etPriv[:], shiPub[:])
	if err != nil {
		crypto.Erase(ss1)
		return rsp, nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	ss3, err := p.X25519(config.ChipPrivate[:], ehPub)
	if err != nil {
		crypto.EraseAll(ss1, ss2)
		return rsp, nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	kAuth, keys, err := schedule(p, ss1, ss2, ss3)
	defer crypto.Erase(kAuth[:])
	if err != nil {
		keys.Erase()
		return rsp, nil, err
	}

	h := transcript(p, shiPub[:], stPub, ehPub, req.PairingSlot, etPub)
	tag, err := authTag(p, kAuth[:], h[:])
	if err != nil {
		keys.Erase()
		return rsp, nil, err
	}

	copy(rsp.EphemeralPublic[:], etPub)
	copy(rsp.AuthTag[:], tag)
	return rsp, &keys, nil
}
