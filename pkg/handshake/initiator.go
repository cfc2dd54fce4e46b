package handshake

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"

	"github.com/backkem/selink/pkg/crypto"
	"github.com/backkem/selink/pkg/link"
)

// InitiatorConfig holds the host side's long-term inputs.
type InitiatorConfig struct {
	// Provider supplies the primitives. Required.
	Provider crypto.Provider

	// HostPrivate is the pairing key for the slot (SHiPriv).
	HostPrivate [crypto.X25519KeySize]byte

	// ChipPublic is the chip's static key from its certificate (STPub).
	ChipPublic [crypto.X25519KeySize]byte

	// PairingSlot selects which of the chip's pairing keys to use.
	PairingSlot uint8

	// Rand is the source for the ephemeral key. Default: crypto/rand.
	Rand io.Reader
}

// Initiator runs the host half of one handshake. It is single-use.
type Initiator struct {
	config InitiatorConfig
	p      crypto.Provider

	mu     sync.Mutex
	state  State
	shiPub [crypto.X25519KeySize]byte
	ehPriv [crypto.X25519KeySize]byte
	ehPub  [crypto.X25519KeySize]byte
}

// NewInitiator validates config and derives the host's static public key.
func NewInitiator(config InitiatorConfig) (*Initiator, error) {
	if config.Provider == nil {
		return nil, fmt.Errorf("%w: no provider", ErrInvalidKey)
	}
	if config.PairingSlot > MaxPairingSlot {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSlot, config.PairingSlot)
	}
	if config.Rand == nil {
		config.Rand = rand.Reader
	}

	pub, err := config.Provider.X25519Base(config.HostPrivate[:])
	if err != nil {
		return nil, fmt.Errorf("%w: host private key: %v", ErrInvalidKey, err)
	}

	i := &Initiator{config: config, p: config.Provider}
	copy(i.shiPub[:], pub)
	return i, nil
}

// State returns the current state.
func (i *Initiator) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// HostPublic returns SHiPub.
func (i *Initiator) HostPublic() [crypto.X25519KeySize]byte {
	return i.shiPub
}

// Start generates the ephemeral key pair and returns the handshake request.
func (i *Initiator) Start() (link.HandshakeRequest, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	var req link.HandshakeRequest
	if i.state != StateIdle {
		return req, fmt.Errorf("%w: Start in %s", ErrInvalidState, i.state)
	}

	if _, err := io.ReadFull(i.config.Rand, i.ehPriv[:]); err != nil {
		i.fail()
		return req, err
	}
	pub, err := i.p.X25519Base(i.ehPriv[:])
	if err != nil {
		i.fail()
		return req, err
	}
	copy(i.ehPub[:], pub)
	i.state = StateEphemeralKeyGenerated

	req.EphemeralPublic = i.ehPub
	req.PairingSlot = i.config.PairingSlot
	i.state = StateRequestSent
	return req, nil
}

// Finish processes the chip's response. On success the caller owns the
// returned keys and must Erase them. The ephemeral private key is erased on
// every path.
func (i *Initiator) Finish(rsp link.HandshakeResponse) (*SessionKeys, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.state != StateRequestSent {
		return nil, fmt.Errorf("%w: Finish in %s", ErrInvalidState, i.state)
	}
	defer crypto.Erase(i.ehPriv[:])
	i.state = StateResponseReceived

	etPub := rsp.EphemeralPublic[:]
	ss1, err := i.p.X25519(i.ehPriv[:], etPub)
	if err != nil {
		i.fail()
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	ss2, err := i.p.X25519(i.config.HostPrivate[:], etPub)
	if err != nil {
		crypto.Erase(ss1)
		i.fail()
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	ss3, err := i.p.X25519(i.ehPriv[:], i.config.ChipPublic[:])
	if err != nil {
		crypto.EraseAll(ss1, ss2)
		i.fail()
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	kAuth, keys, err := schedule(i.p, ss1, ss2, ss3)
	defer crypto.Erase(kAuth[:])
	if err != nil {
		keys.Erase()
		i.fail()
		return nil, err
	}
	i.state = StateKeysDerived

	h := transcript(i.p, i.shiPub[:], i.config.ChipPublic[:], i.ehPub[:], i.config.PairingSlot, etPub)
	if err := verifyAuthTag(i.p, kAuth[:], h[:], rsp.AuthTag[:]); err != nil {
		keys.Erase()
		i.fail()
		return nil, err
	}
	i.state = StateAuthVerified

	i.state = StateSessionActive
	return &keys, nil
}

// Abort abandons the handshake and erases the ephemeral key.
func (i *Initiator) Abort() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != StateSessionActive {
		i.fail()
	}
}

func (i *Initiator) fail() {
	crypto.Erase(i.ehPriv[:])
	i.state = StateFailed
}
