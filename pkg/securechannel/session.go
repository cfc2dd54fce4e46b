// Package securechannel runs authenticated, encrypted commands on the chip.
//
// A Session owns the link to the chip and, once Start has completed the
// handshake, a pair of AES-GCM contexts with per-direction nonces. Every
// command is sealed into an L3 packet, carried over the link in chunks and
// answered by an authenticated result packet.
//
// Both nonces advance together after each authenticated result, except for
// FAIL and INVALID_CMD results, which leave them unchanged. They restart
// from zero only with a new handshake.
package securechannel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/backkem/selink/pkg/certstore"
	"github.com/backkem/selink/pkg/crypto"
	"github.com/backkem/selink/pkg/handshake"
	"github.com/backkem/selink/pkg/link"
	"github.com/backkem/selink/pkg/port"
	"github.com/pion/logging"
)

// CmdPing is the echo command.
const CmdPing uint8 = 0x01

// Config configures a Session.
type Config struct {
	// Link configures the framing layer. Link.Port is required.
	Link link.Config

	// Provider supplies the crypto primitives.
	// Default: crypto.Default()
	Provider crypto.Provider

	// LoggerFactory is the factory for creating loggers. It is also passed
	// to the link unless Link.LoggerFactory is set.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Link.Port == nil {
		return fmt.Errorf("%w: port is required", ErrInvalidConfig)
	}
	return c.Link.Validate()
}

func (c *Config) applyDefaults() error {
	if c.Provider == nil {
		p, err := crypto.Default()
		if err != nil {
			return err
		}
		c.Provider = p
	}
	if c.Link.LoggerFactory == nil {
		c.Link.LoggerFactory = c.LoggerFactory
	}
	return nil
}

// StartConfig selects the keys for a handshake.
type StartConfig struct {
	// HostPrivate is the host's pairing private key for PairingSlot.
	HostPrivate [crypto.X25519KeySize]byte

	// PairingSlot is the chip slot holding the host's public key (0-3).
	PairingSlot uint8

	// ChipPublic is the chip's static X25519 key. If nil it is read from the
	// device certificate in the chip's certificate store.
	ChipPublic *[crypto.X25519KeySize]byte

	// VerifyChain checks the certificate chain before trusting a key read
	// from the chip.
	VerifyChain bool

	// Rand is the source for the ephemeral key.
	// Default: the port's random source.
	Rand io.Reader
}

// Session is a handle to one chip. A Session is safe for concurrent use;
// methods serialize.
type Session struct {
	config Config
	port   port.Port
	link   *link.Link
	p      crypto.Provider
	log    logging.LeveledLogger

	mu        sync.Mutex
	closed    bool
	active    bool
	sendNonce Nonce
	recvNonce Nonce
	encrypt   crypto.AEAD
	decrypt   crypto.AEAD
	scratch   [ScratchSize]byte
}

// Open initializes the port and returns a Session without a secure
// channel.
func Open(ctx context.Context, config Config) (*Session, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := config.applyDefaults(); err != nil {
		return nil, err
	}

	l, err := link.New(config.Link)
	if err != nil {
		return nil, err
	}
	if err := config.Link.Port.Init(ctx); err != nil {
		return nil, fmt.Errorf("port init: %w", err)
	}

	s := &Session{
		config: config,
		port:   config.Link.Port,
		link:   l,
		p:      config.Provider,
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("securechannel")
	}
	return s, nil
}

// Link returns the framing layer for plain L2 requests.
func (s *Session) Link() *link.Link {
	return s.link
}

// Provider returns the crypto provider in use.
func (s *Session) Provider() crypto.Provider {
	return s.p
}

// Active reports whether a secure channel is established.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// ReadCertStore reads and parses the chip's certificate store.
func (s *Session) ReadCertStore(ctx context.Context) (*certstore.Store, error) {
	blob, err := s.link.ReadCertStore(ctx)
	if err != nil {
		return nil, err
	}
	return certstore.Parse(blob)
}

// Start runs the handshake. The keys of a previous session stay installed
// until the new keys are verified.
func (s *Session) Start(ctx context.Context, config StartConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if config.PairingSlot > handshake.MaxPairingSlot {
		return fmt.Errorf("%w: pairing slot %d", ErrInvalidConfig, config.PairingSlot)
	}

	chipPub, err := s.chipPublic(ctx, config)
	if err != nil {
		return err
	}
	src := config.Rand
	if src == nil {
		src = portReader{s.port}
	}

	hs, err := handshake.NewInitiator(handshake.InitiatorConfig{
		Provider:    s.p,
		HostPrivate: config.HostPrivate,
		ChipPublic:  chipPub,
		PairingSlot: config.PairingSlot,
		Rand:        src,
	})
	if err != nil {
		return err
	}
	req, err := hs.Start()
	if err != nil {
		return err
	}
	rsp, err := s.link.Handshake(ctx, req)
	if err != nil {
		hs.Abort()
		if errors.Is(err, link.ErrHandshake) {
			return s.handshakeFailed(config.PairingSlot, err)
		}
		return fmt.Errorf("handshake: %w", err)
	}
	keys, err := hs.Finish(rsp)
	if err != nil {
		if errors.Is(err, handshake.ErrHandshake) {
			return s.handshakeFailed(config.PairingSlot, err)
		}
		return err
	}
	defer keys.Erase()

	encrypt, err := s.p.NewAEAD(keys.Command[:])
	if err != nil {
		return err
	}
	decrypt, err := s.p.NewAEAD(keys.Result[:])
	if err != nil {
		encrypt.Destroy()
		return err
	}

	s.endSession()
	s.encrypt, s.decrypt = encrypt, decrypt
	s.active = true
	if s.log != nil {
		s.log.Infof("secure session established on slot %d", config.PairingSlot)
	}
	return nil
}

// handshakeFailed reports a refused handshake. The chip rejecting the
// pairing slot and the host rejecting the chip's proof look the same to the
// caller.
func (s *Session) handshakeFailed(slot uint8, err error) error {
	if s.log != nil {
		s.log.Warnf("handshake on slot %d failed: %v", slot, err)
	}
	return fmt.Errorf("%w: %w", ErrHandshake, err)
}

func (s *Session) chipPublic(ctx context.Context, config StartConfig) ([crypto.X25519KeySize]byte, error) {
	if config.ChipPublic != nil {
		return *config.ChipPublic, nil
	}
	store, err := s.ReadCertStore(ctx)
	if err != nil {
		return [crypto.X25519KeySize]byte{}, fmt.Errorf("read certificate store: %w", err)
	}
	if config.VerifyChain {
		if err := store.VerifyChain(s.p); err != nil {
			return [crypto.X25519KeySize]byte{}, err
		}
	}
	return store.StaticPublicKey()
}

// Execute sends cmd over the secure channel and returns the chip's result.
// A non-OK result is not an error here; see Response.Err.
func (s *Session) Execute(ctx context.Context, cmd Command) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return nil, ErrNoSession
	}
	if !s.sendNonce.CanAdvance() || !s.recvNonce.CanAdvance() {
		return nil, ErrNonceExhausted
	}
	defer clear(s.scratch[:])

	packet, err := sealPacket(s.scratch[:], s.encrypt, &s.sendNonce, cmd.ID, cmd.Data)
	if err != nil {
		return nil, err
	}
	if err := s.link.SendEncrypted(ctx, packet); err != nil {
		return nil, s.linkError(err)
	}
	n, err := s.link.ReceiveEncrypted(ctx, s.scratch[:])
	if err != nil {
		return nil, s.linkError(err)
	}

	code, data, err := openPacket(s.scratch[:n], s.decrypt, &s.recvNonce)
	if err != nil {
		return nil, err
	}
	result := ResultCode(code)
	if !result.IsValid() {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownResult, code)
	}
	if result.advancesNonce() {
		if err := s.sendNonce.Advance(); err != nil {
			return nil, err
		}
		if err := s.recvNonce.Advance(); err != nil {
			return nil, err
		}
	}
	if s.log != nil {
		s.log.Tracef("command 0x%02x: %s, %d bytes", cmd.ID, result, len(data))
	}
	return &Response{Result: result, Data: append([]byte(nil), data...)}, nil
}

// linkError drops the session when the chip reports it has none.
func (s *Session) linkError(err error) error {
	if errors.Is(err, link.ErrNoSession) {
		if s.log != nil {
			s.log.Warnf("chip has no session, dropping keys")
		}
		s.endSession()
	}
	return err
}

// Ping sends data to the chip and returns the echo.
func (s *Session) Ping(ctx context.Context, data []byte) ([]byte, error) {
	rsp, err := s.Execute(ctx, Command{ID: CmdPing, Data: data})
	if err != nil {
		return nil, err
	}
	if err := rsp.Err(); err != nil {
		return nil, err
	}
	return rsp.Data, nil
}

// Abort asks the chip to drop the session. Local keys are erased even if
// the request fails.
func (s *Session) Abort(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.endSession()
	return s.link.AbortSession(ctx)
}

// Close erases the session keys and deinitializes the port.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.endSession()
	return s.port.Deinit()
}

// endSession erases the channel state. Callers hold s.mu.
func (s *Session) endSession() {
	if s.encrypt != nil {
		s.encrypt.Destroy()
		s.encrypt = nil
	}
	if s.decrypt != nil {
		s.decrypt.Destroy()
		s.decrypt = nil
	}
	s.sendNonce.Reset()
	s.recvNonce.Reset()
	s.active = false
}

// portReader adapts the port's random source to io.Reader.
type portReader struct {
	p port.Port
}

func (r portReader) Read(b []byte) (int, error) {
	if err := r.p.Random(b); err != nil {
		return 0, err
	}
	return len(b), nil
}
