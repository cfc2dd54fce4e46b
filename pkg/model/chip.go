// Package model is a software model of the secure element.
//
// A Chip is an SPI slave: it implements port.Port directly, so a link can
// drive it in process, and a Server exposes it over the tagged protocol
// for TCP and pipe connections. The model implements the L2 request set,
// the handshake responder, the encrypted L3 channel with a small command
// set, pairing key slots and fault injection for the framing layer.
package model

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/backkem/selink/pkg/crypto"
	"github.com/backkem/selink/pkg/handshake"
	"github.com/backkem/selink/pkg/link"
	"github.com/backkem/selink/pkg/port"
	"github.com/pion/logging"
)

// ChipIDSize is the size of the chip identification object.
const ChipIDSize = 128

// maxLogSize bounds the firmware log buffer.
const maxLogSize = 1024

// Config configures a Chip.
type Config struct {
	// Provider supplies the crypto primitives.
	// Default: crypto.Default()
	Provider crypto.Provider

	// Rand is the source for keys, certificates and RANDOM_VALUE_GET.
	// Default: crypto/rand
	Rand io.Reader

	// PairingKeys preloads pairing slots with host public keys.
	PairingKeys map[uint8][crypto.X25519KeySize]byte

	// ChipID is the identification object. Default: a generated serial.
	ChipID []byte

	// FirmwareVersion is returned for both firmware info objects.
	FirmwareVersion [4]byte

	// Maintenance starts the chip in maintenance firmware.
	Maintenance bool

	// LogDisabled makes GET_LOG answer RESP_DISABLED.
	LogDisabled bool

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	for slot := range c.PairingKeys {
		if slot > handshake.MaxPairingSlot {
			return fmt.Errorf("%w: pairing slot %d", ErrInvalidConfig, slot)
		}
	}
	if len(c.ChipID) > ChipIDSize {
		return fmt.Errorf("%w: chip id is %d bytes", ErrInvalidConfig, len(c.ChipID))
	}
	return nil
}

func (c *Config) applyDefaults() error {
	if c.Provider == nil {
		p, err := crypto.Default()
		if err != nil {
			return err
		}
		c.Provider = p
	}
	if c.Rand == nil {
		c.Rand = rand.Reader
	}
	if c.FirmwareVersion == [4]byte{} {
		c.FirmwareVersion = [4]byte{0, 1, 0, 0}
	}
	return nil
}

// Stats counts chip activity.
type Stats struct {
	Requests   int
	Reads      int
	Resends    int
	Handshakes int
	Commands   int
}

type slotState uint8

const (
	slotEmpty slotState = iota
	slotWritten
	slotInvalidated
)

type pairingSlot struct {
	state slotState
	key   [crypto.X25519KeySize]byte
}

// Chip is the chip model. All methods are safe for concurrent use.
type Chip struct {
	config Config
	p      crypto.Provider
	log    logging.LeveledLogger

	static    [crypto.X25519KeySize]byte
	staticPub [crypto.X25519KeySize]byte
	certStore []byte
	chipID    []byte

	mu          sync.Mutex
	powered     bool
	maintenance bool
	selected    bool
	txn         []byte
	out         []byte
	queue       [][]byte
	last        []byte
	held        [][]byte
	slots       [handshake.MaxPairingSlot + 1]pairingSlot
	session     *chipSession
	packet      []byte
	fwLog       []byte
	commands    map[uint8]CommandFunc
	faults      Faults
	stats       Stats
}

// New creates a powered-on chip with a fresh static key and certificate
// store.
func New(config Config) (*Chip, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := config.applyDefaults(); err != nil {
		return nil, err
	}

	static, err := ecdh.X25519().GenerateKey(config.Rand)
	if err != nil {
		return nil, err
	}

	c := &Chip{
		config:      config,
		p:           config.Provider,
		powered:     true,
		maintenance: config.Maintenance,
		commands:    make(map[uint8]CommandFunc),
	}
	copy(c.static[:], static.Bytes())
	copy(c.staticPub[:], static.PublicKey().Bytes())

	c.chipID = make([]byte, ChipIDSize)
	if config.ChipID != nil {
		copy(c.chipID, config.ChipID)
	} else if _, err := io.ReadFull(config.Rand, c.chipID[:16]); err != nil {
		return nil, err
	}

	c.certStore, err = issueCertStore(config.Rand, static, c.chipID[:16])
	if err != nil {
		return nil, err
	}

	for slot, key := range config.PairingKeys {
		c.slots[slot] = pairingSlot{state: slotWritten, key: key}
	}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("model")
	}
	return c, nil
}

// StaticPublicKey returns the chip's static X25519 public key.
func (c *Chip) StaticPublicKey() [crypto.X25519KeySize]byte {
	return c.staticPub
}

// CertStore returns a copy of the certificate store blob.
func (c *Chip) CertStore() []byte {
	return append([]byte(nil), c.certStore...)
}

// ChipID returns a copy of the identification object.
func (c *Chip) ChipID() []byte {
	return append([]byte(nil), c.chipID...)
}

// FirmwareVersion returns the version reported for both firmware objects.
func (c *Chip) FirmwareVersion() [4]byte {
	return c.config.FirmwareVersion
}

// SetPairingKey writes a host public key into slot.
func (c *Chip) SetPairingKey(slot uint8, key [crypto.X25519KeySize]byte) error {
	if slot > handshake.MaxPairingSlot {
		return fmt.Errorf("%w: pairing slot %d", ErrInvalidConfig, slot)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots[slot] = pairingSlot{state: slotWritten, key: key}
	return nil
}

// HasSession reports whether the chip holds a secure session.
func (c *Chip) HasSession() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// Maintenance reports whether the chip runs maintenance firmware.
func (c *Chip) Maintenance() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maintenance
}

// Stats returns the activity counters.
func (c *Chip) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Init implements port.Port. The chip needs no setup.
func (c *Chip) Init(ctx context.Context) error {
	return ctx.Err()
}

// Deinit implements port.Port.
func (c *Chip) Deinit() error {
	return nil
}

// Delay implements port.Port. The model answers immediately, so no time
// needs to pass.
func (c *Chip) Delay(time.Duration) error {
	return nil
}

// Random implements port.Port with the configured source.
func (c *Chip) Random(b []byte) error {
	_, err := io.ReadFull(c.config.Rand, b)
	return err
}

// PowerOn powers the chip into application firmware.
func (c *Chip) PowerOn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.powered {
		c.powered = true
		c.maintenance = c.config.Maintenance
	}
}

// PowerOff removes power. The session and pending responses are lost.
func (c *Chip) PowerOff() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.powered = false
	c.reset()
}

// Reset power cycles the chip.
func (c *Chip) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
	c.powered = true
	c.maintenance = c.config.Maintenance
}

// reset drops all volatile state. Callers hold c.mu.
func (c *Chip) reset() {
	c.endSession()
	c.selected = false
	c.txn = c.txn[:0]
	c.out = nil
	c.queue = nil
	c.last = nil
	c.held = nil
}

// SelectChip implements port.Port (CSN low).
func (c *Chip) SelectChip() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = true
	c.txn = c.txn[:0]
	c.out = nil
	return nil
}

// chipStatus returns the CHIP_STATUS byte. Callers hold c.mu.
func (c *Chip) chipStatus() byte {
	if !c.powered {
		return 0
	}
	var s byte
	if c.faults.Alarm {
		s |= link.ChipStatusAlarm
	}
	if c.maintenance {
		s |= link.ChipStatusStart
	}
	if c.faults.BusyPolls == 0 {
		s |= link.ChipStatusReady
	}
	return s
}

// Transfer implements port.Port. The first MISO byte of a transaction is
// CHIP_STATUS; after a GET_RESPONSE byte the pending response frame
// follows.
func (c *Chip) Transfer(buf []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.selected {
		return port.ErrNotSelected
	}

	for i, mosi := range buf {
		pos := len(c.txn)
		c.txn = append(c.txn, mosi)
		if pos == 0 {
			buf[i] = c.chipStatus()
			if mosi == link.GetResponse {
				c.startRead(buf[i])
			}
			continue
		}
		if pos-1 < len(c.out) {
			buf[i] = c.out[pos-1]
		} else {
			buf[i] = 0
		}
	}
	return nil
}

// noResponse is the frame header read while nothing is pending.
var noResponse = []byte{byte(link.StatusNoResp), 0}

// startRead selects the frame a GET_RESPONSE transaction returns.
func (c *Chip) startRead(status byte) {
	c.stats.Reads++
	if status&link.ChipStatusReady == 0 {
		if c.faults.BusyPolls > 0 {
			c.faults.BusyPolls--
		}
		return
	}
	if len(c.queue) == 0 {
		c.out = noResponse
		return
	}

	frame := c.queue[0]
	c.queue = c.queue[1:]
	c.last = frame
	c.out = frame
	if c.faults.CorruptResponses > 0 {
		c.faults.CorruptResponses--
		c.out = append([]byte(nil), frame...)
		c.out[len(c.out)-1] ^= 0xFF
	}
}

// DeselectChip implements port.Port (CSN high). A completed request frame
// is processed here.
func (c *Chip) DeselectChip() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = false
	if !c.powered || len(c.txn) == 0 || c.txn[0] == link.GetResponse {
		return nil
	}

	req, err := link.ParseRequest(c.txn)
	if err == nil && req.ID == link.ReqResend {
		c.stats.Requests++
		c.stats.Resends++
		switch {
		case len(c.held) > 0:
			c.queue = append(c.held, c.queue...)
			c.held = nil
		case c.last != nil:
			c.queue = append([][]byte{c.last}, c.queue...)
		}
		return nil
	}

	// A new request replaces any response the host left unread.
	c.queue = nil
	c.held = nil
	if err != nil {
		if c.log != nil {
			c.log.Debugf("rejecting request frame: %v", err)
		}
		c.queue = append(c.queue, statusFrame(link.StatusCRCErr))
		return nil
	}
	c.stats.Requests++

	frames := c.handle(req)
	if c.faults.StatusErrors > 0 {
		c.faults.StatusErrors--
		c.held = frames
		c.queue = append(c.queue, statusFrame(c.faults.errorStatus()))
		return nil
	}
	c.queue = append(c.queue, frames...)
	return nil
}

func statusFrame(status link.Status) []byte {
	return frame(status, nil)
}

func frame(status link.Status, data []byte) []byte {
	b, err := link.AppendResponse(make([]byte, 0, link.MaxL2FrameSize), status, data)
	if err != nil {
		// Callers never pass more than link.MaxDataSize bytes.
		panic(err)
	}
	return b
}

// logf appends a line to the firmware log and the model logger.
func (c *Chip) logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	c.fwLog = append(c.fwLog, line...)
	c.fwLog = append(c.fwLog, '\n')
	if len(c.fwLog) > maxLogSize {
		c.fwLog = append(c.fwLog[:0], c.fwLog[len(c.fwLog)-maxLogSize:]...)
	}
	if c.log != nil {
		c.log.Debug(line)
	}
}

var _ port.Port = (*Chip)(nil)
