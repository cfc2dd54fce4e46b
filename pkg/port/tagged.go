package port

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
)

// DefaultTimeout bounds a tagged round trip when the caller passes zero.
const DefaultTimeout = 5 * time.Second

// taggedConn is the connection a tagged port runs over. setTimeout applies
// to the next round trip; zero means no limit.
type taggedConn struct {
	rw         io.ReadWriteCloser
	setTimeout func(time.Duration) error
}

// taggedPort implements the chip-facing Port operations over the tagged
// protocol. TCP and UART wrap it and supply the connection.
type taggedPort struct {
	mu       sync.Mutex
	conn     *taggedConn
	reader   *Reader
	selected bool
	closed   bool
	rand     io.Reader
	log      logging.LeveledLogger
}

func (p *taggedPort) attach(c *taggedConn) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.conn != nil {
		return ErrAlreadyInitialized
	}
	p.conn = c
	p.reader = NewReader(c.rw)
	p.selected = false
	return nil
}

// Deinit closes the connection.
func (p *taggedPort) Deinit() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.selected = false
	if p.conn == nil {
		return nil
	}
	if p.log != nil {
		p.log.Debug("closing port")
	}
	return p.conn.rw.Close()
}

// SelectChip asserts chip select.
func (p *taggedPort) SelectChip() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.roundTrip(TagCSNLow, nil, DefaultTimeout); err != nil {
		return err
	}
	p.selected = true
	return nil
}

// DeselectChip releases chip select.
func (p *taggedPort) DeselectChip() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.roundTrip(TagCSNHigh, nil, DefaultTimeout); err != nil {
		return err
	}
	p.selected = false
	return nil
}

// Transfer clocks buf through the bridge in MaxPayloadSize pieces.
func (p *taggedPort) Transfer(buf []byte, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.selected {
		return ErrNotSelected
	}
	for off := 0; off < len(buf); off += MaxPayloadSize {
		end := min(off+MaxPayloadSize, len(buf))
		miso, err := p.roundTrip(TagSPISend, buf[off:end], timeout)
		if err != nil {
			return err
		}
		if len(miso) != end-off {
			return fmt.Errorf("%w: sent %d bytes, received %d", ErrProtocol, end-off, len(miso))
		}
		copy(buf[off:end], miso)
	}
	return nil
}

// Delay asks the bridge to wait for d, which keeps bridge-side timing
// consistent with the target.
func (p *taggedPort) Delay(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var ms [4]byte
	binary.LittleEndian.PutUint32(ms[:], uint32(d.Milliseconds()))
	_, err := p.roundTrip(TagWait, ms[:], d+DefaultTimeout)
	return err
}

// Random fills buf from the configured source, crypto/rand by default.
func (p *taggedPort) Random(buf []byte) error {
	src := p.rand
	if src == nil {
		src = rand.Reader
	}
	_, err := io.ReadFull(src, buf)
	return err
}

// PowerOn powers the target.
func (p *taggedPort) PowerOn() error {
	return p.simple(TagPowerOn)
}

// PowerOff removes target power.
func (p *taggedPort) PowerOff() error {
	return p.simple(TagPowerOff)
}

// ResetTarget power-cycles the target.
func (p *taggedPort) ResetTarget() error {
	return p.simple(TagResetTarget)
}

func (p *taggedPort) simple(tag Tag) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, err := p.roundTrip(tag, nil, DefaultTimeout)
	return err
}

// roundTrip sends one message and waits for the echoed reply. Callers hold
// p.mu.
func (p *taggedPort) roundTrip(tag Tag, payload []byte, timeout time.Duration) ([]byte, error) {
	if p.closed {
		return nil, ErrClosed
	}
	if p.conn == nil {
		return nil, ErrNotInitialized
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if p.conn.setTimeout != nil {
		if err := p.conn.setTimeout(timeout); err != nil {
			return nil, err
		}
	}

	if err := WriteMessage(p.conn.rw, Message{Tag: tag, Payload: payload}); err != nil {
		return nil, mapIOError(err)
	}
	rsp, err := p.reader.ReadMessage()
	if err != nil {
		return nil, mapIOError(err)
	}

	switch rsp.Tag {
	case tag:
		return rsp.Payload, nil
	case TagUnsupported:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, tag)
	case TagInvalid:
		return nil, fmt.Errorf("%w: peer rejected %s", ErrProtocol, tag)
	default:
		return nil, fmt.Errorf("%w: sent %s, reply %s", ErrProtocol, tag, rsp.Tag)
	}
}

func mapIOError(err error) error {
	var ne net.Error
	switch {
	case errors.As(err, &ne) && ne.Timeout():
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, net.ErrClosed), errors.Is(err, io.EOF):
		return fmt.Errorf("%w: %v", ErrClosed, err)
	default:
		return err
	}
}

// deadlineTimeout adapts a net.Conn deadline to the per-round-trip timeout.
func deadlineTimeout(c net.Conn) func(time.Duration) error {
	return func(d time.Duration) error {
		return c.SetDeadline(time.Now().Add(d))
	}
}
