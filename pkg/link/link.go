// Package link implements the chip's L1 and L2 layers: CHIP_STATUS polling,
// CRC-protected frames, the bounded resend loop and chunked transport of
// encrypted L3 packets.
package link

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/backkem/selink/pkg/port"
	"github.com/pion/logging"
)

// Defaults.
const (
	DefaultReadMaxTries   = 50
	DefaultReadRetryDelay = 25 * time.Millisecond
	DefaultTimeout        = 70 * time.Millisecond

	// MaxResends bounds RESEND requests per exchange.
	MaxResends = 3

	// ChunkSize is the largest piece of an L3 packet carried by one frame.
	ChunkSize = MaxDataSize

	// MaxResponseChunks bounds the frames accepted for one L3 response.
	MaxResponseChunks = 17
)

// Config configures a Link.
type Config struct {
	// Port is the transport to the chip. Required. The Link does not call
	// Init or Deinit.
	Port port.Port

	// ReadMaxTries is the number of CHIP_STATUS polls before giving up.
	// Default: 50
	ReadMaxTries int

	// ReadRetryDelay is the wait between polls.
	// Default: 25ms
	ReadRetryDelay time.Duration

	// Timeout bounds a single port transfer.
	// Default: 70ms
	Timeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Port == nil {
		return fmt.Errorf("%w: port is required", ErrInvalidConfig)
	}
	if c.ReadMaxTries < 0 || c.ReadRetryDelay < 0 || c.Timeout < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.ReadMaxTries == 0 {
		c.ReadMaxTries = DefaultReadMaxTries
	}
	if c.ReadRetryDelay == 0 {
		c.ReadRetryDelay = DefaultReadRetryDelay
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
}

// Link drives L1/L2 traffic over a port. Methods serialize on an internal
// mutex; a Link owns one reusable frame buffer.
type Link struct {
	config Config
	port   port.Port
	log    logging.LeveledLogger

	mu   sync.Mutex
	buf  [MaxFrameSize]byte
	mode Mode
}

// New creates a Link.
func New(config Config) (*Link, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	l := &Link{config: config, port: config.Port}
	if config.LoggerFactory != nil {
		l.log = config.LoggerFactory.NewLogger("link")
	}
	return l, nil
}

// Port returns the underlying port.
func (l *Link) Port() port.Port {
	return l.port
}

// Mode returns the firmware mode seen in the most recent CHIP_STATUS.
func (l *Link) Mode() Mode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mode
}

// Exchange sends one request frame and returns the chip's response. Host
// CRC failures and CRC_ERR/GEN_ERR statuses are retried with RESEND up to
// MaxResends times; any other non-success status is returned as a
// *StatusError. Response data is a copy.
func (l *Link) Exchange(ctx context.Context, id ReqID, data []byte) (Response, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exchange(ctx, id, data)
}

func (l *Link) exchange(ctx context.Context, id ReqID, data []byte) (Response, error) {
	if err := l.write(ctx, id, data); err != nil {
		return Response{}, err
	}
	return l.receive(ctx, id)
}

// receive reads one response, applying the resend policy.
func (l *Link) receive(ctx context.Context, id ReqID) (Response, error) {
	for resends := 0; ; resends++ {
		rsp, err := l.read(ctx)
		switch {
		case err == nil && !rsp.Status.resendable():
			if !rsp.Status.IsSuccess() {
				return Response{}, &StatusError{Request: id, Status: rsp.Status}
			}
			rsp.Data = append([]byte(nil), rsp.Data...)
			return rsp, nil

		case err == nil:
			err = &StatusError{Request: id, Status: rsp.Status}

		case !errors.Is(err, ErrResponseCRC) && !errors.Is(err, ErrInvalidFrame):
			return Response{}, err
		}

		if resends == MaxResends {
			return Response{}, err
		}
		if l.log != nil {
			l.log.Debugf("%s: %v, requesting resend %d/%d", id, err, resends+1, MaxResends)
		}
		if err := l.write(ctx, ReqResend, nil); err != nil {
			return Response{}, err
		}
	}
}

// receiveOnce reads one response without the resend policy. A host CRC
// failure returns ErrResponseCRC and a CRC_ERR or GEN_ERR status returns a
// *StatusError. The returned data aliases l.buf.
func (l *Link) receiveOnce(ctx context.Context, id ReqID) (Response, error) {
	rsp, err := l.read(ctx)
	if err != nil {
		return Response{}, err
	}
	if !rsp.Status.IsSuccess() {
		return Response{}, &StatusError{Request: id, Status: rsp.Status}
	}
	return rsp, nil
}

// write sends one request frame in a single chip-select transaction.
func (l *Link) write(ctx context.Context, id ReqID, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	frame, err := AppendRequest(l.buf[:0], id, data)
	if err != nil {
		return err
	}
	if l.log != nil {
		l.log.Tracef("write %s len=%d", id, len(data))
	}

	if err := l.port.SelectChip(); err != nil {
		return err
	}
	err = l.port.Transfer(frame, l.config.Timeout)
	if derr := l.port.DeselectChip(); err == nil {
		err = derr
	}
	if err != nil {
		return err
	}
	// The first MISO byte of every transaction is CHIP_STATUS.
	return l.observe(frame[0])
}

func (l *Link) observe(chipStatus byte) error {
	if chipStatus&ChipStatusAlarm != 0 {
		return ErrAlarm
	}
	if chipStatus&ChipStatusStart != 0 {
		l.mode = ModeMaintenance
	} else if chipStatus&ChipStatusReady != 0 {
		l.mode = ModeApplication
	}
	return nil
}

// read polls CHIP_STATUS until a response is available and reads it into
// l.buf. The returned data aliases l.buf.
func (l *Link) read(ctx context.Context) (Response, error) {
	for try := 0; try < l.config.ReadMaxTries; try++ {
		if err := ctx.Err(); err != nil {
			return Response{}, err
		}

		rsp, ready, err := l.readOnce()
		if err != nil || ready {
			return rsp, err
		}
		if err := l.port.Delay(l.config.ReadRetryDelay); err != nil {
			return Response{}, err
		}
	}
	return Response{}, fmt.Errorf("%w after %d polls", ErrChipBusy, l.config.ReadMaxTries)
}

// readOnce runs one GET_RESPONSE transaction. ready is false when the chip
// has nothing to return yet.
func (l *Link) readOnce() (rsp Response, ready bool, err error) {
	if err := l.port.SelectChip(); err != nil {
		return Response{}, false, err
	}
	defer func() {
		if derr := l.port.DeselectChip(); err == nil {
			err = derr
		}
	}()

	b := l.buf[:]
	b[0] = GetResponse
	if err := l.port.Transfer(b[:1], l.config.Timeout); err != nil {
		return Response{}, false, err
	}
	if err := l.observe(b[0]); err != nil {
		return Response{}, false, err
	}
	if b[0]&ChipStatusReady == 0 {
		return Response{}, false, nil
	}

	hdr := b[1 : 1+FrameHeaderSize]
	clear(hdr)
	if err := l.port.Transfer(hdr, l.config.Timeout); err != nil {
		return Response{}, false, err
	}
	if Status(hdr[0]) == StatusNoResp {
		return Response{}, false, nil
	}
	n := int(hdr[1])
	if n > MaxDataSize {
		return Response{}, true, fmt.Errorf("%w: length %d", ErrInvalidFrame, n)
	}

	rest := b[1+FrameHeaderSize : 1+FrameHeaderSize+n+CRCSize]
	clear(rest)
	if err := l.port.Transfer(rest, l.config.Timeout); err != nil {
		return Response{}, false, err
	}

	rsp, err = ParseResponse(b[1 : 1+FrameHeaderSize+n+CRCSize])
	if l.log != nil && err == nil {
		l.log.Tracef("read %s len=%d", rsp.Status, len(rsp.Data))
	}
	return rsp, true, err
}

// SendEncrypted splits an encrypted L3 packet into ENCRYPTED_CMD frames.
// The chip acknowledges every chunk but the last with REQ_CONT and the
// last with REQ_OK. Encrypted traffic is never resent: a corrupted
// acknowledgement fails the call.
func (l *Link) SendEncrypted(ctx context.Context, packet []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for off := 0; ; off += ChunkSize {
		end := min(off+ChunkSize, len(packet))
		last := end == len(packet)

		if err := l.write(ctx, ReqEncryptedCmd, packet[off:end]); err != nil {
			return err
		}
		rsp, err := l.receiveOnce(ctx, ReqEncryptedCmd)
		if err != nil {
			return err
		}
		want := StatusReqCont
		if last {
			want = StatusReqOK
		}
		if rsp.Status != want {
			return fmt.Errorf("%w: chunk at %d acked %s, want %s", ErrUnexpectedStatus, off, rsp.Status, want)
		}
		if last {
			return nil
		}
	}
}

// ReceiveEncrypted reassembles an encrypted L3 packet into dst and returns
// its length. The chip sends RES_CONT for every chunk but the last and
// RES_OK for the last. As with SendEncrypted, a corrupted chunk is not
// resent.
func (l *Link) ReceiveEncrypted(ctx context.Context, dst []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for range MaxResponseChunks {
		rsp, err := l.receiveOnce(ctx, ReqEncryptedCmd)
		if err != nil {
			return 0, err
		}
		if rsp.Status != StatusResCont && rsp.Status != StatusResOK {
			return 0, fmt.Errorf("%w: response chunk %s", ErrUnexpectedStatus, rsp.Status)
		}
		if n+len(rsp.Data) > len(dst) {
			return 0, fmt.Errorf("%w: %d bytes into %d", ErrBufferOverflow, n+len(rsp.Data), len(dst))
		}
		n += copy(dst[n:], rsp.Data)
		if rsp.Status == StatusResOK {
			return n, nil
		}
	}
	return 0, fmt.Errorf("%w: more than %d", ErrTooManyChunks, MaxResponseChunks)
}
