package link

import (
	"context"
	"sync"
	"time"

	"github.com/backkem/selink/pkg/port"
)

// fakeChip is a scripted SPI slave. Request frames written by the host are
// passed to handler, whose response frames are queued for GET_RESPONSE
// reads. RESEND re-queues the last response.
type fakeChip struct {
	mu sync.Mutex

	handler func(req Request) []Response

	selected  bool
	txn       []byte
	out       []byte
	queue     [][]byte
	last      []byte
	requests  []Request
	reads     int
	transfers int

	// busy is the number of polls answered with READY clear.
	busy int
	// corrupt is the number of response frames delivered with a bad CRC.
	corrupt int
	alarm   bool
	start   bool
}

func newFakeChip(handler func(Request) []Response) *fakeChip {
	return &fakeChip{handler: handler}
}

func (c *fakeChip) Init(context.Context) error { return nil }
func (c *fakeChip) Deinit() error              { return nil }
func (c *fakeChip) Random(b []byte) error      { clear(b); return nil }
func (c *fakeChip) Delay(time.Duration) error  { return nil }

func (c *fakeChip) SelectChip() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = true
	c.txn = c.txn[:0]
	c.out = nil
	return nil
}

func (c *fakeChip) chipStatus() byte {
	var s byte
	if c.alarm {
		s |= ChipStatusAlarm
	}
	if c.start {
		s |= ChipStatusStart
	}
	if len(c.queue) > 0 && c.busy == 0 {
		s |= ChipStatusReady
	}
	return s
}

func (c *fakeChip) Transfer(buf []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.selected {
		return port.ErrNotSelected
	}
	c.transfers++

	for i, mosi := range buf {
		pos := len(c.txn)
		c.txn = append(c.txn, mosi)
		if pos == 0 {
			buf[i] = c.chipStatus()
			if mosi == GetResponse {
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

func (c *fakeChip) startRead(status byte) {
	c.reads++
	if status&ChipStatusReady == 0 {
		if c.busy > 0 {
			c.busy--
		}
		return
	}
	frame := c.queue[0]
	c.queue = c.queue[1:]
	c.last = frame
	c.out = append([]byte(nil), frame...)
	if c.corrupt > 0 {
		c.corrupt--
		c.out[len(c.out)-1] ^= 0xFF
	}
}

func (c *fakeChip) DeselectChip() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = false
	if len(c.txn) == 0 || c.txn[0] == GetResponse {
		return nil
	}

	req, err := ParseRequest(c.txn)
	if err != nil {
		c.queue = append(c.queue, mustFrame(StatusCRCErr, nil))
		return nil
	}
	req.Data = append([]byte(nil), req.Data...)
	c.requests = append(c.requests, req)

	if req.ID == ReqResend {
		if c.last != nil {
			c.queue = append(c.queue, c.last)
		}
		return nil
	}
	for _, rsp := range c.handler(req) {
		c.queue = append(c.queue, mustFrame(rsp.Status, rsp.Data))
	}
	return nil
}

func mustFrame(status Status, data []byte) []byte {
	b, err := AppendResponse(nil, status, data)
	if err != nil {
		panic(err)
	}
	return b
}

var _ port.Port = (*fakeChip)(nil)
