package port

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"
)

// PipeConfig configures a Pipe.
type PipeConfig struct {
	// ProcessInterval is how often queued packets are delivered.
	// Default: 1ms
	ProcessInterval time.Duration
}

// Pipe is an in-memory connection pair built on pion's test.Bridge. End 0
// is conventionally the host, end 1 the chip model. Packets are delivered
// by a background goroutine until Close.
type Pipe struct {
	bridge *test.Bridge
	conns  [2]*PipeConn

	mu     sync.Mutex
	closed bool
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewPipe creates a pipe with the default configuration.
func NewPipe() *Pipe {
	return NewPipeWithConfig(PipeConfig{})
}

// NewPipeWithConfig creates a pipe.
func NewPipeWithConfig(config PipeConfig) *Pipe {
	if config.ProcessInterval == 0 {
		config.ProcessInterval = time.Millisecond
	}

	p := &Pipe{
		bridge: test.NewBridge(),
		stopCh: make(chan struct{}),
	}
	p.conns[0] = &PipeConn{conn: p.bridge.GetConn0(), local: PipeAddr{ID: 0}, remote: PipeAddr{ID: 1}}
	p.conns[1] = &PipeConn{conn: p.bridge.GetConn1(), local: PipeAddr{ID: 1}, remote: PipeAddr{ID: 0}}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(config.ProcessInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				for p.bridge.Tick() > 0 {
				}
			}
		}
	}()

	return p
}

// Host returns end 0.
func (p *Pipe) Host() net.Conn {
	return p.conns[0]
}

// Device returns end 1.
func (p *Pipe) Device() net.Conn {
	return p.conns[1]
}

// Close stops delivery and closes both ends.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()

	err0 := p.conns[0].Close()
	err1 := p.conns[1].Close()
	if err0 != nil {
		return err0
	}
	return err1
}

// PipeAddr implements net.Addr for pipe endpoints.
type PipeAddr struct {
	ID int
}

// Network returns "pipe".
func (a PipeAddr) Network() string { return "pipe" }

// String returns a string representation of the address.
func (a PipeAddr) String() string { return fmt.Sprintf("pipe:%d", a.ID) }

// PipeConn is one end of a Pipe. Every Write is delivered as one packet.
// Deadlines are accepted but not enforced.
type PipeConn struct {
	conn   net.Conn
	local  PipeAddr
	remote PipeAddr
}

// Read reads one packet. Packets larger than b are truncated.
func (c *PipeConn) Read(b []byte) (int, error) {
	return c.conn.Read(b)
}

// Write sends b as one packet.
func (c *PipeConn) Write(b []byte) (int, error) {
	return c.conn.Write(b)
}

// Close closes this end.
func (c *PipeConn) Close() error {
	return c.conn.Close()
}

// LocalAddr returns the local address.
func (c *PipeConn) LocalAddr() net.Addr { return c.local }

// RemoteAddr returns the peer address.
func (c *PipeConn) RemoteAddr() net.Addr { return c.remote }

// SetDeadline is a no-op.
func (c *PipeConn) SetDeadline(time.Time) error { return nil }

// SetReadDeadline is a no-op.
func (c *PipeConn) SetReadDeadline(time.Time) error { return nil }

// SetWriteDeadline is a no-op.
func (c *PipeConn) SetWriteDeadline(time.Time) error { return nil }

// Verify PipeConn implements net.Conn.
var _ net.Conn = (*PipeConn)(nil)
