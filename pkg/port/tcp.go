package port

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/pion/logging"
)

// TCPConfig configures a TCP port.
type TCPConfig struct {
	// Addr is the host:port of the chip model or bridge. Ignored if Conn is
	// set.
	Addr string

	// Conn is an optional pre-established connection. Tests pass one end of
	// a Pipe here.
	Conn net.Conn

	// DialTimeout bounds connection establishment.
	// Default: 5s
	DialTimeout time.Duration

	// Rand overrides the randomness source. Default: crypto/rand.
	Rand io.Reader

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Validate checks the configuration.
func (c *TCPConfig) Validate() error {
	if c.Conn == nil && c.Addr == "" {
		return fmt.Errorf("%w: TCP port needs Addr or Conn", ErrInvalidConfig)
	}
	return nil
}

func (c *TCPConfig) applyDefaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
}

// TCP is a Port that talks to a chip model or bridge over TCP.
type TCP struct {
	taggedPort
	config TCPConfig
}

// NewTCP creates a TCP port. The connection is opened by Init.
func NewTCP(config TCPConfig) (*TCP, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	t := &TCP{config: config}
	t.rand = config.Rand
	if config.LoggerFactory != nil {
		t.log = config.LoggerFactory.NewLogger("port-tcp")
	}
	return t, nil
}

// Init connects to the configured address.
func (t *TCP) Init(ctx context.Context) error {
	conn := t.config.Conn
	if conn == nil {
		d := net.Dialer{Timeout: t.config.DialTimeout}
		var err error
		conn, err = d.DialContext(ctx, "tcp", t.config.Addr)
		if err != nil {
			return err
		}
	}
	if err := t.attach(&taggedConn{rw: conn, setTimeout: deadlineTimeout(conn)}); err != nil {
		if t.config.Conn == nil {
			conn.Close()
		}
		return err
	}
	if t.log != nil {
		t.log.Infof("connected to %s", conn.RemoteAddr())
	}
	return nil
}

// Verify TCP implements Port.
var _ Port = (*TCP)(nil)
