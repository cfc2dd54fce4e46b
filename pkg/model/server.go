package model

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/backkem/selink/pkg/port"
	"github.com/pion/logging"
)

const (
	// DefaultListenAddr is where cmd/selink-model listens and cmd/selink
	// connects by default.
	DefaultListenAddr = "127.0.0.1:28992"

	// MaxWait bounds a single WAIT request.
	MaxWait = 10 * time.Second
)

// ServerConfig configures a Server.
type ServerConfig struct {
	// Chip is the model served on every connection. Required.
	Chip *Chip

	// Listener is an optional pre-existing listener. If nil, one is created
	// on ListenAddr.
	Listener net.Listener

	// ListenAddr is the TCP address to listen on (e.g. "127.0.0.1:28992").
	// Ignored if Listener is provided. If both are empty the server only
	// serves connections passed to AddConnection.
	ListenAddr string

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Server exposes a Chip over the tagged bridge protocol. Connections are
// served one message at a time; the chip serializes concurrent clients.
type Server struct {
	chip     *Chip
	listener net.Listener
	closeCh  chan struct{}
	wg       sync.WaitGroup
	log      logging.LeveledLogger

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	mu      sync.Mutex
	started bool
	closed  bool
}

// NewServer creates a server. Listening starts with Start.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Chip == nil {
		return nil, fmt.Errorf("%w: chip is required", ErrInvalidConfig)
	}

	s := &Server{
		chip:     config.Chip,
		listener: config.Listener,
		closeCh:  make(chan struct{}),
		conns:    make(map[net.Conn]struct{}),
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("model")
	}

	if s.listener == nil && config.ListenAddr != "" {
		l, err := net.Listen("tcp", config.ListenAddr)
		if err != nil {
			return nil, err
		}
		s.listener = l
	}
	return s, nil
}

// Start begins accepting connections.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServerClosed
	}
	if s.started {
		return nil
	}
	if s.listener == nil {
		return fmt.Errorf("%w: no listener", ErrInvalidConfig)
	}
	s.started = true

	if s.log != nil {
		s.log.Infof("serving chip model on %s", s.listener.Addr())
	}
	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the listening address, or nil without a listener.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// AddConnection serves an already established connection, such as one end
// of a port.Pipe.
func (s *Server) AddConnection(conn net.Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServerClosed
	}
	s.track(conn)
	s.wg.Add(1)
	go s.handleConn(conn)
	return nil
}

// Stop closes the listener and all connections and waits for handlers to
// return.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.closeCh)
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return
			default:
			}
			if s.log != nil {
				s.log.Warnf("accept: %v", err)
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.track(conn)
		s.wg.Add(1)
		s.mu.Unlock()
		go s.handleConn(conn)
	}
}

func (s *Server) track(conn net.Conn) {
	s.connsMu.Lock()
	s.conns[conn] = struct{}{}
	s.connsMu.Unlock()
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		s.connsMu.Lock()
		delete(s.conns, conn)
		s.connsMu.Unlock()
	}()

	if s.log != nil {
		s.log.Debugf("client connected from %s", conn.RemoteAddr())
	}

	r := port.NewReader(conn)
	for {
		m, err := r.ReadMessage()
		if err != nil {
			if s.log != nil && !errors.Is(err, io.EOF) {
				select {
				case <-s.closeCh:
				default:
					s.log.Debugf("client %s: %v", conn.RemoteAddr(), err)
				}
			}
			return
		}

		if err := port.WriteMessage(conn, s.dispatch(m)); err != nil {
			return
		}
	}
}

// dispatch applies one tagged message to the chip and returns the reply.
func (s *Server) dispatch(m port.Message) port.Message {
	rsp := port.Message{Tag: m.Tag}
	invalid := port.Message{Tag: port.TagInvalid}

	switch m.Tag {
	case port.TagCSNLow:
		s.chip.SelectChip()
	case port.TagCSNHigh:
		s.chip.DeselectChip()
	case port.TagSPISend:
		miso := append([]byte(nil), m.Payload...)
		if err := s.chip.Transfer(miso, 0); err != nil {
			return invalid
		}
		rsp.Payload = miso
	case port.TagPowerOn:
		s.chip.PowerOn()
	case port.TagPowerOff:
		s.chip.PowerOff()
	case port.TagResetTarget:
		s.chip.Reset()
	case port.TagWait:
		if len(m.Payload) != 4 {
			return invalid
		}
		d := time.Duration(binary.LittleEndian.Uint32(m.Payload)) * time.Millisecond
		select {
		case <-time.After(min(d, MaxWait)):
		case <-s.closeCh:
		}
	default:
		if s.log != nil {
			s.log.Debugf("unsupported tag %s", m.Tag)
		}
		return port.Message{Tag: port.TagUnsupported}
	}
	return rsp
}
