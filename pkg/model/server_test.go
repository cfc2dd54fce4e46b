package model

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/backkem/selink/pkg/link"
	"github.com/backkem/selink/pkg/port"
)

func TestNewServer_Validate(t *testing.T) {
	if _, err := NewServer(ServerConfig{}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewServer() error = %v, want ErrInvalidConfig", err)
	}

	chip, err := New(Config{})
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewServer(ServerConfig{Chip: chip})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Start() without listener error = %v, want ErrInvalidConfig", err)
	}
	if s.Addr() != nil {
		t.Errorf("Addr() = %v, want nil", s.Addr())
	}
	if err := s.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := s.AddConnection(nil); !errors.Is(err, ErrServerClosed) {
		t.Errorf("AddConnection() after Stop error = %v, want ErrServerClosed", err)
	}
}

func newPipeServer(t *testing.T, chip *Chip) *port.TCP {
	t.Helper()
	pipe := port.NewPipe()
	s, err := NewServer(ServerConfig{Chip: chip})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AddConnection(pipe.Device()); err != nil {
		t.Fatal(err)
	}

	p, err := port.NewTCP(port.TCPConfig{Conn: pipe.Host()})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		p.Deinit()
		pipe.Close()
		s.Stop()
	})
	return p
}

func TestServer_Pipe(t *testing.T) {
	ctx := context.Background()
	chip, err := New(Config{})
	if err != nil {
		t.Fatal(err)
	}
	p := newPipeServer(t, chip)

	l, err := link.New(link.Config{Port: p, ReadMaxTries: 3, ReadRetryDelay: time.Millisecond, Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}

	blob, err := l.ReadCertStore(ctx)
	if err != nil {
		t.Fatalf("ReadCertStore() error = %v", err)
	}
	if !bytes.Equal(blob, chip.CertStore()) {
		t.Error("certificate store differs over the pipe")
	}

	if err := p.PowerOff(); err != nil {
		t.Fatalf("PowerOff() error = %v", err)
	}
	if _, err := l.ChipID(ctx); !errors.Is(err, link.ErrChipBusy) {
		t.Errorf("ChipID() while off error = %v, want ErrChipBusy", err)
	}
	if err := p.PowerOn(); err != nil {
		t.Fatalf("PowerOn() error = %v", err)
	}
	if err := p.ResetTarget(); err != nil {
		t.Fatalf("ResetTarget() error = %v", err)
	}
	id, err := l.ChipID(ctx)
	if err != nil || !bytes.Equal(id, chip.ChipID()) {
		t.Errorf("ChipID() = %x, %v", id, err)
	}
}

func TestServer_TCP(t *testing.T) {
	ctx := context.Background()
	chip, err := New(Config{})
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewServer(ServerConfig{Chip: chip, ListenAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	p, err := port.NewTCP(port.TCPConfig{Addr: s.Addr().String()})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer p.Deinit()

	l, err := link.New(link.Config{Port: p, Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	id, err := l.ChipID(ctx)
	if err != nil || !bytes.Equal(id, chip.ChipID()) {
		t.Errorf("ChipID() = %x, %v", id, err)
	}
	if err := p.Delay(time.Millisecond); err != nil {
		t.Errorf("Delay() error = %v", err)
	}
}
