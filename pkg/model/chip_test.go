package model

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"strings"
	"testing"

	"github.com/backkem/selink/pkg/certstore"
	"github.com/backkem/selink/pkg/crypto"
	"github.com/backkem/selink/pkg/handshake"
	"github.com/backkem/selink/pkg/link"
)

type testHost struct {
	priv [32]byte
	pub  [32]byte
}

func newTestHost(t *testing.T) testHost {
	t.Helper()
	p, err := crypto.Default()
	if err != nil {
		t.Fatal(err)
	}
	var h testHost
	if _, err := rand.Read(h.priv[:]); err != nil {
		t.Fatal(err)
	}
	pub, err := p.X25519Base(h.priv[:])
	if err != nil {
		t.Fatal(err)
	}
	copy(h.pub[:], pub)
	return h
}

func newTestChip(t *testing.T, config Config) (*Chip, *link.Link) {
	t.Helper()
	chip, err := New(config)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	l, err := link.New(link.Config{Port: chip})
	if err != nil {
		t.Fatalf("link.New() error = %v", err)
	}
	return chip, l
}

// openSession runs the host half of the handshake against the chip.
func openSession(t *testing.T, l *link.Link, chip *Chip, host testHost, slot uint8) (*handshake.SessionKeys, error) {
	t.Helper()
	p, _ := crypto.Default()
	hs, err := handshake.NewInitiator(handshake.InitiatorConfig{
		Provider:    p,
		HostPrivate: host.priv,
		ChipPublic:  chip.StaticPublicKey(),
		PairingSlot: slot,
	})
	if err != nil {
		t.Fatal(err)
	}
	req, err := hs.Start()
	if err != nil {
		t.Fatal(err)
	}
	rsp, err := l.Handshake(context.Background(), req)
	if err != nil {
		return nil, err
	}
	return hs.Finish(rsp)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"slot out of range", Config{PairingKeys: map[uint8][32]byte{4: {}}}},
		{"chip id too long", Config{ChipID: make([]byte, ChipIDSize+1)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.config); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("New() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestChip_Info(t *testing.T) {
	ctx := context.Background()
	chip, l := newTestChip(t, Config{ChipID: []byte("model-0001")})

	id, err := l.ChipID(ctx)
	if err != nil {
		t.Fatalf("ChipID() error = %v", err)
	}
	if len(id) != ChipIDSize || !bytes.HasPrefix(id, []byte("model-0001")) {
		t.Errorf("ChipID() = %x", id)
	}

	fw, err := l.GetInfo(ctx, link.InfoRISCVFirmware, 0)
	if err != nil || !bytes.Equal(fw, []byte{0, 1, 0, 0}) {
		t.Errorf("GetInfo(RISCV) = %x, %v", fw, err)
	}
	if want := chip.FirmwareVersion(); !bytes.Equal(fw, want[:]) {
		t.Errorf("GetInfo(RISCV) = %x, FirmwareVersion() = %x", fw, want)
	}
	if _, err := l.GetInfo(ctx, link.InfoFirmwareBank, 0); !errors.Is(err, link.ErrUnknownRequest) {
		t.Errorf("GetInfo(FW bank) error = %v, want ErrUnknownRequest", err)
	}
	if l.Mode() != link.ModeApplication {
		t.Errorf("Mode() = %s, want application", l.Mode())
	}
}

func TestChip_CertStore(t *testing.T) {
	chip, l := newTestChip(t, Config{})

	blob, err := l.ReadCertStore(context.Background())
	if err != nil {
		t.Fatalf("ReadCertStore() error = %v", err)
	}
	if !bytes.Equal(blob, chip.CertStore()) {
		t.Fatal("certificate store read over the link differs from the chip's")
	}

	store, err := certstore.Parse(blob)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if store.Len() != 3 {
		t.Errorf("Len() = %d, want 3", store.Len())
	}
	key, err := store.StaticPublicKey()
	if err != nil {
		t.Fatalf("StaticPublicKey() error = %v", err)
	}
	if key != chip.StaticPublicKey() {
		t.Error("certificate key differs from the chip's static key")
	}

	for _, name := range crypto.Backends() {
		p, err := crypto.New(name)
		if err != nil {
			t.Fatal(err)
		}
		if err := store.VerifyChain(p); err != nil {
			t.Errorf("VerifyChain(%s) error = %v", name, err)
		}
	}
}

func TestChip_Handshake(t *testing.T) {
	host := newTestHost(t)
	chip, l := newTestChip(t, Config{PairingKeys: map[uint8][32]byte{1: host.pub}})

	keys, err := openSession(t, l, chip, host, 1)
	if err != nil {
		t.Fatalf("handshake error = %v", err)
	}
	keys.Erase()
	if !chip.HasSession() {
		t.Fatal("chip has no session after handshake")
	}

	if err := l.AbortSession(context.Background()); err != nil {
		t.Fatalf("AbortSession() error = %v", err)
	}
	if chip.HasSession() {
		t.Error("chip kept its session after abort")
	}

	// Empty slot: the chip refuses the handshake.
	if _, err := openSession(t, l, chip, host, 2); !errors.Is(err, link.ErrHandshake) {
		t.Errorf("handshake on empty slot error = %v, want link.ErrHandshake", err)
	}

	// Wrong host key: the chip answers, the host rejects the proof.
	if _, err := openSession(t, l, chip, newTestHost(t), 1); !errors.Is(err, handshake.ErrHandshake) {
		t.Errorf("handshake with wrong key error = %v, want handshake.ErrHandshake", err)
	}

	if got := chip.Stats().Handshakes; got != 3 {
		t.Errorf("Stats().Handshakes = %d, want 3", got)
	}
}

func TestChip_NoSession(t *testing.T) {
	_, l := newTestChip(t, Config{})
	packet := make([]byte, 2+1+crypto.TagSize)
	packet[0] = 1
	if err := l.SendEncrypted(context.Background(), packet); !errors.Is(err, link.ErrNoSession) {
		t.Errorf("SendEncrypted() error = %v, want link.ErrNoSession", err)
	}
}

func TestChip_BadTag(t *testing.T) {
	ctx := context.Background()
	host := newTestHost(t)
	chip, l := newTestChip(t, Config{PairingKeys: map[uint8][32]byte{0: host.pub}})
	if _, err := openSession(t, l, chip, host, 0); err != nil {
		t.Fatal(err)
	}

	packet := make([]byte, 2+1+crypto.TagSize)
	packet[0] = 1
	if err := l.SendEncrypted(ctx, packet); !errors.Is(err, link.ErrTag) {
		t.Errorf("SendEncrypted() error = %v, want link.ErrTag", err)
	}
	if chip.HasSession() {
		t.Error("chip kept its session after a bad tag")
	}
}

func TestChip_Startup(t *testing.T) {
	ctx := context.Background()
	host := newTestHost(t)
	chip, l := newTestChip(t, Config{PairingKeys: map[uint8][32]byte{0: host.pub}})

	if err := l.Startup(ctx, link.StartupMaintenanceReboot); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}
	if _, err := l.ChipID(ctx); err != nil {
		t.Fatal(err)
	}
	if l.Mode() != link.ModeMaintenance || !chip.Maintenance() {
		t.Errorf("Mode() = %s after maintenance reboot", l.Mode())
	}
	if _, err := openSession(t, l, chip, host, 0); !errors.Is(err, link.ErrUnknownRequest) {
		t.Errorf("handshake in maintenance error = %v, want ErrUnknownRequest", err)
	}

	if err := l.Startup(ctx, link.StartupReboot); err != nil {
		t.Fatal(err)
	}
	if _, err := openSession(t, l, chip, host, 0); err != nil {
		t.Fatalf("handshake after reboot error = %v", err)
	}
	if err := l.Sleep(ctx, link.SleepKindSleep); err != nil {
		t.Fatalf("Sleep() error = %v", err)
	}
	if chip.HasSession() {
		t.Error("session survived sleep")
	}
	if err := l.Sleep(ctx, link.SleepKind(0x07)); !errors.Is(err, link.ErrGeneric) {
		t.Errorf("Sleep(0x07) error = %v, want ErrGeneric", err)
	}
}

func TestChip_Log(t *testing.T) {
	ctx := context.Background()
	host := newTestHost(t)
	chip, l := newTestChip(t, Config{PairingKeys: map[uint8][32]byte{3: host.pub}})
	if _, err := openSession(t, l, chip, host, 3); err != nil {
		t.Fatal(err)
	}
	out, err := l.GetLog(ctx)
	if err != nil {
		t.Fatalf("GetLog() error = %v", err)
	}
	if !strings.Contains(string(out), "session open slot 3") {
		t.Errorf("GetLog() = %q", out)
	}

	_, l = newTestChip(t, Config{LogDisabled: true})
	if _, err := l.GetLog(ctx); !errors.Is(err, link.ErrResponseDisabled) {
		t.Errorf("GetLog() error = %v, want ErrResponseDisabled", err)
	}
	if _, err := l.Exchange(ctx, link.ReqID(0x55), nil); !errors.Is(err, link.ErrUnknownRequest) {
		t.Errorf("Exchange(0x55) error = %v, want ErrUnknownRequest", err)
	}
}

func TestChip_Faults(t *testing.T) {
	tests := []struct {
		name        string
		faults      Faults
		wantErr     error
		wantResends int
	}{
		{name: "corrupt once", faults: Faults{CorruptResponses: 1}, wantResends: 1},
		{name: "corrupt three times", faults: Faults{CorruptResponses: 3}, wantResends: 3},
		{name: "corrupt four times", faults: Faults{CorruptResponses: 4}, wantErr: link.ErrResponseCRC, wantResends: 3},
		{name: "generic error", faults: Faults{StatusErrors: 1}, wantResends: 1},
		{name: "crc error status", faults: Faults{StatusErrors: 2, ErrorStatus: link.StatusCRCErr}, wantResends: 1},
		{name: "busy", faults: Faults{BusyPolls: 5}},
		{name: "alarm", faults: Faults{Alarm: true}, wantErr: link.ErrAlarm},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			chip, l := newTestChip(t, Config{})
			chip.SetFaults(tc.faults)

			id, err := l.ChipID(context.Background())
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("ChipID() error = %v, want %v", err, tc.wantErr)
				}
			} else if err != nil || !bytes.Equal(id, chip.ChipID()) {
				t.Fatalf("ChipID() = %x, %v", id, err)
			}
			if got := chip.Stats().Resends; got != tc.wantResends {
				t.Errorf("Stats().Resends = %d, want %d", got, tc.wantResends)
			}
		})
	}
}

func TestChip_Power(t *testing.T) {
	ctx := context.Background()
	chip, err := New(Config{})
	if err != nil {
		t.Fatal(err)
	}
	l, err := link.New(link.Config{Port: chip, ReadMaxTries: 3})
	if err != nil {
		t.Fatal(err)
	}

	chip.PowerOff()
	if _, err := l.ChipID(ctx); !errors.Is(err, link.ErrChipBusy) {
		t.Errorf("ChipID() while off error = %v, want ErrChipBusy", err)
	}
	chip.PowerOn()
	if _, err := l.ChipID(ctx); err != nil {
		t.Errorf("ChipID() after power on error = %v", err)
	}
}
