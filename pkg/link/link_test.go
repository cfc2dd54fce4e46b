package link

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/backkem/selink/pkg/certstore"
)

func newTestLink(t *testing.T, chip *fakeChip) *Link {
	t.Helper()
	l, err := New(Config{Port: chip, ReadMaxTries: 5})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return l
}

func okHandler(data []byte) func(Request) []Response {
	return func(Request) []Response {
		return []Response{{Status: StatusReqOK, Data: data}}
	}
}

func TestCRC16(t *testing.T) {
	if got := CRC16([]byte("123456789")); got != 0xFEE8 {
		t.Errorf("CRC16(check) = %04x, want fee8", got)
	}
	if got := CRC16(nil); got != 0 {
		t.Errorf("CRC16(nil) = %04x, want 0", got)
	}
}

func TestAppendRequest(t *testing.T) {
	got, err := AppendRequest(nil, ReqGetInfo, []byte{0x00, 0x00})
	if err != nil {
		t.Fatal(err)
	}
	// CRC16(01 02 00 00) = 0x1428, sent low byte first.
	want, _ := hex.DecodeString("010200002814")
	if !bytes.Equal(got, want) {
		t.Errorf("AppendRequest() = %x, want %x", got, want)
	}
	swapped, _ := hex.DecodeString("010200001428")
	if _, err := ParseRequest(swapped); !errors.Is(err, ErrResponseCRC) {
		t.Errorf("ParseRequest(high byte first) error = %v, want ErrResponseCRC", err)
	}

	if _, err := AppendRequest(nil, ReqGetInfo, make([]byte, MaxDataSize+1)); !errors.Is(err, ErrDataTooLarge) {
		t.Errorf("AppendRequest(oversize) error = %v, want ErrDataTooLarge", err)
	}

	req, err := ParseRequest(got)
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}
	if req.ID != ReqGetInfo || !bytes.Equal(req.Data, []byte{0, 0}) {
		t.Errorf("ParseRequest() = %+v", req)
	}
}

func TestParseResponse_Errors(t *testing.T) {
	good := mustFrame(StatusResOK, []byte{1, 2, 3})
	bad := append([]byte(nil), good...)
	bad[2] ^= 0x01

	tests := []struct {
		name  string
		frame []byte
		want  error
	}{
		{"short", []byte{0x01, 0x00, 0x00}, ErrInvalidFrame},
		{"length overflow", []byte{0x01, 0xFD, 0x00, 0x00}, ErrInvalidFrame},
		{"truncated", good[:len(good)-1], ErrInvalidFrame},
		{"crc", bad, ErrResponseCRC},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseResponse(tc.frame); !errors.Is(err, tc.want) {
				t.Errorf("ParseResponse() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestExchange_Resend(t *testing.T) {
	tests := []struct {
		corrupt   int
		wantErr   error
		wantReads int
	}{
		{0, nil, 1},
		{1, nil, 2},
		{3, nil, 4},
		{4, ErrResponseCRC, 4},
	}
	for _, tc := range tests {
		chip := newFakeChip(okHandler([]byte{0xAB}))
		chip.corrupt = tc.corrupt
		l := newTestLink(t, chip)

		rsp, err := l.Exchange(context.Background(), ReqGetInfo, []byte{1, 0})
		if !errors.Is(err, tc.wantErr) {
			t.Errorf("corrupt=%d: Exchange() error = %v, want %v", tc.corrupt, err, tc.wantErr)
		}
		if chip.reads != tc.wantReads {
			t.Errorf("corrupt=%d: %d round trips, want %d", tc.corrupt, chip.reads, tc.wantReads)
		}
		if tc.wantErr == nil && !bytes.Equal(rsp.Data, []byte{0xAB}) {
			t.Errorf("corrupt=%d: data = %x", tc.corrupt, rsp.Data)
		}
		resends := 0
		for _, r := range chip.requests {
			if r.ID == ReqResend {
				resends++
			}
		}
		if resends != tc.wantReads-1 {
			t.Errorf("corrupt=%d: %d resends, want %d", tc.corrupt, resends, tc.wantReads-1)
		}
	}
}

func TestExchange_DeviceStatus(t *testing.T) {
	tests := []struct {
		status    Status
		want      error
		wantReads int
	}{
		{StatusCRCErr, ErrCRC, 4},
		{StatusGenErr, ErrGeneric, 4},
		{StatusNoSession, ErrNoSession, 1},
		{StatusUnknownReq, ErrUnknownRequest, 1},
		{StatusHandshakeErr, ErrHandshake, 1},
		{StatusTagErr, ErrTag, 1},
		{StatusRespDisabled, ErrResponseDisabled, 1},
		{Status(0x55), ErrUnexpectedStatus, 1},
	}
	for _, tc := range tests {
		chip := newFakeChip(func(Request) []Response {
			return []Response{{Status: tc.status}}
		})
		l := newTestLink(t, chip)

		_, err := l.Exchange(context.Background(), ReqHandshake, nil)
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: Exchange() error = %v, want %v", tc.status, err, tc.want)
		}
		var se *StatusError
		if !errors.As(err, &se) || se.Status != tc.status || se.Request != ReqHandshake {
			t.Errorf("%s: error %v is not a matching *StatusError", tc.status, err)
		}
		if chip.reads != tc.wantReads {
			t.Errorf("%s: %d round trips, want %d", tc.status, chip.reads, tc.wantReads)
		}
	}
}

func TestExchange_Polling(t *testing.T) {
	chip := newFakeChip(okHandler(nil))
	chip.busy = 3
	l := newTestLink(t, chip)
	if _, err := l.Exchange(context.Background(), ReqSleep, []byte{0x05}); err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if chip.reads != 4 {
		t.Errorf("%d polls, want 4", chip.reads)
	}

	chip = newFakeChip(okHandler(nil))
	chip.busy = 10
	l = newTestLink(t, chip)
	if _, err := l.Exchange(context.Background(), ReqSleep, []byte{0x05}); !errors.Is(err, ErrChipBusy) {
		t.Errorf("Exchange() error = %v, want ErrChipBusy", err)
	}
	if chip.reads != 5 {
		t.Errorf("%d polls, want ReadMaxTries=5", chip.reads)
	}
}

func TestExchange_ChipStatus(t *testing.T) {
	chip := newFakeChip(okHandler(nil))
	chip.alarm = true
	l := newTestLink(t, chip)
	if _, err := l.Exchange(context.Background(), ReqGetLog, nil); !errors.Is(err, ErrAlarm) {
		t.Errorf("Exchange() error = %v, want ErrAlarm", err)
	}

	chip = newFakeChip(okHandler(nil))
	chip.start = true
	l = newTestLink(t, chip)
	if l.Mode() != ModeUnknown {
		t.Errorf("initial Mode() = %s", l.Mode())
	}
	if _, err := l.Exchange(context.Background(), ReqGetLog, nil); err != nil {
		t.Fatal(err)
	}
	if l.Mode() != ModeMaintenance {
		t.Errorf("Mode() = %s, want Maintenance", l.Mode())
	}
}

func TestExchange_Canceled(t *testing.T) {
	chip := newFakeChip(okHandler(nil))
	l := newTestLink(t, chip)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Exchange(ctx, ReqGetLog, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Exchange() error = %v, want context.Canceled", err)
	}
	if chip.transfers != 0 {
		t.Errorf("port touched %d times after cancel", chip.transfers)
	}
}

// echoHandler acknowledges ENCRYPTED_CMD chunks until size bytes arrived
// and then returns the packet in response chunks.
func echoHandler(size int) func(Request) []Response {
	var packet []byte
	return func(req Request) []Response {
		packet = append(packet, req.Data...)
		if len(packet) < size {
			return []Response{{Status: StatusReqCont}}
		}
		out := []Response{{Status: StatusReqOK}}
		for off := 0; ; off += ChunkSize {
			end := min(off+ChunkSize, len(packet))
			st := StatusResCont
			if end == len(packet) {
				st = StatusResOK
			}
			out = append(out, Response{Status: st, Data: packet[off:end]})
			if st == StatusResOK {
				return out
			}
		}
	}
}

func TestEncrypted_RoundTrip(t *testing.T) {
	for _, size := range []int{0, 1, 251, 252, 253, 504, 4096 + 16} {
		packet := make([]byte, size)
		for i := range packet {
			packet[i] = byte(i * 7)
		}
		chip := newFakeChip(echoHandler(size))
		l := newTestLink(t, chip)

		if err := l.SendEncrypted(context.Background(), packet); err != nil {
			t.Fatalf("size %d: SendEncrypted() error = %v", size, err)
		}
		wantChunks := max(1, (size+ChunkSize-1)/ChunkSize)
		if len(chip.requests) != wantChunks {
			t.Errorf("size %d: %d request frames, want %d", size, len(chip.requests), wantChunks)
		}

		dst := make([]byte, size)
		n, err := l.ReceiveEncrypted(context.Background(), dst)
		if err != nil {
			t.Fatalf("size %d: ReceiveEncrypted() error = %v", size, err)
		}
		if diff := cmp.Diff(packet, dst[:n]); diff != "" {
			t.Errorf("size %d: mismatch (-want +got):\n%s", size, diff)
		}
	}
}

func TestReceiveEncrypted_Limits(t *testing.T) {
	t.Run("overflow", func(t *testing.T) {
		chip := newFakeChip(echoHandler(300))
		l := newTestLink(t, chip)
		if err := l.SendEncrypted(context.Background(), make([]byte, 300)); err != nil {
			t.Fatal(err)
		}
		if _, err := l.ReceiveEncrypted(context.Background(), make([]byte, 299)); !errors.Is(err, ErrBufferOverflow) {
			t.Errorf("ReceiveEncrypted() error = %v, want ErrBufferOverflow", err)
		}
	})

	t.Run("too many chunks", func(t *testing.T) {
		chip := newFakeChip(nil)
		for range MaxResponseChunks + 1 {
			chip.queue = append(chip.queue, mustFrame(StatusResCont, []byte{1}))
		}
		l := newTestLink(t, chip)
		if _, err := l.ReceiveEncrypted(context.Background(), make([]byte, 100)); !errors.Is(err, ErrTooManyChunks) {
			t.Errorf("ReceiveEncrypted() error = %v, want ErrTooManyChunks", err)
		}
	})

	t.Run("unexpected status", func(t *testing.T) {
		chip := newFakeChip(nil)
		chip.queue = append(chip.queue, mustFrame(StatusReqOK, nil))
		l := newTestLink(t, chip)
		if _, err := l.ReceiveEncrypted(context.Background(), make([]byte, 10)); !errors.Is(err, ErrUnexpectedStatus) {
			t.Errorf("ReceiveEncrypted() error = %v, want ErrUnexpectedStatus", err)
		}
	})
}

func TestEncrypted_NoResend(t *testing.T) {
	countResends := func(chip *fakeChip) int {
		n := 0
		for _, r := range chip.requests {
			if r.ID == ReqResend {
				n++
			}
		}
		return n
	}

	t.Run("corrupt ack", func(t *testing.T) {
		chip := newFakeChip(echoHandler(10))
		chip.corrupt = 1
		l := newTestLink(t, chip)
		if err := l.SendEncrypted(context.Background(), make([]byte, 10)); !errors.Is(err, ErrResponseCRC) {
			t.Errorf("SendEncrypted() error = %v, want ErrResponseCRC", err)
		}
		if n := countResends(chip); n != 0 {
			t.Errorf("%d resends, want 0", n)
		}
	})

	t.Run("corrupt response chunk", func(t *testing.T) {
		chip := newFakeChip(echoHandler(10))
		l := newTestLink(t, chip)
		if err := l.SendEncrypted(context.Background(), make([]byte, 10)); err != nil {
			t.Fatal(err)
		}
		chip.corrupt = 1
		if _, err := l.ReceiveEncrypted(context.Background(), make([]byte, 10)); !errors.Is(err, ErrResponseCRC) {
			t.Errorf("ReceiveEncrypted() error = %v, want ErrResponseCRC", err)
		}
		if n := countResends(chip); n != 0 {
			t.Errorf("%d resends, want 0", n)
		}
	})

	for _, tc := range []struct {
		status Status
		want   error
	}{
		{StatusGenErr, ErrGeneric},
		{StatusCRCErr, ErrCRC},
	} {
		t.Run(tc.status.String(), func(t *testing.T) {
			chip := newFakeChip(nil)
			chip.queue = append(chip.queue, mustFrame(tc.status, nil))
			l := newTestLink(t, chip)
			_, err := l.ReceiveEncrypted(context.Background(), make([]byte, 10))
			var se *StatusError
			if !errors.As(err, &se) || se.Status != tc.status || !errors.Is(err, tc.want) {
				t.Errorf("ReceiveEncrypted() error = %v, want *StatusError %s", err, tc.status)
			}
			if n := countResends(chip); n != 0 {
				t.Errorf("%d resends, want 0", n)
			}
		})
	}
}

func TestSendEncrypted_EarlyAck(t *testing.T) {
	chip := newFakeChip(okHandler(nil))
	l := newTestLink(t, chip)
	if err := l.SendEncrypted(context.Background(), make([]byte, 300)); !errors.Is(err, ErrUnexpectedStatus) {
		t.Errorf("SendEncrypted() error = %v, want ErrUnexpectedStatus", err)
	}
}

func TestReadCertStore(t *testing.T) {
	blob, err := certstore.Encode(bytes.Repeat([]byte{0x11}, 200), bytes.Repeat([]byte{0x22}, 150))
	if err != nil {
		t.Fatal(err)
	}
	chip := newFakeChip(func(req Request) []Response {
		if req.ID != ReqGetInfo || InfoObject(req.Data[0]) != InfoX509Certificate {
			return []Response{{Status: StatusUnknownReq}}
		}
		off := int(req.Data[1]) * CertBlockSize
		block := make([]byte, CertBlockSize)
		if off < len(blob) {
			copy(block, blob[off:])
		}
		return []Response{{Status: StatusReqOK, Data: block}}
	})
	l := newTestLink(t, chip)

	got, err := l.ReadCertStore(context.Background())
	if err != nil {
		t.Fatalf("ReadCertStore() error = %v", err)
	}
	if !bytes.Equal(got, blob) {
		t.Errorf("ReadCertStore() returned %d bytes, want %d", len(got), len(blob))
	}
	if len(chip.requests) != 3 {
		t.Errorf("%d GET_INFO requests, want 3", len(chip.requests))
	}

	if _, err := l.ChipID(context.Background()); !errors.Is(err, ErrUnknownRequest) {
		t.Errorf("ChipID() error = %v, want ErrUnknownRequest", err)
	}
}

func TestHandshake(t *testing.T) {
	var rspData [48]byte
	for i := range rspData {
		rspData[i] = byte(i)
	}
	chip := newFakeChip(okHandler(rspData[:]))
	l := newTestLink(t, chip)

	req := HandshakeRequest{PairingSlot: 2}
	req.EphemeralPublic[0] = 0xEE
	rsp, err := l.Handshake(context.Background(), req)
	if err != nil {
		t.Fatalf("Handshake() error = %v", err)
	}
	if rsp.EphemeralPublic[31] != 31 || rsp.AuthTag[0] != 32 || rsp.AuthTag[15] != 47 {
		t.Errorf("Handshake() = %+v", rsp)
	}

	sent := chip.requests[0]
	if sent.ID != ReqHandshake || len(sent.Data) != 33 || sent.Data[0] != 0xEE || sent.Data[32] != 2 {
		t.Errorf("handshake request = %x", sent.Data)
	}

	chip = newFakeChip(okHandler(rspData[:40]))
	l = newTestLink(t, chip)
	if _, err := l.Handshake(context.Background(), req); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("Handshake(short) error = %v, want ErrInvalidFrame", err)
	}
}

func TestSimpleRequests(t *testing.T) {
	chip := newFakeChip(okHandler([]byte("log")))
	l := newTestLink(t, chip)
	ctx := context.Background()

	if err := l.AbortSession(ctx); err != nil {
		t.Errorf("AbortSession() error = %v", err)
	}
	if err := l.Sleep(ctx, SleepKindDeepSleep); err != nil {
		t.Errorf("Sleep() error = %v", err)
	}
	if err := l.Startup(ctx, StartupMaintenanceReboot); err != nil {
		t.Errorf("Startup() error = %v", err)
	}
	log, err := l.GetLog(ctx)
	if err != nil || string(log) != "log" {
		t.Errorf("GetLog() = %q, %v", log, err)
	}

	want := []Request{
		{ID: ReqSessionAbort},
		{ID: ReqSleep, Data: []byte{0x0A}},
		{ID: ReqStartup, Data: []byte{0x03}},
		{ID: ReqGetLog},
	}
	if diff := cmp.Diff(want, chip.requests); diff != "" {
		t.Errorf("requests mismatch (-want +got):\n%s", diff)
	}
}

func TestConfig(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("New({}) error = %v, want ErrInvalidConfig", err)
	}
	if _, err := New(Config{Port: newFakeChip(nil), Timeout: -1}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("New(negative) error = %v, want ErrInvalidConfig", err)
	}
	l, err := New(Config{Port: newFakeChip(nil)})
	if err != nil {
		t.Fatal(err)
	}
	if l.config.ReadMaxTries != DefaultReadMaxTries || l.config.ReadRetryDelay != DefaultReadRetryDelay {
		t.Errorf("defaults not applied: %+v", l.config)
	}
}

func TestEnums(t *testing.T) {
	if ReqEncryptedCmd.String() != "ENCRYPTED_CMD" || !ReqStartup.IsValid() || ReqID(0x55).IsValid() {
		t.Error("ReqID mismatch")
	}
	if StatusTagErr.String() != "TAG_ERR" || !StatusResCont.IsSuccess() || StatusNoResp.IsSuccess() {
		t.Error("Status mismatch")
	}
	if InfoChipID.String() != "CHIP_ID" || ModeApplication.String() != "Application" {
		t.Error("String mismatch")
	}
}
