package link

import (
	"context"
	"fmt"

	"github.com/backkem/selink/pkg/certstore"
)

// CertBlockSize is the size of one GET_INFO certificate block.
const CertBlockSize = 128

// Handshake message sizes.
const (
	HandshakeKeySize = 32
	HandshakeTagSize = 16
)

// HandshakeRequest is the host's handshake message.
type HandshakeRequest struct {
	EphemeralPublic [HandshakeKeySize]byte
	PairingSlot     uint8
}

// HandshakeResponse is the chip's handshake message.
type HandshakeResponse struct {
	EphemeralPublic [HandshakeKeySize]byte
	AuthTag         [HandshakeTagSize]byte
}

// GetInfo reads one block of an information object. block is only
// meaningful for InfoX509Certificate.
func (l *Link) GetInfo(ctx context.Context, obj InfoObject, block uint8) ([]byte, error) {
	rsp, err := l.Exchange(ctx, ReqGetInfo, []byte{uint8(obj), block})
	if err != nil {
		return nil, fmt.Errorf("get info %s: %w", obj, err)
	}
	return rsp.Data, nil
}

// ChipID reads the chip identification object.
func (l *Link) ChipID(ctx context.Context) ([]byte, error) {
	return l.GetInfo(ctx, InfoChipID, 0)
}

// ReadCertStore reads the certificate store block by block. The length is
// taken from the store header in the first block.
func (l *Link) ReadCertStore(ctx context.Context) ([]byte, error) {
	blob, err := l.GetInfo(ctx, InfoX509Certificate, 0)
	if err != nil {
		return nil, err
	}
	total, err := certstore.TotalSize(blob)
	if err != nil {
		return nil, err
	}

	for block := 1; len(blob) < total; block++ {
		if block*CertBlockSize >= certstore.MaxSize {
			return nil, fmt.Errorf("%w: store larger than %d bytes", certstore.ErrTooLarge, certstore.MaxSize)
		}
		data, err := l.GetInfo(ctx, InfoX509Certificate, uint8(block))
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("%w: empty certificate block %d", ErrInvalidFrame, block)
		}
		blob = append(blob, data...)
	}
	return blob[:total], nil
}

// Handshake sends the host's ephemeral key and pairing slot and returns the
// chip's ephemeral key and authentication tag.
func (l *Link) Handshake(ctx context.Context, req HandshakeRequest) (HandshakeResponse, error) {
	var out HandshakeResponse

	data := make([]byte, 0, HandshakeKeySize+1)
	data = append(data, req.EphemeralPublic[:]...)
	data = append(data, req.PairingSlot)

	rsp, err := l.Exchange(ctx, ReqHandshake, data)
	if err != nil {
		return out, err
	}
	if len(rsp.Data) != HandshakeKeySize+HandshakeTagSize {
		return out, fmt.Errorf("%w: handshake response is %d bytes", ErrInvalidFrame, len(rsp.Data))
	}
	copy(out.EphemeralPublic[:], rsp.Data)
	copy(out.AuthTag[:], rsp.Data[HandshakeKeySize:])
	return out, nil
}

// AbortSession asks the chip to drop its secure session.
func (l *Link) AbortSession(ctx context.Context) error {
	_, err := l.Exchange(ctx, ReqSessionAbort, nil)
	return err
}

// Sleep puts the chip to sleep.
func (l *Link) Sleep(ctx context.Context, kind SleepKind) error {
	_, err := l.Exchange(ctx, ReqSleep, []byte{uint8(kind)})
	return err
}

// Startup reboots the chip into application or maintenance firmware.
func (l *Link) Startup(ctx context.Context, kind StartupKind) error {
	_, err := l.Exchange(ctx, ReqStartup, []byte{uint8(kind)})
	return err
}

// GetLog returns the firmware log buffer.
func (l *Link) GetLog(ctx context.Context) ([]byte, error) {
	rsp, err := l.Exchange(ctx, ReqGetLog, nil)
	if err != nil {
		return nil, err
	}
	return rsp.Data, nil
}
