package link

import (
	"encoding/binary"
	"fmt"
)

// L2 frame layout. Requests are id | len | data | crc, responses
// status | len | data | crc. The CRC goes on the wire low byte first and
// covers every byte before it.
const (
	MaxDataSize     = 252
	FrameHeaderSize = 2
	CRCSize         = 2
	MaxL2FrameSize  = FrameHeaderSize + MaxDataSize + CRCSize

	// MaxFrameSize is an L1 read transaction: CHIP_STATUS plus an L2 frame.
	MaxFrameSize = 1 + MaxL2FrameSize
)

// Request is a decoded L2 request frame.
type Request struct {
	ID   ReqID
	Data []byte
}

// Response is a decoded L2 response frame.
type Response struct {
	Status Status
	Data   []byte
}

// AppendRequest appends the encoded request frame to dst.
func AppendRequest(dst []byte, id ReqID, data []byte) ([]byte, error) {
	return appendFrame(dst, uint8(id), data)
}

// AppendResponse appends the encoded response frame to dst.
func AppendResponse(dst []byte, status Status, data []byte) ([]byte, error) {
	return appendFrame(dst, uint8(status), data)
}

func appendFrame(dst []byte, first uint8, data []byte) ([]byte, error) {
	if len(data) > MaxDataSize {
		return dst, fmt.Errorf("%w: %d bytes", ErrDataTooLarge, len(data))
	}
	start := len(dst)
	dst = append(dst, first, uint8(len(data)))
	dst = append(dst, data...)
	return binary.LittleEndian.AppendUint16(dst, CRC16(dst[start:])), nil
}

// ParseRequest decodes a request frame. Data aliases b.
func ParseRequest(b []byte) (Request, error) {
	first, data, err := parseFrame(b)
	return Request{ID: ReqID(first), Data: data}, err
}

// ParseResponse decodes a response frame. Data aliases b.
func ParseResponse(b []byte) (Response, error) {
	first, data, err := parseFrame(b)
	return Response{Status: Status(first), Data: data}, err
}

func parseFrame(b []byte) (uint8, []byte, error) {
	if len(b) < FrameHeaderSize+CRCSize {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrInvalidFrame, len(b))
	}
	n := int(b[1])
	if n > MaxDataSize {
		return 0, nil, fmt.Errorf("%w: length %d", ErrInvalidFrame, n)
	}
	end := FrameHeaderSize + n
	if len(b) < end+CRCSize {
		return 0, nil, fmt.Errorf("%w: length %d, have %d bytes", ErrInvalidFrame, n, len(b))
	}
	if got, want := binary.LittleEndian.Uint16(b[end:]), CRC16(b[:end]); got != want {
		return 0, nil, fmt.Errorf("%w: got %04x, want %04x", ErrResponseCRC, got, want)
	}
	return b[0], b[FrameHeaderSize:end], nil
}
