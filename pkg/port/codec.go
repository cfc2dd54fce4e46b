package port

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Tagged message layout: tag(1) | len(2 LE) | payload.
const (
	HeaderSize     = 3
	MaxPayloadSize = 256 + 16
	MaxMessageSize = HeaderSize + MaxPayloadSize
)

// Message is one tagged protocol message.
type Message struct {
	Tag     Tag
	Payload []byte
}

// AppendTo appends the encoded message to dst.
func (m Message) AppendTo(dst []byte) ([]byte, error) {
	if len(m.Payload) > MaxPayloadSize {
		return dst, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(m.Payload))
	}
	dst = append(dst, byte(m.Tag))
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(m.Payload)))
	return append(dst, m.Payload...), nil
}

// WriteMessage encodes m and writes it with a single Write call, so that
// packet-oriented connections carry one message per packet.
func WriteMessage(w io.Writer, m Message) error {
	buf, err := m.AppendTo(make([]byte, 0, HeaderSize+len(m.Payload)))
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// Reader decodes tagged messages from a stream or packet connection.
//
// Reads always offer at least MaxMessageSize bytes of space so that packet
// connections, which truncate to the read buffer, never lose data.
type Reader struct {
	r   io.Reader
	buf [2 * MaxMessageSize]byte
	n   int
}

// NewReader returns a Reader on r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadMessage returns the next message. The payload is a fresh copy.
func (r *Reader) ReadMessage() (Message, error) {
	for {
		if m, size, ok, err := r.decode(); err != nil {
			return Message{}, err
		} else if ok {
			r.n = copy(r.buf[:], r.buf[size:r.n])
			return m, nil
		}

		n, err := r.r.Read(r.buf[r.n:])
		r.n += n
		if err != nil {
			if err == io.EOF && r.n > 0 {
				return Message{}, fmt.Errorf("%w: connection closed mid-message", ErrProtocol)
			}
			return Message{}, err
		}
		if n == 0 {
			// Serial ports report an expired read timeout this way.
			return Message{}, ErrTimeout
		}
	}
}

func (r *Reader) decode() (Message, int, bool, error) {
	if r.n < HeaderSize {
		return Message{}, 0, false, nil
	}
	length := int(binary.LittleEndian.Uint16(r.buf[1:3]))
	if length > MaxPayloadSize {
		return Message{}, 0, false, fmt.Errorf("%w: declared payload %d bytes", ErrProtocol, length)
	}
	size := HeaderSize + length
	if r.n < size {
		return Message{}, 0, false, nil
	}
	return Message{
		Tag:     Tag(r.buf[0]),
		Payload: append([]byte(nil), r.buf[HeaderSize:size]...),
	}, size, true, nil
}
