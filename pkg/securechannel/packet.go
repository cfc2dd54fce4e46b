package securechannel

import (
	"encoding/binary"
	"fmt"

	"github.com/backkem/selink/pkg/crypto"
)

// L3 packet layout: size(2 LE) | ciphertext(id|data) | tag(16). size
// counts the plaintext id or result byte plus data.
const (
	SizeFieldSize = 2

	// MaxDataSize is the largest command or result payload.
	MaxDataSize = 4096

	// ScratchSize holds the largest packet in either direction.
	ScratchSize = SizeFieldSize + 1 + MaxDataSize + crypto.TagSize
)

// sealPacket builds a packet in buf from first and data and encrypts it in
// place. It returns the packet slice.
func sealPacket(buf []byte, aead crypto.AEAD, nonce *Nonce, first byte, data []byte) ([]byte, error) {
	if len(data) > MaxDataSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrCommandTooLarge, len(data))
	}
	n := 1 + len(data)
	binary.LittleEndian.PutUint16(buf, uint16(n))
	buf[SizeFieldSize] = first
	copy(buf[SizeFieldSize+1:], data)

	plain := buf[SizeFieldSize : SizeFieldSize+n]
	sealed, err := aead.Seal(plain[:0], nonce[:], plain, nil)
	if err != nil {
		return nil, err
	}
	return buf[:SizeFieldSize+len(sealed)], nil
}

// openPacket authenticates and decrypts packet in place, returning the
// leading byte and the data, which aliases packet.
func openPacket(packet []byte, aead crypto.AEAD, nonce *Nonce) (byte, []byte, error) {
	if len(packet) < SizeFieldSize+1+crypto.TagSize {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrInvalidPacket, len(packet))
	}
	n := int(binary.LittleEndian.Uint16(packet))
	if SizeFieldSize+n+crypto.TagSize != len(packet) {
		return 0, nil, fmt.Errorf("%w: size field %d for %d byte packet", ErrInvalidPacket, n, len(packet))
	}

	body := packet[SizeFieldSize:]
	plain, err := aead.Open(body[:0], nonce[:], body, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrCrypto, err)
	}
	return plain[0], plain[1:], nil
}
