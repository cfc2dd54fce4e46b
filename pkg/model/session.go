package model

import (
	"encoding/binary"
	"errors"

	"github.com/backkem/selink/pkg/crypto"
	"github.com/backkem/selink/pkg/handshake"
)

// L3 packet layout, chip side: size(2 LE) | ciphertext | tag.
const (
	packetSizeField = 2
	maxDataSize     = 4096
	maxPacketSize   = packetSizeField + 1 + maxDataSize + crypto.TagSize
)

// chipSession is the chip's half of an established channel. Command and
// result nonces always hold the same counter, so one counter serves both.
type chipSession struct {
	slot    uint8
	decrypt crypto.AEAD
	encrypt crypto.AEAD
	counter uint32
}

func newChipSession(p crypto.Provider, keys *handshake.SessionKeys, slot uint8) (*chipSession, error) {
	decrypt, err := p.NewAEAD(keys.Command[:])
	if err != nil {
		return nil, err
	}
	encrypt, err := p.NewAEAD(keys.Result[:])
	if err != nil {
		decrypt.Destroy()
		return nil, err
	}
	return &chipSession{slot: slot, decrypt: decrypt, encrypt: encrypt}, nil
}

func (s *chipSession) destroy() {
	s.decrypt.Destroy()
	s.encrypt.Destroy()
}

func (s *chipSession) nonce() []byte {
	var n [crypto.NonceSize]byte
	binary.LittleEndian.PutUint32(n[:], s.counter)
	return n[:]
}

// execute decrypts a command packet, runs it and returns the sealed result
// packet. packet is decrypted in place.
func (s *chipSession) execute(c *Chip, packet []byte) ([]byte, error) {
	body := packet[packetSizeField:]
	plain, err := s.decrypt.Open(body[:0], s.nonce(), body, nil)
	if err != nil {
		return nil, err
	}
	if len(plain) == 0 {
		return nil, errors.New("model: empty command")
	}
	c.stats.Commands++

	result, data := c.runCommand(s, plain[0], plain[1:])
	if len(data) > maxDataSize {
		result, data = resultFail, nil
	}

	out := make([]byte, packetSizeField, packetSizeField+1+len(data)+crypto.TagSize)
	binary.LittleEndian.PutUint16(out, uint16(1+len(data)))
	out = append(out, result)
	out = append(out, data...)
	sealed, err := s.encrypt.Seal(out[packetSizeField:packetSizeField], s.nonce(), out[packetSizeField:], nil)
	if err != nil {
		return nil, err
	}

	if result != resultFail && result != resultInvalidCmd {
		s.counter++
	}
	return out[:packetSizeField+len(sealed)], nil
}

// endSession drops and erases the secure session. Callers hold c.mu.
func (c *Chip) endSession() {
	if c.session != nil {
		c.session.destroy()
		c.session = nil
	}
	c.packet = c.packet[:0]
}
