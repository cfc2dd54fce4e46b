package model

import (
	"io"

	"github.com/backkem/selink/pkg/crypto"
	"github.com/backkem/selink/pkg/handshake"
)

// L3 command identifiers implemented by the model.
const (
	CmdPing                 uint8 = 0x01
	CmdPairingKeyWrite      uint8 = 0x10
	CmdPairingKeyRead       uint8 = 0x11
	CmdPairingKeyInvalidate uint8 = 0x12
	CmdRandomValueGet       uint8 = 0x50
)

// Result codes written by the model.
const (
	resultOK                uint8 = 0xC3
	resultFail              uint8 = 0x3C
	resultUnauthorized      uint8 = 0x01
	resultInvalidCmd        uint8 = 0x02
	resultPairingKeyEmpty   uint8 = 0x15
	resultPairingKeyInvalid uint8 = 0x16
)

// CommandFunc handles one L3 command. slot is the pairing slot of the
// session. It runs with the chip locked and must not call Chip methods.
type CommandFunc func(slot uint8, data []byte) (result uint8, rsp []byte)

// HandleCommand installs fn for command id, replacing the built-in
// handler if there is one. A nil fn restores the default.
func (c *Chip) HandleCommand(id uint8, fn CommandFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fn == nil {
		delete(c.commands, id)
		return
	}
	c.commands[id] = fn
}

// runCommand dispatches a decrypted command. Callers hold c.mu.
func (c *Chip) runCommand(s *chipSession, id uint8, data []byte) (uint8, []byte) {
	if fn, ok := c.commands[id]; ok {
		return fn(s.slot, data)
	}

	switch id {
	case CmdPing:
		return resultOK, append([]byte(nil), data...)

	case CmdPairingKeyWrite:
		if s.slot != 0 {
			return resultUnauthorized, nil
		}
		if len(data) != 1+crypto.X25519KeySize || data[0] > handshake.MaxPairingSlot {
			return resultFail, nil
		}
		slot := &c.slots[data[0]]
		if slot.state != slotEmpty {
			return resultFail, nil
		}
		slot.state = slotWritten
		copy(slot.key[:], data[1:])
		c.logf("pairing key written slot %d", data[0])
		return resultOK, nil

	case CmdPairingKeyRead:
		if len(data) != 1 || data[0] > handshake.MaxPairingSlot {
			return resultFail, nil
		}
		switch slot := c.slots[data[0]]; slot.state {
		case slotEmpty:
			return resultPairingKeyEmpty, nil
		case slotInvalidated:
			return resultPairingKeyInvalid, nil
		default:
			return resultOK, append([]byte(nil), slot.key[:]...)
		}

	case CmdPairingKeyInvalidate:
		if s.slot != 0 {
			return resultUnauthorized, nil
		}
		if len(data) != 1 || data[0] > handshake.MaxPairingSlot {
			return resultFail, nil
		}
		c.slots[data[0]] = pairingSlot{state: slotInvalidated}
		c.logf("pairing key invalidated slot %d", data[0])
		return resultOK, nil

	case CmdRandomValueGet:
		if len(data) != 1 {
			return resultFail, nil
		}
		out := make([]byte, data[0])
		if _, err := io.ReadFull(c.config.Rand, out); err != nil {
			return resultFail, nil
		}
		return resultOK, out

	default:
		return resultInvalidCmd, nil
	}
}
