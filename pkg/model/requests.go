package model

import (
	"encoding/binary"
	"errors"

	"github.com/backkem/selink/pkg/crypto"
	"github.com/backkem/selink/pkg/handshake"
	"github.com/backkem/selink/pkg/link"
)

// handle processes one L2 request and returns the response frames.
// Callers hold c.mu.
func (c *Chip) handle(req link.Request) [][]byte {
	switch req.ID {
	case link.ReqGetInfo:
		return c.getInfo(req.Data)
	case link.ReqHandshake:
		return c.handshake(req.Data)
	case link.ReqEncryptedCmd:
		return c.encryptedCmd(req.Data)
	case link.ReqSessionAbort:
		c.endSession()
		return ok(nil)
	case link.ReqSleep:
		return c.sleep(req.Data)
	case link.ReqStartup:
		return c.startup(req.Data)
	case link.ReqGetLog:
		if c.config.LogDisabled {
			return [][]byte{statusFrame(link.StatusRespDisabled)}
		}
		return ok(c.fwLog[max(0, len(c.fwLog)-link.MaxDataSize):])
	default:
		return [][]byte{statusFrame(link.StatusUnknownReq)}
	}
}

func ok(data []byte) [][]byte {
	return [][]byte{frame(link.StatusReqOK, data)}
}

func genErr() [][]byte {
	return [][]byte{statusFrame(link.StatusGenErr)}
}

func (c *Chip) getInfo(data []byte) [][]byte {
	if len(data) != 2 {
		return genErr()
	}
	switch link.InfoObject(data[0]) {
	case link.InfoX509Certificate:
		off := int(data[1]) * link.CertBlockSize
		if off >= len(c.certStore) {
			return genErr()
		}
		return ok(c.certStore[off:min(off+link.CertBlockSize, len(c.certStore))])
	case link.InfoChipID:
		return ok(c.chipID)
	case link.InfoRISCVFirmware, link.InfoSPECTFirmware:
		return ok(c.config.FirmwareVersion[:])
	default:
		return [][]byte{statusFrame(link.StatusUnknownReq)}
	}
}

func (c *Chip) handshake(data []byte) [][]byte {
	if c.maintenance {
		return [][]byte{statusFrame(link.StatusUnknownReq)}
	}
	if len(data) != link.HandshakeKeySize+1 {
		return genErr()
	}
	c.endSession()
	c.stats.Handshakes++

	var req link.HandshakeRequest
	copy(req.EphemeralPublic[:], data)
	req.PairingSlot = data[link.HandshakeKeySize]

	rsp, keys, err := handshake.Respond(handshake.ResponderConfig{
		Provider:    c.p,
		ChipPrivate: c.static,
		PairingKey:  c.pairingKey,
		Rand:        c.config.Rand,
	}, req)
	if err != nil {
		c.logf("handshake slot %d: %v", req.PairingSlot, err)
		return [][]byte{statusFrame(link.StatusHandshakeErr)}
	}
	defer keys.Erase()

	s, err := newChipSession(c.p, keys, req.PairingSlot)
	if err != nil {
		c.logf("handshake slot %d: %v", req.PairingSlot, err)
		return [][]byte{statusFrame(link.StatusHandshakeErr)}
	}
	c.session = s
	c.logf("session open slot %d", req.PairingSlot)

	out := make([]byte, 0, link.HandshakeKeySize+link.HandshakeTagSize)
	out = append(out, rsp.EphemeralPublic[:]...)
	out = append(out, rsp.AuthTag[:]...)
	return ok(out)
}

func (c *Chip) pairingKey(slot uint8) ([crypto.X25519KeySize]byte, bool) {
	if int(slot) >= len(c.slots) || c.slots[slot].state != slotWritten {
		return [crypto.X25519KeySize]byte{}, false
	}
	return c.slots[slot].key, true
}

// encryptedCmd collects one chunk of an L3 command packet. The packet is
// complete when its size field plus tag are covered.
func (c *Chip) encryptedCmd(data []byte) [][]byte {
	if c.session == nil {
		c.packet = c.packet[:0]
		return [][]byte{statusFrame(link.StatusNoSession)}
	}
	c.packet = append(c.packet, data...)
	if len(c.packet) < packetSizeField {
		return [][]byte{frame(link.StatusReqCont, nil)}
	}

	total := packetSizeField + int(binary.LittleEndian.Uint16(c.packet)) + crypto.TagSize
	switch {
	case total > maxPacketSize || len(c.packet) > total:
		c.logf("bad command packet: %d of %d bytes", len(c.packet), total)
		c.packet = c.packet[:0]
		return genErr()
	case len(c.packet) < total:
		return [][]byte{frame(link.StatusReqCont, nil)}
	}

	packet := c.packet
	c.packet = nil
	result, err := c.session.execute(c, packet)
	if err != nil {
		c.logf("command packet: %v", err)
		c.endSession()
		if errors.Is(err, crypto.ErrAuthFailed) {
			return [][]byte{statusFrame(link.StatusTagErr)}
		}
		return genErr()
	}

	frames := ok(nil)
	for off := 0; off < len(result); off += link.MaxDataSize {
		end := min(off+link.MaxDataSize, len(result))
		status := link.StatusResCont
		if end == len(result) {
			status = link.StatusResOK
		}
		frames = append(frames, frame(status, result[off:end]))
	}
	return frames
}

func (c *Chip) sleep(data []byte) [][]byte {
	if len(data) != 1 {
		return genErr()
	}
	switch link.SleepKind(data[0]) {
	case link.SleepKindSleep, link.SleepKindDeepSleep:
		c.endSession()
		c.logf("sleep %s", link.SleepKind(data[0]))
		return ok(nil)
	default:
		return genErr()
	}
}

func (c *Chip) startup(data []byte) [][]byte {
	if len(data) != 1 {
		return genErr()
	}
	switch link.StartupKind(data[0]) {
	case link.StartupReboot:
		c.maintenance = false
	case link.StartupMaintenanceReboot:
		c.maintenance = true
	default:
		return genErr()
	}
	c.endSession()
	c.logf("startup %s", link.StartupKind(data[0]))
	return ok(nil)
}
