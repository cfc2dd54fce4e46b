package port

import "fmt"

// Tag identifies a tagged protocol message. Replies echo the request tag.
type Tag uint8

const (
	TagCSNLow      Tag = 0x01
	TagCSNHigh     Tag = 0x02
	TagSPISend     Tag = 0x03
	TagPowerOn     Tag = 0x04
	TagPowerOff    Tag = 0x05
	TagWait        Tag = 0x06
	TagResetTarget Tag = 0x10

	// TagInvalid is the reply to a malformed message.
	TagInvalid Tag = 0xFD

	// TagUnsupported is the reply to a well-formed message with an unknown
	// tag.
	TagUnsupported Tag = 0xFE
)

// String returns the tag name.
func (t Tag) String() string {
	switch t {
	case TagCSNLow:
		return "CSN_LOW"
	case TagCSNHigh:
		return "CSN_HIGH"
	case TagSPISend:
		return "SPI_SEND"
	case TagPowerOn:
		return "POWER_ON"
	case TagPowerOff:
		return "POWER_OFF"
	case TagWait:
		return "WAIT"
	case TagResetTarget:
		return "RESET_TARGET"
	case TagInvalid:
		return "INVALID"
	case TagUnsupported:
		return "UNSUPPORTED"
	default:
		return fmt.Sprintf("Tag(0x%02x)", uint8(t))
	}
}

// IsValid reports whether t is a request tag a server is expected to handle.
func (t Tag) IsValid() bool {
	switch t {
	case TagCSNLow, TagCSNHigh, TagSPISend, TagPowerOn, TagPowerOff, TagWait, TagResetTarget:
		return true
	default:
		return false
	}
}
