package discovery

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// DNS-SD service parameters.
const (
	// ServiceModel is the service type announced by chip model servers.
	ServiceModel = "_selink._tcp"

	// DefaultDomain is the mDNS domain.
	DefaultDomain = "local."

	// InstancePrefix starts every model instance name.
	InstancePrefix = "selink-"
)

// TXT record keys.
const (
	txtKeyChipID   = "id"
	txtKeyFirmware = "fw"
	txtKeyMode     = "mode"
)

// Firmware modes as carried in the TXT record.
const (
	ModeApplication = "app"
	ModeMaintenance = "maint"
)

// ModelTXT is the TXT record of a model server.
type ModelTXT struct {
	// ChipID is the chip identification, shortened to its first 8 bytes
	// on the wire.
	ChipID []byte

	// Firmware is the RISC-V firmware version.
	Firmware [4]byte

	// Maintenance is set when the model runs maintenance firmware.
	Maintenance bool
}

// Encode returns the TXT strings.
func (t ModelTXT) Encode() []string {
	id := t.ChipID
	if len(id) > 8 {
		id = id[:8]
	}
	mode := ModeApplication
	if t.Maintenance {
		mode = ModeMaintenance
	}
	return []string{
		txtKeyChipID + "=" + hex.EncodeToString(id),
		fmt.Sprintf("%s=%d.%d.%d.%d", txtKeyFirmware, t.Firmware[0], t.Firmware[1], t.Firmware[2], t.Firmware[3]),
		txtKeyMode + "=" + mode,
	}
}

// InstanceName returns the DNS-SD instance name derived from the chip ID.
func (t ModelTXT) InstanceName() string {
	id := t.ChipID
	if len(id) > 8 {
		id = id[:8]
	}
	return InstancePrefix + hex.EncodeToString(id)
}

// ParseTXT splits TXT strings into a key-value map. Keys are lowercased;
// entries without '=' map to an empty value.
func ParseTXT(records []string) map[string]string {
	m := make(map[string]string, len(records))
	for _, r := range records {
		k, v, _ := strings.Cut(r, "=")
		if k == "" {
			continue
		}
		m[strings.ToLower(k)] = v
	}
	return m
}

// DecodeModelTXT parses a model TXT map.
func DecodeModelTXT(m map[string]string) (ModelTXT, error) {
	var t ModelTXT

	id, err := hex.DecodeString(m[txtKeyChipID])
	if err != nil {
		return t, fmt.Errorf("%w: id: %w", ErrInvalidTXTRecord, err)
	}
	t.ChipID = id

	if fw, ok := m[txtKeyFirmware]; ok {
		var a, b, c, d uint8
		if _, err := fmt.Sscanf(fw, "%d.%d.%d.%d", &a, &b, &c, &d); err != nil {
			return t, fmt.Errorf("%w: fw %q", ErrInvalidTXTRecord, fw)
		}
		t.Firmware = [4]byte{a, b, c, d}
	}

	switch m[txtKeyMode] {
	case ModeApplication, "":
	case ModeMaintenance:
		t.Maintenance = true
	default:
		return t, fmt.Errorf("%w: mode %q", ErrInvalidTXTRecord, m[txtKeyMode])
	}
	return t, nil
}
