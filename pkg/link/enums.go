package link

import "fmt"

// ReqID identifies an L2 request.
type ReqID uint8

const (
	ReqGetInfo      ReqID = 0x01
	ReqHandshake    ReqID = 0x02
	ReqEncryptedCmd ReqID = 0x04
	ReqSessionAbort ReqID = 0x08
	ReqResend       ReqID = 0x10
	ReqSleep        ReqID = 0x20
	ReqGetLog       ReqID = 0xA2
	ReqStartup      ReqID = 0xB3
)

// String returns the request name.
func (r ReqID) String() string {
	switch r {
	case ReqGetInfo:
		return "GET_INFO"
	case ReqHandshake:
		return "HANDSHAKE"
	case ReqEncryptedCmd:
		return "ENCRYPTED_CMD"
	case ReqSessionAbort:
		return "ENCRYPTED_SESSION_ABT"
	case ReqResend:
		return "RESEND"
	case ReqSleep:
		return "SLEEP"
	case ReqGetLog:
		return "GET_LOG"
	case ReqStartup:
		return "STARTUP"
	default:
		return fmt.Sprintf("ReqID(0x%02x)", uint8(r))
	}
}

// IsValid reports whether r is a known request.
func (r ReqID) IsValid() bool {
	switch r {
	case ReqGetInfo, ReqHandshake, ReqEncryptedCmd, ReqSessionAbort,
		ReqResend, ReqSleep, ReqGetLog, ReqStartup:
		return true
	default:
		return false
	}
}

// Status is the L2 response status byte.
type Status uint8

const (
	StatusReqOK         Status = 0x01
	StatusResOK         Status = 0x02
	StatusReqCont       Status = 0x03
	StatusResCont       Status = 0x04
	StatusRespDisabled  Status = 0x78
	StatusHandshakeErr  Status = 0x79
	StatusNoSession     Status = 0x7A
	StatusTagErr        Status = 0x7B
	StatusCRCErr        Status = 0x7C
	StatusUnknownReq    Status = 0x7E
	StatusGenErr        Status = 0x7F
	StatusNoResp        Status = 0xFF
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusReqOK:
		return "REQ_OK"
	case StatusResOK:
		return "RES_OK"
	case StatusReqCont:
		return "REQ_CONT"
	case StatusResCont:
		return "RES_CONT"
	case StatusRespDisabled:
		return "RESP_DISABLED"
	case StatusHandshakeErr:
		return "HSK_ERR"
	case StatusNoSession:
		return "NO_SESSION"
	case StatusTagErr:
		return "TAG_ERR"
	case StatusCRCErr:
		return "CRC_ERR"
	case StatusUnknownReq:
		return "UNKNOWN_REQ"
	case StatusGenErr:
		return "GEN_ERR"
	case StatusNoResp:
		return "NO_RESP"
	default:
		return fmt.Sprintf("Status(0x%02x)", uint8(s))
	}
}

// IsSuccess reports whether s is one of the four success statuses.
func (s Status) IsSuccess() bool {
	switch s {
	case StatusReqOK, StatusResOK, StatusReqCont, StatusResCont:
		return true
	default:
		return false
	}
}

// resendable reports whether the device asks for the last exchange to be
// repeated.
func (s Status) resendable() bool {
	return s == StatusCRCErr || s == StatusGenErr
}

// CHIP_STATUS bits returned as the first MISO byte of every transaction.
const (
	ChipStatusReady = 0x01
	ChipStatusAlarm = 0x02
	ChipStatusStart = 0x04
)

// GetResponse is the L1 command byte that starts a response read.
const GetResponse = 0xAA

// Mode is the chip's firmware mode as observed from CHIP_STATUS.
type Mode uint8

const (
	ModeUnknown Mode = iota
	ModeApplication
	ModeMaintenance
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeApplication:
		return "Application"
	case ModeMaintenance:
		return "Maintenance"
	default:
		return "Unknown"
	}
}

// InfoObject selects what GET_INFO returns.
type InfoObject uint8

const (
	InfoX509Certificate InfoObject = 0x00
	InfoChipID          InfoObject = 0x01
	InfoRISCVFirmware   InfoObject = 0x02
	InfoSPECTFirmware   InfoObject = 0x04
	InfoFirmwareBank    InfoObject = 0xB0
)

// String returns the object name.
func (o InfoObject) String() string {
	switch o {
	case InfoX509Certificate:
		return "X509_CERTIFICATE"
	case InfoChipID:
		return "CHIP_ID"
	case InfoRISCVFirmware:
		return "RISCV_FW_VERSION"
	case InfoSPECTFirmware:
		return "SPECT_FW_VERSION"
	case InfoFirmwareBank:
		return "FW_BANK"
	default:
		return fmt.Sprintf("InfoObject(0x%02x)", uint8(o))
	}
}

// SleepKind selects the sleep depth.
type SleepKind uint8

const (
	SleepKindSleep     SleepKind = 0x05
	SleepKindDeepSleep SleepKind = 0x0A
)

// StartupKind selects the reboot target.
type StartupKind uint8

const (
	StartupReboot            StartupKind = 0x01
	StartupMaintenanceReboot StartupKind = 0x03
)

// String returns the sleep kind name.
func (k SleepKind) String() string {
	switch k {
	case SleepKindSleep:
		return "SLEEP"
	case SleepKindDeepSleep:
		return "DEEP_SLEEP"
	default:
		return fmt.Sprintf("SleepKind(0x%02x)", uint8(k))
	}
}

// String returns the startup kind name.
func (k StartupKind) String() string {
	switch k {
	case StartupReboot:
		return "REBOOT"
	case StartupMaintenanceReboot:
		return "MAINTENANCE_REBOOT"
	default:
		return fmt.Sprintf("StartupKind(0x%02x)", uint8(k))
	}
}
