package securechannel

import "fmt"

// ResultCode is the first byte of a decrypted result packet.
type ResultCode uint8

const (
	ResultOK           ResultCode = 0xC3
	ResultFail         ResultCode = 0x3C
	ResultUnauthorized ResultCode = 0x01
	ResultInvalidCmd   ResultCode = 0x02

	// Command specific codes.
	ResultMemWriteFail      ResultCode = 0x10
	ResultMemSlotExpired    ResultCode = 0x11
	ResultECCInvalidKey     ResultCode = 0x12
	ResultMCounterUpdateErr ResultCode = 0x13
	ResultMCounterInvalid   ResultCode = 0x14
	ResultPairingKeyEmpty   ResultCode = 0x15
	ResultPairingKeyInvalid ResultCode = 0x16
)

// String returns the result code name.
func (r ResultCode) String() string {
	switch r {
	case ResultOK:
		return "OK"
	case ResultFail:
		return "FAIL"
	case ResultUnauthorized:
		return "UNAUTHORIZED"
	case ResultInvalidCmd:
		return "INVALID_CMD"
	case ResultMemWriteFail:
		return "R_MEM_WRITE_FAIL"
	case ResultMemSlotExpired:
		return "R_MEM_SLOT_EXPIRED"
	case ResultECCInvalidKey:
		return "ECC_INVALID_KEY"
	case ResultMCounterUpdateErr:
		return "MCOUNTER_UPDATE_ERROR"
	case ResultMCounterInvalid:
		return "MCOUNTER_INVALID"
	case ResultPairingKeyEmpty:
		return "PAIRING_KEY_EMPTY"
	case ResultPairingKeyInvalid:
		return "PAIRING_KEY_INVALID"
	default:
		return fmt.Sprintf("ResultCode(0x%02x)", uint8(r))
	}
}

// IsValid reports whether r is a known result code.
func (r ResultCode) IsValid() bool {
	switch r {
	case ResultOK, ResultFail, ResultUnauthorized, ResultInvalidCmd,
		ResultMemWriteFail, ResultMemSlotExpired, ResultECCInvalidKey,
		ResultMCounterUpdateErr, ResultMCounterInvalid,
		ResultPairingKeyEmpty, ResultPairingKeyInvalid:
		return true
	default:
		return false
	}
}

// advancesNonce reports whether the chip consumed its nonce pair for a
// packet answered with r. FAIL and INVALID_CMD leave both counters alone.
func (r ResultCode) advancesNonce() bool {
	return r.IsValid() && r != ResultFail && r != ResultInvalidCmd
}

// ResultError carries a command specific, non-OK result code.
type ResultError struct {
	Code ResultCode
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("securechannel: command result %s", e.Code)
}

// Command is an opaque L3 command.
type Command struct {
	ID   uint8
	Data []byte
}

// Response is a decrypted L3 result.
type Response struct {
	Result ResultCode
	Data   []byte
}

// Err maps a non-OK result to an error.
func (r *Response) Err() error {
	switch r.Result {
	case ResultOK:
		return nil
	case ResultFail:
		return ErrResultFail
	case ResultUnauthorized:
		return ErrUnauthorized
	case ResultInvalidCmd:
		return ErrInvalidCommand
	default:
		return &ResultError{Code: r.Result}
	}
}
