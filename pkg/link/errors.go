package link

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig = errors.New("link: invalid configuration")

	// ErrAlarm is returned when CHIP_STATUS reports the alarm state.
	ErrAlarm = errors.New("link: chip in alarm mode")

	// ErrChipBusy is returned when the chip never becomes ready within the
	// configured number of polls.
	ErrChipBusy = errors.New("link: chip not ready")

	// ErrResponseCRC is returned when a response frame fails the host CRC
	// check after every resend was used.
	ErrResponseCRC = errors.New("link: response CRC mismatch")

	// ErrInvalidFrame is returned for frames with an impossible length.
	ErrInvalidFrame = errors.New("link: invalid frame")

	ErrDataTooLarge     = errors.New("link: request data too large")
	ErrBufferOverflow   = errors.New("link: response exceeds buffer")
	ErrTooManyChunks    = errors.New("link: too many response chunks")
	ErrUnexpectedStatus = errors.New("link: unexpected response status")
)

// Errors matched by StatusError for device-reported failures.
var (
	ErrResponseDisabled = errors.New("link: request disabled")
	ErrHandshake        = errors.New("link: handshake failed")
	ErrNoSession        = errors.New("link: no secure session on chip")
	ErrTag              = errors.New("link: chip rejected L3 tag")
	ErrCRC              = errors.New("link: chip reported CRC error")
	ErrUnknownRequest   = errors.New("link: unknown request")
	ErrGeneric          = errors.New("link: chip reported generic error")
)

// StatusError is a non-success status returned by the chip.
type StatusError struct {
	Request ReqID
	Status  Status
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("link: %s: chip status %s", e.Request, e.Status)
}

// Is matches the status sentinels.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrResponseDisabled:
		return e.Status == StatusRespDisabled
	case ErrHandshake:
		return e.Status == StatusHandshakeErr
	case ErrNoSession:
		return e.Status == StatusNoSession
	case ErrTag:
		return e.Status == StatusTagErr
	case ErrCRC:
		return e.Status == StatusCRCErr
	case ErrUnknownRequest:
		return e.Status == StatusUnknownReq
	case ErrGeneric:
		return e.Status == StatusGenErr
	case ErrUnexpectedStatus:
		return !e.Status.IsSuccess() && !e.isKnownFailure()
	}
	return false
}

func (e *StatusError) isKnownFailure() bool {
	switch e.Status {
	case StatusRespDisabled, StatusHandshakeErr, StatusNoSession, StatusTagErr,
		StatusCRCErr, StatusUnknownReq, StatusGenErr:
		return true
	}
	return false
}
