package port

import "errors"

// Port errors.
var (
	// ErrClosed is returned when an operation is attempted on a closed port.
	ErrClosed = errors.New("port: closed")

	// ErrNotInitialized is returned when an operation requires Init first.
	ErrNotInitialized = errors.New("port: not initialized")

	// ErrAlreadyInitialized is returned when Init is called twice.
	ErrAlreadyInitialized = errors.New("port: already initialized")

	// ErrNotSelected is returned by Transfer when chip select is not asserted.
	ErrNotSelected = errors.New("port: chip not selected")

	// ErrTimeout is returned when the peer does not answer in time.
	ErrTimeout = errors.New("port: timeout")

	// ErrProtocol is returned when the peer violates the tagged protocol.
	ErrProtocol = errors.New("port: protocol violation")

	// ErrUnsupported is returned when the peer does not implement a tag.
	ErrUnsupported = errors.New("port: operation not supported by peer")

	// ErrMessageTooLarge is returned when a payload exceeds MaxPayloadSize.
	ErrMessageTooLarge = errors.New("port: message too large")

	// ErrInvalidConfig is returned when a port configuration is incomplete.
	ErrInvalidConfig = errors.New("port: invalid configuration")
)
