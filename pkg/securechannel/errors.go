package securechannel

import "errors"

// Secure channel errors.
var (
	// ErrInvalidConfig is returned when a Config or StartConfig is invalid.
	ErrInvalidConfig = errors.New("securechannel: invalid config")

	// ErrNoSession is returned when a command is issued without an
	// established session. The port is not touched.
	ErrNoSession = errors.New("securechannel: no secure session")

	// ErrHandshake is returned by Start when either side refuses the
	// handshake: the chip for an unusable pairing slot, the host for a
	// chip proof that does not verify. Local session state is left as it was.
	ErrHandshake = errors.New("securechannel: handshake refused")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("securechannel: session closed")

	// ErrCrypto is returned when a result packet fails authentication.
	ErrCrypto = errors.New("securechannel: result authentication failed")

	// ErrInvalidPacket is returned when a decrypted result packet is
	// malformed.
	ErrInvalidPacket = errors.New("securechannel: invalid result packet")

	// ErrCommandTooLarge is returned when command data exceeds MaxDataSize.
	ErrCommandTooLarge = errors.New("securechannel: command too large")

	// ErrNonceExhausted is returned when a nonce counter cannot advance.
	// A new session is required.
	ErrNonceExhausted = errors.New("securechannel: nonce exhausted")

	// ErrUnknownResult is returned for a result code the host does not know.
	// Nonces are not advanced.
	ErrUnknownResult = errors.New("securechannel: unknown result code")
)

// Result errors returned by Response.Err.
var (
	ErrResultFail     = errors.New("securechannel: command failed")
	ErrUnauthorized   = errors.New("securechannel: command not authorized")
	ErrInvalidCommand = errors.New("securechannel: invalid command")
)
