package discovery

import "errors"

// Sentinel errors.
var (
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("discovery: closed")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("discovery: already started")

	// ErrNotStarted is returned by Stop without a running advertisement.
	ErrNotStarted = errors.New("discovery: not started")

	ErrInvalidPort = errors.New("discovery: port out of range")

	// ErrServiceNotFound is returned when no model server answers.
	ErrServiceNotFound = errors.New("discovery: no model server found")

	// ErrTimeout is returned when a lookup runs out of time.
	ErrTimeout = errors.New("discovery: lookup timed out")

	// ErrInvalidTXTRecord is returned for a malformed model TXT record.
	ErrInvalidTXTRecord = errors.New("discovery: malformed TXT record")

	// ErrNoAddresses is returned when a resolved service carries no usable IP.
	ErrNoAddresses = errors.New("discovery: no usable addresses")
)
