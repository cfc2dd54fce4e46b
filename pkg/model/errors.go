package model

import "errors"

// Model errors.
var (
	// ErrInvalidConfig is returned when a Config is invalid.
	ErrInvalidConfig = errors.New("model: invalid config")

	// ErrPoweredOff is returned by port operations while the chip is off.
	ErrPoweredOff = errors.New("model: chip powered off")

	// ErrServerClosed is returned by Serve after Close.
	ErrServerClosed = errors.New("model: server closed")
)
