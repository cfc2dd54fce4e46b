// Package port is the hardware abstraction the link layer drives.
//
// A Port moves raw bytes to and from the chip: it toggles chip select,
// clocks a full-duplex transfer in place, waits and supplies randomness.
// Two concrete ports speak the tagged model protocol (see Message): TCP,
// for a chip model or a network bridge, and UART, for a USB-serial bridge
// board. Pipe provides an in-memory connection pair for tests.
package port

import (
	"context"
	"time"
)

// Port is the transport contract consumed by the link layer. A Port is used
// by one session at a time.
type Port interface {
	// Init opens the underlying connection.
	Init(ctx context.Context) error

	// Deinit closes the underlying connection. It is safe to call more than
	// once.
	Deinit() error

	// SelectChip asserts chip select.
	SelectChip() error

	// DeselectChip releases chip select.
	DeselectChip() error

	// Transfer clocks buf out and replaces it with the bytes clocked in.
	// Chip select must be asserted.
	Transfer(buf []byte, timeout time.Duration) error

	// Delay blocks for d.
	Delay(d time.Duration) error

	// Random fills buf with random bytes.
	Random(buf []byte) error
}
