package securechannel

import (
	"encoding/binary"
	"math"

	"github.com/backkem/selink/pkg/crypto"
)

// Nonce is an AES-GCM nonce whose low four bytes hold a little-endian
// counter. The upper bytes stay zero.
type Nonce [crypto.NonceSize]byte

// Counter returns the counter value.
func (n *Nonce) Counter() uint32 {
	return binary.LittleEndian.Uint32(n[:4])
}

// CanAdvance reports whether the counter has not reached its limit.
func (n *Nonce) CanAdvance() bool {
	return n.Counter() < math.MaxUint32
}

// Advance increments the counter. It never wraps.
func (n *Nonce) Advance() error {
	if !n.CanAdvance() {
		return ErrNonceExhausted
	}
	binary.LittleEndian.PutUint32(n[:4], n.Counter()+1)
	return nil
}

// Reset sets the counter to zero.
func (n *Nonce) Reset() {
	*n = Nonce{}
}
