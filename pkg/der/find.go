package der

import (
	"bytes"
	"fmt"
)

// OIDSize is the content length of the object identifiers FindObject
// searches for.
const OIDSize = 3

// Well-known 3-byte object identifiers.
var (
	// OIDX25519 is id-X25519 (1.3.101.110).
	OIDX25519 = [OIDSize]byte{0x2B, 0x65, 0x6E}

	// OIDEd25519 is id-Ed25519 (1.3.101.112).
	OIDEd25519 = [OIDSize]byte{0x2B, 0x65, 0x70}
)

// CropPolicy selects which part of an oversized object FindObject keeps.
type CropPolicy int

const (
	// CropPrefix drops leading bytes and keeps the last len(out) bytes.
	CropPrefix CropPolicy = iota

	// CropSuffix drops trailing bytes and keeps the first len(out) bytes.
	CropSuffix
)

// String returns the policy name.
func (p CropPolicy) String() string {
	switch p {
	case CropPrefix:
		return "CropPrefix"
	case CropSuffix:
		return "CropSuffix"
	default:
		return "Unknown"
	}
}

// Result reports what FindObject wrote.
type Result struct {
	// N is the number of bytes written to the output buffer.
	N int

	// Cropped is set when the object was longer than the output buffer.
	Cropped bool

	// Size is the full length of the object's contents.
	Size int
}

// FindObject locates the first OBJECT IDENTIFIER whose contents equal oid and
// copies the contents of the next primitive element (in depth-first order)
// into out. Objects longer than out are cropped according to policy.
//
// For a certificate's SubjectPublicKeyInfo the element after the algorithm
// OID is the BIT STRING holding the key, preceded by its unused-bits octet;
// a 32-byte out with CropPrefix yields the raw key.
func FindObject(stream []byte, oid [OIDSize]byte, out []byte, policy CropPolicy) (Result, error) {
	if len(out) == 0 {
		return Result{}, ErrEmptyBuffer
	}

	var (
		armed bool
		value []byte
	)
	err := Walk(stream, func(_ int, el Element) error {
		if el.Tag.IsConstructed() {
			return nil
		}
		if armed {
			value = el.Value
			return SkipAll
		}
		if el.Tag == TagOID && bytes.Equal(el.Value, oid[:]) {
			armed = true
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if value == nil {
		return Result{}, fmt.Errorf("%w: %x", ErrNotFound, oid)
	}

	res := Result{Size: len(value)}
	if len(value) <= len(out) {
		res.N = copy(out, value)
		return res, nil
	}

	res.Cropped = true
	switch policy {
	case CropSuffix:
		res.N = copy(out, value[:len(out)])
	default:
		res.N = copy(out, value[len(value)-len(out):])
	}
	return res, nil
}
