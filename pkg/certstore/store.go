// Package certstore decodes the certificate store read from the chip.
//
// The store is a small header followed by up to MaxCerts DER certificates:
//
//	version(1) | count(1) | len[0](2 BE) ... len[count-1](2 BE) | cert[0] ... cert[count-1]
//
// Certificate 0 is the device certificate holding the chip's static X25519
// public key (STPub). Each following certificate issues the previous one;
// the last is the self-signed root.
package certstore

import (
	"encoding/binary"
	"fmt"
)

const (
	// Version is the only supported store layout version.
	Version = 1

	// MaxCerts is the maximum number of certificates in a store.
	MaxCerts = 4

	// MaxSize bounds the whole store, header included.
	MaxSize = 3840

	// IndexDevice is the position of the device certificate.
	IndexDevice = 0

	fixedHeaderSize = 2
	certLenSize     = 2
)

// Store is a parsed certificate store. It is not modified after Parse.
type Store struct {
	Version uint8
	certs   [][]byte
}

// HeaderSize returns the header length of a store holding count certificates.
func HeaderSize(count int) int {
	return fixedHeaderSize + certLenSize*count
}

// TotalSize reads the header at the start of prefix and returns the size of
// the whole store. It lets a caller fetch the store block by block without
// knowing its length up front.
func TotalSize(prefix []byte) (int, error) {
	lens, err := parseHeader(prefix)
	if err != nil {
		return 0, err
	}
	total := HeaderSize(len(lens))
	for _, l := range lens {
		total += l
	}
	if total > MaxSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrTooLarge, total)
	}
	return total, nil
}

func parseHeader(b []byte) ([]int, error) {
	if len(b) < fixedHeaderSize {
		return nil, fmt.Errorf("%w: %d header bytes", ErrTruncated, len(b))
	}
	if b[0] != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, b[0])
	}
	count := int(b[1])
	if count == 0 || count > MaxCerts {
		return nil, fmt.Errorf("%w: %d", ErrCertCount, count)
	}
	if len(b) < HeaderSize(count) {
		return nil, fmt.Errorf("%w: header needs %d bytes, have %d", ErrTruncated, HeaderSize(count), len(b))
	}

	lens := make([]int, count)
	for i := range lens {
		off := fixedHeaderSize + certLenSize*i
		lens[i] = int(binary.BigEndian.Uint16(b[off:]))
		if lens[i] == 0 {
			return nil, fmt.Errorf("%w: index %d", ErrEmptyCert, i)
		}
	}
	return lens, nil
}

// Parse decodes a store blob. Bytes after the last certificate are ignored
// since the chip pads the store to whole read blocks.
func Parse(blob []byte) (*Store, error) {
	lens, err := parseHeader(blob)
	if err != nil {
		return nil, err
	}

	s := &Store{Version: blob[0], certs: make([][]byte, len(lens))}
	off := HeaderSize(len(lens))
	for i, l := range lens {
		if off+l > len(blob) {
			return nil, fmt.Errorf("%w: certificate %d needs %d bytes, have %d", ErrTruncated, i, l, len(blob)-off)
		}
		s.certs[i] = append([]byte(nil), blob[off:off+l]...)
		off += l
	}
	if off > MaxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, off)
	}
	return s, nil
}

// Encode builds a store blob from DER certificates, device certificate
// first.
func Encode(certs ...[]byte) ([]byte, error) {
	if len(certs) == 0 || len(certs) > MaxCerts {
		return nil, fmt.Errorf("%w: %d", ErrCertCount, len(certs))
	}
	total := HeaderSize(len(certs))
	for i, c := range certs {
		if len(c) == 0 {
			return nil, fmt.Errorf("%w: index %d", ErrEmptyCert, i)
		}
		total += len(c)
	}
	if total > MaxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, total)
	}

	out := make([]byte, HeaderSize(len(certs)), total)
	out[0] = Version
	out[1] = byte(len(certs))
	for i, c := range certs {
		binary.BigEndian.PutUint16(out[fixedHeaderSize+certLenSize*i:], uint16(len(c)))
	}
	for _, c := range certs {
		out = append(out, c...)
	}
	return out, nil
}

// Len returns the number of certificates.
func (s *Store) Len() int {
	return len(s.certs)
}

// Cert returns the DER encoding of certificate i. The returned slice must
// not be modified.
func (s *Store) Cert(i int) []byte {
	if i < 0 || i >= len(s.certs) {
		return nil
	}
	return s.certs[i]
}

// Device returns the device certificate.
func (s *Store) Device() []byte {
	return s.certs[IndexDevice]
}

// Root returns the last certificate in the store.
func (s *Store) Root() []byte {
	return s.certs[len(s.certs)-1]
}
