// Package der implements the restricted DER reader used to pull the chip's
// static public key out of its certificate before any trust is established.
//
// The reader is a structural recursive-descent parser over a byte slice: it
// understands tag/length/value headers with up to 2 long-form length bytes,
// recurses into constructed elements (SEQUENCE, SET, context-specific) and
// treats everything else as an opaque primitive. Recursion depth is capped
// by MaxDepth since the input comes from the wire.
package der

import (
	"encoding/binary"
	"fmt"
)

// MaxDepth is the deepest nesting level accepted. X.509 certificates nest
// about 7 levels deep.
const MaxDepth = 16

// Tag is a single-byte DER identifier octet.
type Tag byte

// Universal tags of the supported subset.
const (
	TagBoolean         Tag = 0x01
	TagInteger         Tag = 0x02
	TagBitString       Tag = 0x03
	TagOctetString     Tag = 0x04
	TagNull            Tag = 0x05
	TagOID             Tag = 0x06
	TagUTF8String      Tag = 0x0C
	TagPrintableString Tag = 0x13
	TagUTCTime         Tag = 0x17
	TagGeneralizedTime Tag = 0x18
	TagSequence        Tag = 0x30
	TagSet             Tag = 0x31
)

const (
	tagConstructedBit = 0x20
	tagNumberMask     = 0x1F
	tagClassShift     = 6

	lengthLongForm = 0x80
	maxLengthBytes = 2
)

// Class is the two-bit tag class.
type Class uint8

const (
	ClassUniversal Class = iota
	ClassApplication
	ClassContextSpecific
	ClassPrivate
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case ClassUniversal:
		return "Universal"
	case ClassApplication:
		return "Application"
	case ClassContextSpecific:
		return "ContextSpecific"
	case ClassPrivate:
		return "Private"
	default:
		return "Unknown"
	}
}

// Class returns the tag class.
func (t Tag) Class() Class {
	return Class(byte(t) >> tagClassShift)
}

// IsConstructed reports whether the element contains nested elements.
func (t Tag) IsConstructed() bool {
	return byte(t)&tagConstructedBit != 0
}

// Number returns the low-tag-number part of t.
func (t Tag) Number() uint8 {
	return byte(t) & tagNumberMask
}

// String returns a human-readable name for the tag.
func (t Tag) String() string {
	switch t {
	case TagBoolean:
		return "BOOLEAN"
	case TagInteger:
		return "INTEGER"
	case TagBitString:
		return "BIT STRING"
	case TagOctetString:
		return "OCTET STRING"
	case TagNull:
		return "NULL"
	case TagOID:
		return "OBJECT IDENTIFIER"
	case TagUTF8String:
		return "UTF8String"
	case TagPrintableString:
		return "PrintableString"
	case TagUTCTime:
		return "UTCTime"
	case TagGeneralizedTime:
		return "GeneralizedTime"
	case TagSequence:
		return "SEQUENCE"
	case TagSet:
		return "SET"
	}
	if t.Class() == ClassContextSpecific {
		return fmt.Sprintf("[%d]", t.Number())
	}
	return fmt.Sprintf("tag(0x%02x)", byte(t))
}

// Element is one decoded tag/length/value triple. Value and Raw alias the
// input slice.
type Element struct {
	Tag Tag

	// Raw is the full encoding, header included.
	Raw []byte

	// Value is the content octets.
	Value []byte
}

// Size returns the encoded size of the element including its header.
func (e Element) Size() int {
	return len(e.Raw)
}

// readElement decodes the element starting at data[off]. The element must
// fit inside data; anything reaching past the end is reported as
// ErrInvalidEncoding so that a child overrunning its parent is caught.
func readElement(data []byte, off int) (Element, error) {
	if off+2 > len(data) {
		return Element{}, fmt.Errorf("%w: truncated header at offset %d", ErrInvalidEncoding, off)
	}

	tag := Tag(data[off])
	if tag.Number() == tagNumberMask {
		return Element{}, fmt.Errorf("%w: high tag number form at offset %d", ErrUnsupported, off)
	}

	hdr := 2
	length := int(data[off+1])
	if length&lengthLongForm != 0 {
		n := length &^ lengthLongForm
		switch {
		case n == 0:
			return Element{}, fmt.Errorf("%w: indefinite length at offset %d", ErrUnsupported, off)
		case n > maxLengthBytes:
			return Element{}, fmt.Errorf("%w: %d length bytes at offset %d", ErrUnsupported, n, off)
		}
		if off+2+n > len(data) {
			return Element{}, fmt.Errorf("%w: truncated length at offset %d", ErrInvalidEncoding, off)
		}
		if n == 1 {
			length = int(data[off+2])
		} else {
			length = int(binary.BigEndian.Uint16(data[off+2 : off+4]))
		}
		hdr += n
	}

	end := off + hdr + length
	if end > len(data) {
		return Element{}, fmt.Errorf("%w: %s at offset %d declares %d bytes, %d available",
			ErrInvalidEncoding, tag, off, length, len(data)-off-hdr)
	}

	return Element{
		Tag:   tag,
		Raw:   data[off:end],
		Value: data[off+hdr : end],
	}, nil
}

// Parse decodes the single element at the start of data. Bytes after it are
// ignored.
func Parse(data []byte) (Element, error) {
	return readElement(data, 0)
}

// Children decodes the direct children of a constructed element. The
// children must exactly fill el.Value.
func Children(el Element) ([]Element, error) {
	if !el.Tag.IsConstructed() {
		return nil, fmt.Errorf("%w: %s has no children", ErrInvalidEncoding, el.Tag)
	}
	var out []Element
	for off := 0; off < len(el.Value); {
		child, err := readElement(el.Value, off)
		if err != nil {
			return nil, err
		}
		out = append(out, child)
		off += child.Size()
	}
	return out, nil
}
