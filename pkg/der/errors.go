package der

import "errors"

var (
	// ErrInvalidEncoding is returned when the input is truncated or a
	// constructed element's declared length disagrees with its contents.
	ErrInvalidEncoding = errors.New("der: invalid encoding")

	// ErrUnsupported is returned for DER features outside the supported
	// subset: long-form lengths wider than 2 bytes, indefinite lengths and
	// high tag numbers.
	ErrUnsupported = errors.New("der: unsupported encoding")

	// ErrNotFound is returned when the requested object identifier does not
	// occur in the stream, or occurs with no primitive element after it.
	ErrNotFound = errors.New("der: object not found")

	// ErrTooDeep is returned when nesting exceeds MaxDepth.
	ErrTooDeep = errors.New("der: nesting too deep")

	// ErrEmptyBuffer is returned when FindObject is given a zero-capacity
	// output buffer.
	ErrEmptyBuffer = errors.New("der: empty output buffer")

	// SkipAll may be returned by a WalkFunc to stop the walk without error.
	SkipAll = errors.New("der: skip everything")
)
