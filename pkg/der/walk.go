package der

import (
	"errors"
	"fmt"
)

// WalkFunc is called for every element in depth-first order. The top-level
// element has depth 0. Returning SkipAll stops the walk; any other error
// aborts it and is returned by Walk.
type WalkFunc func(depth int, el Element) error

// Walk decodes stream, which must start with a constructed element, and
// visits every element in it. Bytes after the top-level element are ignored.
func Walk(stream []byte, fn WalkFunc) error {
	root, err := readElement(stream, 0)
	if err != nil {
		return err
	}
	if !root.Tag.IsConstructed() {
		return fmt.Errorf("%w: top-level %s is not constructed", ErrInvalidEncoding, root.Tag)
	}

	err = walk(root, 0, fn)
	if errors.Is(err, SkipAll) {
		return nil
	}
	return err
}

func walk(el Element, depth int, fn WalkFunc) error {
	if depth > MaxDepth {
		return ErrTooDeep
	}
	if err := fn(depth, el); err != nil {
		return err
	}
	if !el.Tag.IsConstructed() {
		return nil
	}

	// readElement bounds every child by el.Value, so the loop ends exactly
	// at the declared length or fails.
	for off := 0; off < len(el.Value); {
		child, err := readElement(el.Value, off)
		if err != nil {
			return err
		}
		if err := walk(child, depth+1, fn); err != nil {
			return err
		}
		off += child.Size()
	}
	return nil
}
