package der

import "fmt"

// Outline is the top-level split of a signed certificate.
type Outline struct {
	// TBS is the full encoding of the to-be-signed structure.
	TBS []byte

	// SignatureAlgorithm is the contents of the signature algorithm OID.
	SignatureAlgorithm []byte

	// Signature is the signature value with the BIT STRING padding octet
	// removed.
	Signature []byte
}

// ParseOutline splits cert into its TBS, signature algorithm and signature.
func ParseOutline(cert []byte) (Outline, error) {
	var o Outline

	root, err := readElement(cert, 0)
	if err != nil {
		return o, err
	}
	if root.Tag != TagSequence {
		return o, fmt.Errorf("%w: certificate is %s, want SEQUENCE", ErrInvalidEncoding, root.Tag)
	}

	var parts [3]Element
	off := 0
	for i := range parts {
		el, err := readElement(root.Value, off)
		if err != nil {
			return o, err
		}
		parts[i] = el
		off += el.Size()
	}
	if off != len(root.Value) {
		return o, fmt.Errorf("%w: %d trailing bytes in certificate", ErrInvalidEncoding, len(root.Value)-off)
	}

	tbs, alg, sig := parts[0], parts[1], parts[2]
	if tbs.Tag != TagSequence || alg.Tag != TagSequence || sig.Tag != TagBitString {
		return o, fmt.Errorf("%w: unexpected certificate layout %s/%s/%s", ErrInvalidEncoding, tbs.Tag, alg.Tag, sig.Tag)
	}

	algOID, err := readElement(alg.Value, 0)
	if err != nil {
		return o, err
	}
	if algOID.Tag != TagOID {
		return o, fmt.Errorf("%w: signature algorithm is %s", ErrInvalidEncoding, algOID.Tag)
	}

	if len(sig.Value) == 0 || sig.Value[0] != 0 {
		return o, fmt.Errorf("%w: signature BIT STRING has unused bits", ErrUnsupported)
	}

	o.TBS = tbs.Raw
	o.SignatureAlgorithm = algOID.Value
	o.Signature = sig.Value[1:]
	return o, nil
}
