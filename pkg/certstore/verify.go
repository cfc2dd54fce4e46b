package certstore

import (
	"bytes"
	"fmt"

	"github.com/backkem/selink/pkg/crypto"
	"github.com/backkem/selink/pkg/der"
)

var (
	oidEd25519       = der.OIDEd25519[:]
	oidECPublicKey   = []byte{0x2A, 0x86, 0x48, 0xCE, 0x3D, 0x02, 0x01}
	oidECDSAWithSHA2 = []byte{0x2A, 0x86, 0x48, 0xCE, 0x3D, 0x04, 0x03, 0x02}
)

// subjectKey is a certificate's subject public key.
type subjectKey struct {
	algorithm []byte
	key       []byte
}

// VerifyChain checks that every certificate is signed by the next one and
// that the last one is self-signed. Only Ed25519 and ECDSA P-256/SHA-256
// issuers are supported.
func (s *Store) VerifyChain(p crypto.Provider) error {
	for i := range s.certs {
		issuer := i + 1
		if issuer == len(s.certs) {
			issuer = i
		}
		if err := verifyIssued(p, s.certs[i], s.certs[issuer]); err != nil {
			return fmt.Errorf("%w: certificate %d by %d: %v", ErrChainBroken, i, issuer, err)
		}
	}
	return nil
}

func verifyIssued(p crypto.Provider, cert, issuer []byte) error {
	outline, err := der.ParseOutline(cert)
	if err != nil {
		return err
	}
	pub, err := parseSubjectKey(issuer)
	if err != nil {
		return err
	}

	switch {
	case bytes.Equal(outline.SignatureAlgorithm, oidEd25519):
		if !bytes.Equal(pub.algorithm, oidEd25519) {
			return fmt.Errorf("%w: Ed25519 signature with %x issuer key", ErrUnsupportedAlgorithm, pub.algorithm)
		}
		return p.VerifyEd25519(pub.key, outline.TBS, outline.Signature)

	case bytes.Equal(outline.SignatureAlgorithm, oidECDSAWithSHA2):
		if !bytes.Equal(pub.algorithm, oidECPublicKey) {
			return fmt.Errorf("%w: ECDSA signature with %x issuer key", ErrUnsupportedAlgorithm, pub.algorithm)
		}
		digest := crypto.Sum(p, outline.TBS)
		return p.VerifyECDSAP256(pub.key, digest[:], outline.Signature)

	default:
		return fmt.Errorf("%w: signature %x", ErrUnsupportedAlgorithm, outline.SignatureAlgorithm)
	}
}

// parseSubjectKey walks TBSCertificate down to SubjectPublicKeyInfo:
//
//	TBSCertificate ::= SEQUENCE {
//	    version [0] EXPLICIT OPTIONAL, serialNumber, signature,
//	    issuer, validity, subject, subjectPublicKeyInfo, ... }
func parseSubjectKey(cert []byte) (subjectKey, error) {
	outline, err := der.ParseOutline(cert)
	if err != nil {
		return subjectKey{}, err
	}
	tbs, err := der.Parse(outline.TBS)
	if err != nil {
		return subjectKey{}, err
	}
	fields, err := der.Children(tbs)
	if err != nil {
		return subjectKey{}, err
	}
	if len(fields) > 0 && fields[0].Tag == der.Tag(0xA0) {
		fields = fields[1:]
	}
	const spkiIndex = 5
	if len(fields) <= spkiIndex {
		return subjectKey{}, fmt.Errorf("%w: TBS has %d fields", der.ErrInvalidEncoding, len(fields))
	}

	spki, err := der.Children(fields[spkiIndex])
	if err != nil {
		return subjectKey{}, err
	}
	if len(spki) != 2 || spki[1].Tag != der.TagBitString || len(spki[1].Value) < 1 {
		return subjectKey{}, fmt.Errorf("%w: malformed SubjectPublicKeyInfo", der.ErrInvalidEncoding)
	}
	alg, err := der.Children(spki[0])
	if err != nil {
		return subjectKey{}, err
	}
	if len(alg) == 0 || alg[0].Tag != der.TagOID {
		return subjectKey{}, fmt.Errorf("%w: malformed AlgorithmIdentifier", der.ErrInvalidEncoding)
	}

	return subjectKey{
		algorithm: alg[0].Value,
		key:       spki[1].Value[1:],
	}, nil
}
