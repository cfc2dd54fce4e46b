package certstore

import (
	"crypto/ed25519"
	"crypto/x509"
	encasn1 "encoding/asn1"
	"errors"
	"fmt"
	"time"

	"github.com/backkem/selink/pkg/crypto"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

var (
	asn1OIDEd25519    = encasn1.ObjectIdentifier{1, 3, 101, 112}
	asn1OIDX25519     = encasn1.ObjectIdentifier{1, 3, 101, 110}
	asn1OIDCommonName = encasn1.ObjectIdentifier{2, 5, 4, 3}
	asn1OIDKeyUsage   = encasn1.ObjectIdentifier{2, 5, 29, 15}
)

// DeviceTemplate describes a device certificate.
type DeviceTemplate struct {
	SerialNumber int64
	CommonName   string
	NotBefore    time.Time
	NotAfter     time.Time
}

// CreateDeviceCertificate issues a v3 certificate for the X25519 key static,
// signed by an Ed25519 issuer. crypto/x509 refuses X25519 subject keys, so
// the DER is built directly. The certificate carries a critical key usage
// extension limited to key agreement.
func CreateDeviceCertificate(tmpl DeviceTemplate, static []byte, issuer *x509.Certificate, key ed25519.PrivateKey) ([]byte, error) {
	if len(static) != crypto.X25519KeySize {
		return nil, fmt.Errorf("device key is %d bytes: %w", len(static), crypto.ErrInvalidPublicKey)
	}
	if issuer == nil || issuer.PublicKeyAlgorithm != x509.Ed25519 {
		return nil, fmt.Errorf("%w: device issuer must hold an Ed25519 key", ErrUnsupportedAlgorithm)
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: Ed25519 issuer key is %d bytes", ErrUnsupportedAlgorithm, len(key))
	}
	if tmpl.SerialNumber <= 0 {
		return nil, errors.New("certstore: serial number must be positive")
	}

	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1(asn1.Tag(0).Constructed().ContextSpecific(), func(b *cryptobyte.Builder) {
			b.AddASN1Int64(2)
		})
		b.AddASN1Int64(tmpl.SerialNumber)
		addAlgorithm(b, asn1OIDEd25519)
		b.AddBytes(issuer.RawSubject)
		b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			addTime(b, tmpl.NotBefore)
			addTime(b, tmpl.NotAfter)
		})
		b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1(asn1.SET, func(b *cryptobyte.Builder) {
				b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
					b.AddASN1ObjectIdentifier(asn1OIDCommonName)
					b.AddASN1(asn1.UTF8String, func(b *cryptobyte.Builder) {
						b.AddBytes([]byte(tmpl.CommonName))
					})
				})
			})
		})
		b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			addAlgorithm(b, asn1OIDX25519)
			b.AddASN1BitString(static)
		})
		b.AddASN1(asn1.Tag(3).Constructed().ContextSpecific(), func(b *cryptobyte.Builder) {
			b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
				b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
					b.AddASN1ObjectIdentifier(asn1OIDKeyUsage)
					b.AddASN1Boolean(true)
					b.AddASN1(asn1.OCTET_STRING, func(b *cryptobyte.Builder) {
						// keyAgreement is bit 4: three unused bits in 0x08.
						b.AddASN1(asn1.BIT_STRING, func(b *cryptobyte.Builder) {
							b.AddBytes([]byte{0x03, 0x08})
						})
					})
				})
			})
		})
	})
	tbs, err := b.Bytes()
	if err != nil {
		return nil, fmt.Errorf("certstore: encode TBS: %w", err)
	}

	sig := ed25519.Sign(key, tbs)

	b = cryptobyte.NewBuilder(nil)
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddBytes(tbs)
		addAlgorithm(b, asn1OIDEd25519)
		b.AddASN1BitString(sig)
	})
	return b.Bytes()
}

// addAlgorithm writes an AlgorithmIdentifier without parameters.
func addAlgorithm(b *cryptobyte.Builder, oid encasn1.ObjectIdentifier) {
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1ObjectIdentifier(oid)
	})
}

// addTime uses UTCTime through 2049 and GeneralizedTime after, as RFC 5280
// requires.
func addTime(b *cryptobyte.Builder, t time.Time) {
	t = t.UTC().Truncate(time.Second)
	if t.Year() < 2050 {
		b.AddASN1UTCTime(t)
		return
	}
	b.AddASN1GeneralizedTime(t)
}
