package model

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/backkem/selink/pkg/certstore"
)

// Certificate validity of the generated chain.
const certValidity = 20 * 365 * 24 * time.Hour

// issueCertStore creates the chip's certificate store: an X25519 device
// certificate for static, issued by an Ed25519 intermediate, issued by a
// self-signed ECDSA P-256 root. crypto/x509 only signs the two CA
// certificates.
func issueCertStore(rand io.Reader, static *ecdh.PrivateKey, serial []byte) ([]byte, error) {
	rootKey, err := ecdsa.GenerateKey(elliptic.P256(), rand)
	if err != nil {
		return nil, err
	}
	interPub, interKey, err := ed25519.GenerateKey(rand)
	if err != nil {
		return nil, err
	}

	notBefore := time.Now().Add(-time.Hour).UTC()
	template := func(n int64, cn string) *x509.Certificate {
		return &x509.Certificate{
			SerialNumber:          big.NewInt(n),
			Subject:               pkix.Name{Organization: []string{"selink model"}, CommonName: cn},
			NotBefore:             notBefore,
			NotAfter:              notBefore.Add(certValidity),
			BasicConstraintsValid: true,
			IsCA:                  true,
			KeyUsage:              x509.KeyUsageCertSign,
		}
	}

	rootTmpl := template(1, "model root")
	rootDER, err := x509.CreateCertificate(rand, rootTmpl, rootTmpl, &rootKey.PublicKey, rootKey)
	if err != nil {
		return nil, fmt.Errorf("root certificate: %w", err)
	}
	root, err := x509.ParseCertificate(rootDER)
	if err != nil {
		return nil, err
	}

	interDER, err := x509.CreateCertificate(rand, template(2, "model intermediate"), root, interPub, rootKey)
	if err != nil {
		return nil, fmt.Errorf("intermediate certificate: %w", err)
	}
	inter, err := x509.ParseCertificate(interDER)
	if err != nil {
		return nil, err
	}

	devDER, err := certstore.CreateDeviceCertificate(certstore.DeviceTemplate{
		SerialNumber: 3,
		CommonName:   fmt.Sprintf("model device %x", serial),
		NotBefore:    notBefore,
		NotAfter:     notBefore.Add(certValidity),
	}, static.PublicKey().Bytes(), inter, interKey)
	if err != nil {
		return nil, fmt.Errorf("device certificate: %w", err)
	}

	return certstore.Encode(devDER, interDER, rootDER)
}
