package gateway

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	ErrUnknownSerial = errors.New("gateway: unknown certificate serial")
	ErrBadSignature  = errors.New("gateway: webhook signature verification failed")
)

// Verifier validates webhook signatures against a static registry of
// gateway certificates, keyed by certificate serial number. Verification
// must happen before any decryption is attempted.
type Verifier struct {
	keys map[string]*rsa.PublicKey
}

func NewVerifier(keys map[string]*rsa.PublicKey) *Verifier {
	return &Verifier{keys: keys}
}

// Verify checks the RSA-SHA256 signature over
//
//	timestamp\nnonce\nrawBody\n
//
// with the gateway public key matching serial. An unknown serial fails
// closed with ErrUnknownSerial.
func (v *Verifier) Verify(serial, signature, timestamp, nonce string, rawBody []byte) error {
	pub, ok := v.keys[strings.ToUpper(serial)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSerial, serial)
	}

	raw, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: invalid base64", ErrBadSignature)
	}

	msg := timestamp + "\n" + nonce + "\n" + string(rawBody) + "\n"
	digest := sha256.Sum256([]byte(msg))

	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], raw); err != nil {
		return ErrBadSignature
	}
	return nil
}

// LoadCertificates reads every CERTIFICATE block from a PEM file and
// returns a serial → public key registry for NewVerifier.
func LoadCertificates(path string) (map[string]*rsa.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gateway: failed to read certificate file %s: %w", path, err)
	}

	keys := make(map[string]*rsa.PublicKey)
	for {
		var block *pem.Block
		block, raw = pem.Decode(raw)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("gateway: failed to parse certificate in %s: %w", path, err)
		}
		pub, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("gateway: certificate %s carries a non-RSA key", cert.SerialNumber)
		}
		keys[strings.ToUpper(cert.SerialNumber.Text(16))] = pub
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("gateway: no certificates found in %s", path)
	}
	return keys, nil
}
