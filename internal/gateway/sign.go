// Package gateway implements the mobile-wallet payment gateway protocol:
// RSA-SHA256 request signing, webhook signature verification, AES-256-GCM
// payload decryption and the signed REST client.
package gateway

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

const authorizationScheme = "WALLETPAY2-SHA256-RSA2048"

// Signer signs outbound gateway requests with the merchant's private key.
type Signer struct {
	merchantID string
	serialNo   string
	key        *rsa.PrivateKey
}

func NewSigner(merchantID, serialNo string, key *rsa.PrivateKey) *Signer {
	return &Signer{merchantID: merchantID, serialNo: serialNo, key: key}
}

// Sign builds the canonical string
//
//	method\npath\ntimestamp\nnonce\nbody\n
//
// and returns its base64 RSA-SHA256 signature.
func (s *Signer) Sign(method, path, timestamp, nonce, body string) (string, error) {
	msg := method + "\n" + path + "\n" + timestamp + "\n" + nonce + "\n" + body + "\n"
	digest := sha256.Sum256([]byte(msg))

	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("gateway: failed to sign request: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// AuthorizationHeader signs the request and assembles the Authorization
// header value the gateway requires on every call.
func (s *Signer) AuthorizationHeader(method, path, body string) (string, error) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	nonce, err := newNonce()
	if err != nil {
		return "", err
	}

	signature, err := s.Sign(method, path, timestamp, nonce, body)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(`%s mchid="%s",nonce_str="%s",signature="%s",timestamp="%s",serial_no="%s"`,
		authorizationScheme, s.merchantID, nonce, signature, timestamp, s.serialNo), nil
}

func newNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("gateway: failed to generate nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// LoadPrivateKey reads a PEM-encoded RSA private key (PKCS#1 or PKCS#8).
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gateway: failed to read private key %s: %w", path, err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("gateway: no PEM block in private key %s", path)
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("gateway: failed to parse private key %s: %w", path, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("gateway: private key is not an RSA key")
	}
	return key, nil
}
