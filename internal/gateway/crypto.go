package gateway

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrDecrypt covers undecryptable webhook payloads (bad tag, bad base64).
// The delivery must be answered with a failure envelope so the gateway
// retries the same, deterministic payload.
var ErrDecrypt = errors.New("gateway: failed to decrypt webhook payload")

// Cipher decrypts webhook resources with the APIv3 key shared out-of-band
// with the gateway. The scheme is AES-256-GCM; the authentication tag is
// the last 16 bytes of the decoded ciphertext.
type Cipher struct {
	aead cipher.AEAD
}

func NewCipher(apiV3Key string) (*Cipher, error) {
	if len(apiV3Key) != 32 {
		return nil, fmt.Errorf("gateway: APIv3 key must be 32 bytes, got %d", len(apiV3Key))
	}

	block, err := aes.NewCipher([]byte(apiV3Key))
	if err != nil {
		return nil, fmt.Errorf("gateway: failed to init AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gateway: failed to init GCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

func (c *Cipher) Decrypt(associatedData, nonce, ciphertextB64 string) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %v", ErrDecrypt, err)
	}

	plaintext, err := c.aead.Open(nil, []byte(nonce), ciphertext, []byte(associatedData))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return plaintext, nil
}

// Encrypt is the inverse of Decrypt. The service itself never encrypts;
// it exists for building gateway-shaped payloads in tests and tooling.
func (c *Cipher) Encrypt(associatedData, nonce string, plaintext []byte) (string, error) {
	if len(nonce) != c.aead.NonceSize() {
		return "", fmt.Errorf("gateway: nonce must be %d bytes, got %d", c.aead.NonceSize(), len(nonce))
	}
	ciphertext := c.aead.Seal(nil, []byte(nonce), plaintext, []byte(associatedData))
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}
