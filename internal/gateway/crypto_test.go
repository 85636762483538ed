package gateway_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gallerix/payment-service/internal/gateway"
)

const testAPIv3Key = "0123456789abcdef0123456789abcdef"

func TestNewCipher_KeyLength(t *testing.T) {
	_, err := gateway.NewCipher("too-short")
	assert.Error(t, err)

	_, err = gateway.NewCipher(testAPIv3Key)
	assert.NoError(t, err)
}

func TestCipher_RoundTrip(t *testing.T) {
	c, err := gateway.NewCipher(testAPIv3Key)
	require.NoError(t, err)

	plaintext := []byte(`{"out_trade_no":"O1","trade_state":"SUCCESS"}`)

	ciphertext, err := c.Encrypt("transaction", "nonce1234567", plaintext)
	require.NoError(t, err)

	decrypted, err := c.Decrypt("transaction", "nonce1234567", ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestCipher_Decrypt_Failures(t *testing.T) {
	c, err := gateway.NewCipher(testAPIv3Key)
	require.NoError(t, err)

	ciphertext, err := c.Encrypt("transaction", "nonce1234567", []byte(`{"ok":true}`))
	require.NoError(t, err)

	tests := []struct {
		name           string
		associatedData string
		nonce          string
		ciphertext     string
	}{
		{"wrong_associated_data", "refund", "nonce1234567", ciphertext},
		{"wrong_nonce", "transaction", "nonce7654321", ciphertext},
		{"invalid_base64", "transaction", "nonce1234567", "%%%"},
		{"truncated_ciphertext", "transaction", "nonce1234567", ciphertext[:8]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decrypt(tt.associatedData, tt.nonce, tt.ciphertext)
			assert.ErrorIs(t, err, gateway.ErrDecrypt)
		})
	}
}
