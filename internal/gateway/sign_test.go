package gateway_test

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gallerix/payment-service/internal/gateway"
)

func newTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestSigner_Sign_Deterministic(t *testing.T) {
	key := newTestKey(t)
	signer := gateway.NewSigner("mch-1001", "SERIAL01", key)

	first, err := signer.Sign("POST", "/v3/pay/intents", "1700000000", "nonce-1", `{"out_trade_no":"O1"}`)
	require.NoError(t, err)
	second, err := signer.Sign("POST", "/v3/pay/intents", "1700000000", "nonce-1", `{"out_trade_no":"O1"}`)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotEmpty(t, first)
}

func TestSigner_AuthorizationHeader(t *testing.T) {
	key := newTestKey(t)
	signer := gateway.NewSigner("mch-1001", "SERIAL01", key)

	header, err := signer.AuthorizationHeader("POST", "/v3/refunds", `{}`)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(header, "WALLETPAY2-SHA256-RSA2048 "))
	assert.Contains(t, header, `mchid="mch-1001"`)
	assert.Contains(t, header, `serial_no="SERIAL01"`)
	assert.Contains(t, header, `signature="`)
	assert.Contains(t, header, `timestamp="`)
	assert.Contains(t, header, `nonce_str="`)
}

func TestVerifier_Verify(t *testing.T) {
	key := newTestKey(t)
	verifier := gateway.NewVerifier(map[string]*rsa.PublicKey{"SERIAL01": &key.PublicKey})

	body := []byte(`{"id":"evt-1"}`)
	sig := signWebhook(t, key, "1700000000", "nonce-1", body)

	tests := []struct {
		name      string
		serial    string
		signature string
		timestamp string
		nonce     string
		body      []byte
		wantErr   error
	}{
		{
			name:      "valid_signature",
			serial:    "SERIAL01",
			signature: sig,
			timestamp: "1700000000",
			nonce:     "nonce-1",
			body:      body,
		},
		{
			name:      "unknown_serial",
			serial:    "SERIAL99",
			signature: sig,
			timestamp: "1700000000",
			nonce:     "nonce-1",
			body:      body,
			wantErr:   gateway.ErrUnknownSerial,
		},
		{
			name:      "tampered_body",
			serial:    "SERIAL01",
			signature: sig,
			timestamp: "1700000000",
			nonce:     "nonce-1",
			body:      []byte(`{"id":"evt-2"}`),
			wantErr:   gateway.ErrBadSignature,
		},
		{
			name:      "invalid_base64",
			serial:    "SERIAL01",
			signature: "!!!not-base64!!!",
			timestamp: "1700000000",
			nonce:     "nonce-1",
			body:      body,
			wantErr:   gateway.ErrBadSignature,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := verifier.Verify(tt.serial, tt.signature, tt.timestamp, tt.nonce, tt.body)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

// signWebhook produces the signature a genuine gateway would attach to a
// webhook delivery: RSA-SHA256 over timestamp\nnonce\nbody\n.
func signWebhook(t *testing.T, key *rsa.PrivateKey, timestamp, nonce string, body []byte) string {
	t.Helper()
	digest := sha256.Sum256([]byte(timestamp + "\n" + nonce + "\n" + string(body) + "\n"))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(sig)
}
