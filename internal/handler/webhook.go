package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/gallerix/payment-service/internal/gateway"
	"github.com/gallerix/payment-service/internal/settlement"
)

// Webhook headers the gateway sends on every delivery. All four are
// required; absence of any rejects the delivery before verification.
const (
	headerTimestamp = "Wallet-Timestamp"
	headerNonce     = "Wallet-Nonce"
	headerSignature = "Wallet-Signature"
	headerSerial    = "Wallet-Serial"
)

// SignatureVerifier validates a webhook delivery before decryption.
type SignatureVerifier interface {
	Verify(serial, signature, timestamp, nonce string, rawBody []byte) error
}

// PayloadDecrypter opens the AEAD-encrypted webhook resource.
type PayloadDecrypter interface {
	Decrypt(associatedData, nonce, ciphertextB64 string) ([]byte, error)
}

type webhookReply struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WebhookHandler ingests gateway webhooks. Verification strictly precedes
// decryption; unauthenticated ciphertext is never touched.
type WebhookHandler struct {
	verifier SignatureVerifier
	cipher   PayloadDecrypter
	svc      settlement.Service
}

func NewWebhookHandler(verifier SignatureVerifier, cipher PayloadDecrypter, svc settlement.Service) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, cipher: cipher, svc: svc}
}

// PaymentWebhook handles POST /payments/webhook.
func (h *WebhookHandler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, func(plaintext []byte) error {
		var notice gateway.PaymentNotice
		if err := json.Unmarshal(plaintext, &notice); err != nil {
			return err
		}
		return h.svc.HandlePaymentNotice(r.Context(), &notice)
	})
}

// RefundWebhook handles POST /refunds/webhook.
func (h *WebhookHandler) RefundWebhook(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, func(plaintext []byte) error {
		var notice gateway.RefundNotice
		if err := json.Unmarshal(plaintext, &notice); err != nil {
			return err
		}
		return h.svc.HandleRefundNotice(r.Context(), &notice)
	})
}

func (h *WebhookHandler) handle(w http.ResponseWriter, r *http.Request, settle func(plaintext []byte) error) {
	timestamp := r.Header.Get(headerTimestamp)
	nonce := r.Header.Get(headerNonce)
	signature := r.Header.Get(headerSignature)
	serial := r.Header.Get(headerSerial)
	if timestamp == "" || nonce == "" || signature == "" || serial == "" {
		respondWithJSON(w, http.StatusBadRequest, webhookReply{Code: "FAIL", Message: "missing signature headers"})
		return
	}

	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		respondWithJSON(w, http.StatusBadRequest, webhookReply{Code: "FAIL", Message: "unreadable body"})
		return
	}

	if err := h.verifier.Verify(serial, signature, timestamp, nonce, rawBody); err != nil {
		log.Warn().Err(err).Str("serial", serial).Msg("Webhook signature rejected")
		respondWithJSON(w, http.StatusUnauthorized, webhookReply{Code: "FAIL", Message: "signature verification failed"})
		return
	}

	var envelope gateway.WebhookEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		respondWithJSON(w, http.StatusBadRequest, webhookReply{Code: "FAIL", Message: "malformed body"})
		return
	}

	plaintext, err := h.cipher.Decrypt(
		envelope.Resource.AssociatedData,
		envelope.Resource.Nonce,
		envelope.Resource.Ciphertext,
	)
	if err != nil {
		// Transient from the gateway's point of view: answer FAIL so it
		// retries the same deterministic payload.
		log.Error().Err(err).Str("event_id", envelope.ID).Msg("Webhook payload decryption failed")
		respondWithJSON(w, http.StatusInternalServerError, webhookReply{Code: "FAIL", Message: "decryption failed"})
		return
	}

	if err := settle(plaintext); err != nil {
		status := http.StatusInternalServerError
		var jsonErr *json.SyntaxError
		if errors.As(err, &jsonErr) {
			status = http.StatusBadRequest
		}
		respondWithJSON(w, status, webhookReply{Code: "FAIL", Message: "settlement failed"})
		return
	}

	respondWithJSON(w, http.StatusOK, webhookReply{Code: "SUCCESS", Message: "ok"})
}
