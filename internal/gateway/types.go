package gateway

import "math"

// Amount is a payment amount in minor currency units.
type Amount struct {
	Total    int64  `json:"total"`
	Currency string `json:"currency"`
}

// MinorUnits converts a decimal amount to the integer minor currency units
// the gateway contract requires.
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// RefundAmount is the {refund, total, currency} triple the gateway expects
// on refund calls and reports on refund notices.
type RefundAmount struct {
	Refund   int64  `json:"refund"`
	Total    int64  `json:"total"`
	Currency string `json:"currency"`
}

type Payer struct {
	OpenID string `json:"openid"`
}

// PaymentIntentRequest asks the gateway to create a payment intent for one
// merchant order.
type PaymentIntentRequest struct {
	MerchantID  string `json:"mchid"`
	Description string `json:"description"`
	OutTradeNo  string `json:"out_trade_no"`
	NotifyURL   string `json:"notify_url"`
	Amount      Amount `json:"amount"`
	Payer       Payer  `json:"payer"`
}

type PaymentIntentResponse struct {
	PrepayID string `json:"prepay_id"`
}

// RefundCall asks the gateway to move money back for a settled order.
type RefundCall struct {
	OutTradeNo  string       `json:"out_trade_no"`
	OutRefundNo string       `json:"out_refund_no"`
	Reason      string       `json:"reason,omitempty"`
	NotifyURL   string       `json:"notify_url"`
	Amount      RefundAmount `json:"amount"`
}

type RefundResponse struct {
	RefundID string `json:"refund_id"`
	Status   string `json:"status"`
}

// OrderStatus is the gateway's view of one order, returned by QueryOrder.
type OrderStatus struct {
	OutTradeNo     string `json:"out_trade_no"`
	TransactionID  string `json:"transaction_id"`
	TradeType      string `json:"trade_type"`
	TradeState     string `json:"trade_state"`
	TradeStateDesc string `json:"trade_state_desc"`
	SuccessTime    string `json:"success_time"`
	Amount         Amount `json:"amount"`
}

// WebhookEnvelope is the outer, signed-but-encrypted webhook body.
type WebhookEnvelope struct {
	ID           string          `json:"id"`
	CreateTime   string          `json:"create_time"`
	EventType    string          `json:"event_type"`
	ResourceType string          `json:"resource_type"`
	Resource     WebhookResource `json:"resource"`
	Summary      string          `json:"summary"`
}

// WebhookResource carries the AEAD-encrypted notification payload.
type WebhookResource struct {
	Algorithm      string `json:"algorithm"`
	Ciphertext     string `json:"ciphertext"`
	AssociatedData string `json:"associated_data"`
	Nonce          string `json:"nonce"`
}

// PaymentNotice is the decrypted payload of a payment-success webhook.
type PaymentNotice struct {
	OutTradeNo     string `json:"out_trade_no"`
	TransactionID  string `json:"transaction_id"`
	TradeType      string `json:"trade_type"`
	TradeState     string `json:"trade_state"`
	TradeStateDesc string `json:"trade_state_desc"`
	SuccessTime    string `json:"success_time"`
	Amount         Amount `json:"amount"`
	Payer          Payer  `json:"payer"`
}

// RefundNotice is the decrypted payload of a refund-status webhook.
type RefundNotice struct {
	OutRefundNo  string       `json:"out_refund_no"`
	OutTradeNo   string       `json:"out_trade_no"`
	RefundID     string       `json:"refund_id"`
	RefundStatus string       `json:"refund_status"`
	SuccessTime  string       `json:"success_time"`
	Amount       RefundAmount `json:"amount"`
}
