package refund

import (
	"time"

	"github.com/gofrs/uuid"
)

// Status transitions are monotonic:
// PENDING → APPROVED → PROCESSING → SUCCESS, or PENDING → REJECTED.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusApproved   Status = "APPROVED"
	StatusProcessing Status = "PROCESSING"
	StatusSuccess    Status = "SUCCESS"
	StatusRejected   Status = "REJECTED"
)

func (s Status) String() string {
	return string(s)
}

type Request struct {
	ID               uuid.UUID  `json:"id"`
	MerchantOrderNo  string     `json:"merchant_order_no"`
	TransactionID    string     `json:"transaction_id"`
	MerchantRefundNo string     `json:"merchant_refund_no"`
	Reason           string     `json:"reason"`
	RefundAmount     float64    `json:"refund_amount"`
	TotalAmount      float64    `json:"total_amount"`
	Currency         string     `json:"currency"`
	Status           Status     `json:"status"`
	GatewayRefundID  string     `json:"gateway_refund_id,omitempty"`
	RejectReason     string     `json:"reject_reason,omitempty"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
	SucceededAt      *time.Time `json:"succeeded_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
