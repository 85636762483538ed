package order

import (
	"time"

	"github.com/gofrs/uuid"

	"github.com/gallerix/payment-service/internal/catalog"
)

// TradeState is the order's payment lifecycle status as tracked locally,
// mirrored from the gateway's own status.
type TradeState string

const (
	TradeStateNotPay  TradeState = "NOTPAY"
	TradeStateSuccess TradeState = "SUCCESS"
	TradeStateClosed  TradeState = "CLOSED"
	TradeStateRevoked TradeState = "REVOKED"
	TradeStateRefund  TradeState = "REFUND"
)

func (s TradeState) String() string {
	return string(s)
}

var allowedTransitions = map[TradeState]map[TradeState]bool{
	TradeStateNotPay: {
		TradeStateSuccess: true,
		TradeStateClosed:  true,
		TradeStateRevoked: true,
	},
	TradeStateSuccess: {
		TradeStateRefund: true,
	},
	TradeStateClosed:  {},
	TradeStateRevoked: {},
	TradeStateRefund:  {},
}

// CanTransitionTo reports whether the trade-state change is legal. REFUND
// is terminal: a late duplicate success callback must never overwrite it.
func (s TradeState) CanTransitionTo(next TradeState) bool {
	return allowedTransitions[s][next]
}

type Order struct {
	ID              uuid.UUID  `json:"id"`
	UserID          int64      `json:"user_id"`
	MerchantOrderNo string     `json:"merchant_order_no"`
	TotalAmount     float64    `json:"total_amount"`
	ActualAmount    float64    `json:"actual_amount"`
	DiscountAmount  float64    `json:"discount_amount"`
	Description     string     `json:"description"`
	TransactionID   string     `json:"transaction_id,omitempty"`
	TradeType       string     `json:"trade_type,omitempty"`
	TradeState      TradeState `json:"trade_state"`
	TradeStateDesc  string     `json:"trade_state_desc"`
	SuccessTime     *time.Time `json:"success_time,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Item is one order line. Product holds the discriminated product
// reference; UnitPrice is the server-verified price snapshot taken at
// order-creation time, immutable under later catalog changes.
type Item struct {
	ID        uuid.UUID          `json:"id"`
	OrderID   uuid.UUID          `json:"order_id"`
	Product   catalog.ProductRef `json:"product"`
	Quantity  int                `json:"quantity"`
	UnitPrice float64            `json:"unit_price"`
	AddressID *int64             `json:"address_id,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// PaymentResult carries the gateway fields written on payment settlement.
type PaymentResult struct {
	TransactionID  string
	TradeType      string
	TradeState     TradeState
	TradeStateDesc string
	SuccessTime    time.Time
}
