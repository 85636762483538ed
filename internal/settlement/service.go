// Package settlement applies confirmed payment and refund events exactly
// once: trade-state transitions plus the matching stock mutations, inside
// one transaction, guarded by a callback dedup marker.
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gallerix/payment-service/internal/catalog"
	"github.com/gallerix/payment-service/internal/db"
	"github.com/gallerix/payment-service/internal/gateway"
	"github.com/gallerix/payment-service/internal/order"
	"github.com/gallerix/payment-service/internal/refund"
)

// Deduper is the callback dedup surface. A marker claimed by a concurrent
// or earlier delivery makes the current one a harmless no-op; a marker is
// cleared again when settlement fails so the gateway's retry can land.
type Deduper interface {
	MarkCallbackProcessed(ctx context.Context, callbackID string) (bool, error)
	ClearCallback(ctx context.Context, callbackID string) error
}

// Orders is the order store surface settlement needs.
type Orders interface {
	GetByMerchantOrderNo(ctx context.Context, merchantOrderNo string) (*order.Order, error)
	GetItems(ctx context.Context, orderID uuid.UUID) ([]order.Item, error)
	ApplyPaymentSuccess(ctx context.Context, orderID uuid.UUID, res order.PaymentResult) error
	UpdateTradeState(ctx context.Context, orderID uuid.UUID, state order.TradeState, desc string) error
}

// Refunds is the refund store surface settlement needs.
type Refunds interface {
	GetByMerchantRefundNo(ctx context.Context, merchantRefundNo string) (*refund.Request, error)
	MarkSucceeded(ctx context.Context, id uuid.UUID, succeededAt time.Time) error
}

// Stock applies and reverses settlement-time stock mutations.
type Stock interface {
	DecrementStock(ctx context.Context, deltas []catalog.StockDelta) error
	RestoreStock(ctx context.Context, deltas []catalog.StockDelta) error
}

type Service interface {
	// HandlePaymentNotice settles a payment-success webhook. A returned
	// error means the delivery must be answered with a failure envelope so
	// the gateway retries.
	HandlePaymentNotice(ctx context.Context, n *gateway.PaymentNotice) error

	// HandleRefundNotice settles a refund-status webhook.
	HandleRefundNotice(ctx context.Context, n *gateway.RefundNotice) error
}

type service struct {
	orders  Orders
	refunds Refunds
	stock   Stock
	dedup   Deduper
	tx      db.TxManager
}

func NewService(orders Orders, refunds Refunds, stock Stock, dedup Deduper, tx db.TxManager) Service {
	return &service{orders: orders, refunds: refunds, stock: stock, dedup: dedup, tx: tx}
}

func (s *service) HandlePaymentNotice(ctx context.Context, n *gateway.PaymentNotice) error {
	callbackID := "pay:" + n.OutTradeNo

	first, err := s.dedup.MarkCallbackProcessed(ctx, callbackID)
	if err != nil {
		return fmt.Errorf("settlement: dedup check failed: %w", err)
	}
	if !first {
		log.Info().Str("merchant_order_no", n.OutTradeNo).Msg("Duplicate payment notice, acknowledging without effects")
		return nil
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetByMerchantOrderNo(ctx, n.OutTradeNo)
		if err != nil {
			return err
		}

		// Read-before-write: a refund settled earlier must never be
		// overwritten by a late or duplicated success callback.
		if o.TradeState == order.TradeStateRefund {
			log.Warn().Str("merchant_order_no", n.OutTradeNo).
				Msg("Payment notice for refunded order ignored")
			return nil
		}
		if o.TradeState == order.TradeStateSuccess {
			return nil
		}
		if !o.TradeState.CanTransitionTo(order.TradeStateSuccess) {
			return fmt.Errorf("settlement: illegal transition %s -> SUCCESS for order %s",
				o.TradeState, n.OutTradeNo)
		}

		if err := s.orders.ApplyPaymentSuccess(ctx, o.ID, order.PaymentResult{
			TransactionID:  n.TransactionID,
			TradeType:      n.TradeType,
			TradeState:     order.TradeStateSuccess,
			TradeStateDesc: n.TradeStateDesc,
			SuccessTime:    parseEventTime(n.SuccessTime),
		}); err != nil {
			return err
		}

		items, err := s.orders.GetItems(ctx, o.ID)
		if err != nil {
			return err
		}
		return s.stock.DecrementStock(ctx, stockDeltas(items))
	})
	if err != nil {
		// Release the marker so the gateway's retry is not mistaken for a
		// duplicate of a settlement that never happened.
		if clearErr := s.dedup.ClearCallback(ctx, callbackID); clearErr != nil {
			log.Error().Err(clearErr).Str("callback_id", callbackID).
				Msg("Failed to clear dedup marker after failed settlement")
		}
		log.Error().Err(err).Str("merchant_order_no", n.OutTradeNo).Msg("Payment settlement failed")
		return err
	}

	log.Info().Str("merchant_order_no", n.OutTradeNo).Str("transaction_id", n.TransactionID).
		Msg("Payment settled")
	return nil
}

func (s *service) HandleRefundNotice(ctx context.Context, n *gateway.RefundNotice) error {
	if n.RefundStatus != "SUCCESS" {
		log.Warn().Str("merchant_refund_no", n.OutRefundNo).Str("status", n.RefundStatus).
			Msg("Non-success refund notice acknowledged without effects")
		return nil
	}

	callbackID := "refund:" + n.OutRefundNo

	first, err := s.dedup.MarkCallbackProcessed(ctx, callbackID)
	if err != nil {
		return fmt.Errorf("settlement: dedup check failed: %w", err)
	}
	if !first {
		log.Info().Str("merchant_refund_no", n.OutRefundNo).Msg("Duplicate refund notice, acknowledging without effects")
		return nil
	}

	var req *refund.Request
	var o *order.Order
	var alreadySettled bool

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		req, err = s.refunds.GetByMerchantRefundNo(ctx, n.OutRefundNo)
		if err != nil {
			return err
		}
		o, err = s.orders.GetByMerchantOrderNo(ctx, req.MerchantOrderNo)
		if err != nil {
			return err
		}

		// Read-before-write: the dedup marker expires, the settled status
		// does not. A redelivery after expiry must not restore stock twice.
		if req.Status == refund.StatusSuccess || o.TradeState == order.TradeStateRefund {
			log.Info().Str("merchant_refund_no", n.OutRefundNo).
				Msg("Refund already settled, acknowledging without effects")
			alreadySettled = true
			return nil
		}

		items, err := s.orders.GetItems(ctx, o.ID)
		if err != nil {
			return err
		}
		// Restore exactly what payment settlement decremented.
		return s.stock.RestoreStock(ctx, stockDeltas(items))
	})
	if err != nil {
		if clearErr := s.dedup.ClearCallback(ctx, callbackID); clearErr != nil {
			log.Error().Err(clearErr).Str("callback_id", callbackID).
				Msg("Failed to clear dedup marker after failed settlement")
		}
		log.Error().Err(err).Str("merchant_refund_no", n.OutRefundNo).Msg("Refund settlement failed")
		return err
	}
	if alreadySettled {
		return nil
	}

	// Status bookkeeping is best-effort: the money-moving part (stock
	// restoration) is committed, so the delivery is acknowledged even if
	// these writes fail. Failures are logged for manual reconciliation.
	bkErr := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.refunds.MarkSucceeded(ctx, req.ID, parseEventTime(n.SuccessTime)); err != nil {
			return err
		}
		return s.orders.UpdateTradeState(ctx, o.ID, order.TradeStateRefund, "refunded")
	})
	if bkErr != nil {
		log.Error().Err(bkErr).
			Stringer("refund_id", req.ID).
			Str("merchant_order_no", req.MerchantOrderNo).
			Msg("Refund bookkeeping failed after stock restoration, needs manual reconciliation")
	}

	log.Info().Str("merchant_refund_no", n.OutRefundNo).Str("merchant_order_no", req.MerchantOrderNo).
		Msg("Refund settled")
	return nil
}

// stockDeltas maps settled order items to stock mutations. Digital items
// carry no stock and are filtered out by the catalog layer.
func stockDeltas(items []order.Item) []catalog.StockDelta {
	deltas := make([]catalog.StockDelta, 0, len(items))
	for _, item := range items {
		if item.Product.Kind == catalog.KindDigital {
			continue
		}
		deltas = append(deltas, catalog.StockDelta{Ref: item.Product, Quantity: item.Quantity})
	}
	return deltas
}

func parseEventTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		log.Warn().Str("success_time", value).Msg("Unparseable event time, falling back to now")
		return time.Now().UTC()
	}
	return t
}
