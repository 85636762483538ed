// Package refund implements the refund request/approval workflow. The
// terminal SUCCESS transition happens in the settlement package when the
// gateway's refund webhook arrives.
package refund

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gallerix/payment-service/internal/db"
	"github.com/gallerix/payment-service/internal/gateway"
	"github.com/gallerix/payment-service/internal/order"
)

var (
	ErrInvalidAmount        = errors.New("refund: amount must be positive")
	ErrAmountExceedsTotal   = errors.New("refund: amount exceeds order total")
	ErrUnsupportedCurrency  = errors.New("refund: unsupported currency")
	ErrOrderNotRefundable   = errors.New("refund: order is not in a refundable state")
	ErrRejectReasonRequired = errors.New("refund: reject reason is required")
)

type CreateInput struct {
	MerchantOrderNo string
	Reason          string
	RefundAmount    float64
	TotalAmount     float64
	Currency        string
}

// Orders is the order lookup surface the workflow needs.
type Orders interface {
	GetByMerchantOrderNo(ctx context.Context, merchantOrderNo string) (*order.Order, error)
}

// Gateway issues the signed refund call on approval.
type Gateway interface {
	CreateRefund(ctx context.Context, call *gateway.RefundCall) (*gateway.RefundResponse, error)
}

type Service interface {
	Create(ctx context.Context, in CreateInput) (*Request, error)
	// Decide approves or rejects a pending request. Approval issues the
	// gateway refund call; rejection requires a reason.
	Decide(ctx context.Context, id uuid.UUID, approved bool, reason string) (*Request, error)
	Get(ctx context.Context, id uuid.UUID) (*Request, error)
	List(ctx context.Context) ([]Request, error)
}

type service struct {
	repo     Repository
	orders   Orders
	gateway  Gateway
	tx       db.TxManager
	currency string
}

func NewService(repo Repository, orders Orders, gw Gateway, tx db.TxManager, currency string) Service {
	return &service{repo: repo, orders: orders, gateway: gw, tx: tx, currency: currency}
}

func (s *service) Create(ctx context.Context, in CreateInput) (*Request, error) {
	if in.RefundAmount <= 0 || in.TotalAmount <= 0 {
		return nil, ErrInvalidAmount
	}
	if in.RefundAmount > in.TotalAmount {
		return nil, fmt.Errorf("%w: refund %.2f > total %.2f", ErrAmountExceedsTotal, in.RefundAmount, in.TotalAmount)
	}
	if in.Currency != s.currency {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, in.Currency)
	}

	o, err := s.orders.GetByMerchantOrderNo(ctx, in.MerchantOrderNo)
	if err != nil {
		return nil, err
	}
	if o.TradeState != order.TradeStateSuccess {
		return nil, fmt.Errorf("%w: trade state is %s", ErrOrderNotRefundable, o.TradeState)
	}
	if in.RefundAmount > o.TotalAmount+0.01 {
		return nil, fmt.Errorf("%w: refund %.2f > order total %.2f", ErrAmountExceedsTotal, in.RefundAmount, o.TotalAmount)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate refund id: %w", err)
	}

	req := &Request{
		ID:               id,
		MerchantOrderNo:  in.MerchantOrderNo,
		TransactionID:    o.TransactionID,
		MerchantRefundNo: "RF" + strings.ReplaceAll(id.String(), "-", ""),
		Reason:           in.Reason,
		RefundAmount:     in.RefundAmount,
		TotalAmount:      in.TotalAmount,
		Currency:         in.Currency,
		Status:           StatusPending,
	}

	if err := s.repo.Insert(ctx, req); err != nil {
		return nil, err
	}

	log.Info().
		Stringer("refund_id", req.ID).
		Str("merchant_order_no", req.MerchantOrderNo).
		Float64("amount", req.RefundAmount).
		Msg("Refund request created")
	return req, nil
}

func (s *service) Decide(ctx context.Context, id uuid.UUID, approved bool, reason string) (*Request, error) {
	if !approved {
		if reason == "" {
			return nil, ErrRejectReasonRequired
		}
		if err := s.repo.Reject(ctx, id, reason); err != nil {
			return nil, err
		}
		log.Info().Stringer("refund_id", id).Str("reason", reason).Msg("Refund request rejected")
		return s.repo.GetByID(ctx, id)
	}

	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusPending {
		return nil, fmt.Errorf("%w: %s", ErrNotPending, req.Status)
	}

	// The approval, the gateway call and the PROCESSING transition commit
	// together: a gateway rejection rolls the request back to PENDING so
	// the operator can retry.
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Approve(ctx, id); err != nil {
			return err
		}

		resp, err := s.gateway.CreateRefund(ctx, &gateway.RefundCall{
			OutTradeNo:  req.MerchantOrderNo,
			OutRefundNo: req.MerchantRefundNo,
			Reason:      req.Reason,
			Amount: gateway.RefundAmount{
				Refund:   gateway.MinorUnits(req.RefundAmount),
				Total:    gateway.MinorUnits(req.TotalAmount),
				Currency: req.Currency,
			},
		})
		if err != nil {
			return err
		}

		return s.repo.MarkProcessing(ctx, id, resp.RefundID)
	})
	if err != nil {
		log.Warn().Err(err).Stringer("refund_id", id).Msg("Refund approval failed")
		return nil, err
	}

	log.Info().Stringer("refund_id", id).Msg("Refund approved and submitted to gateway")
	return s.repo.GetByID(ctx, id)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Request, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) List(ctx context.Context) ([]Request, error) {
	return s.repo.List(ctx)
}
