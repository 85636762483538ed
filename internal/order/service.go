package order

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gallerix/payment-service/internal/catalog"
	"github.com/gallerix/payment-service/internal/db"
	"github.com/gallerix/payment-service/internal/discount"
	"github.com/gallerix/payment-service/internal/gateway"
)

// priceEpsilon is the tolerance for comparing client-claimed prices
// against the catalog.
const priceEpsilon = 0.01

const maxMerchantOrderNoLen = 64

var (
	ErrAlreadyProcessing = errors.New("order: already processing, do not resubmit")
	ErrEmptyOrder        = errors.New("order: must contain at least one item")
	ErrInvalidOrderNo    = errors.New("order: invalid merchant order number")
	ErrInvalidQuantity   = errors.New("order: quantity must be positive")
	ErrPriceMismatch     = errors.New("order: price mismatch")
	ErrTotalMismatch     = errors.New("order: declared total mismatch")
)

// Line is one requested purchase line with the client-claimed unit price,
// which is re-verified against the catalog before anything is written.
type Line struct {
	Kind      catalog.Kind
	ProductID int64
	Quantity  int
	UnitPrice float64
}

type CreateOrderInput struct {
	OpenID          string
	MerchantOrderNo string
	Description     string
	DeclaredTotal   float64
	AddressID       *int64
	Lines           []Line
}

type CreateOrderResult struct {
	Order    *Order
	PrepayID string
}

// OrderDetails pairs the local order with the gateway's current view of it.
// GatewayState is nil when the gateway could not be queried.
type OrderDetails struct {
	Order        *Order
	Items        []Item
	GatewayState *gateway.OrderStatus
}

// Locker serializes duplicate submissions of the same merchant order number.
type Locker interface {
	AcquireOrderLock(ctx context.Context, merchantOrderNo string) (bool, error)
	ReleaseOrderLock(ctx context.Context, merchantOrderNo string) error
}

// Oracle is the catalog price/stock contract consumed by order assembly.
type Oracle interface {
	PriceAndStock(ctx context.Context, ref catalog.ProductRef) (*catalog.PriceStock, error)
}

// Gateway is the outbound payment-gateway surface the assembly needs.
type Gateway interface {
	CreatePaymentIntent(ctx context.Context, req *gateway.PaymentIntentRequest) (*gateway.PaymentIntentResponse, error)
	CloseOrder(ctx context.Context, outTradeNo string) error
	QueryOrder(ctx context.Context, outTradeNo string) (*gateway.OrderStatus, error)
}

type Service interface {
	CreateOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error)
	GetOrder(ctx context.Context, merchantOrderNo string) (*OrderDetails, error)
	CloseOrder(ctx context.Context, merchantOrderNo string) error
}

type service struct {
	repo     Repository
	credits  discount.Repository
	oracle   Oracle
	locker   Locker
	gateway  Gateway
	tx       db.TxManager
	currency string
}

func NewService(repo Repository, credits discount.Repository, oracle Oracle, locker Locker, gw Gateway, tx db.TxManager, currency string) Service {
	return &service{
		repo:     repo,
		credits:  credits,
		oracle:   oracle,
		locker:   locker,
		gateway:  gw,
		tx:       tx,
		currency: currency,
	}
}

// CreateOrder runs the full assembly: lock, server-side repricing, discount
// application, transactional persist, then the signed payment-intent call.
// The transaction commits only when the gateway accepted the intent, so a
// local order row never exists for an intent the gateway never created.
func (s *service) CreateOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	acquired, err := s.locker.AcquireOrderLock(ctx, in.MerchantOrderNo)
	if err != nil {
		return nil, fmt.Errorf("service: failed to acquire order lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyProcessing, in.MerchantOrderNo)
	}

	var result *CreateOrderResult
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		userID, err := s.repo.ResolveUserID(ctx, in.OpenID)
		if err != nil {
			return err
		}

		credit, err := s.credits.FindUnconsumed(ctx, userID)
		if err != nil {
			return err
		}

		total := 0.0
		items := make([]Item, 0, len(in.Lines))
		for _, line := range in.Lines {
			ref := catalog.ProductRef{Kind: line.Kind, ID: line.ProductID}

			ps, err := s.oracle.PriceAndStock(ctx, ref)
			if err != nil {
				return err
			}
			if !ps.Unlimited && ps.Available < line.Quantity {
				return fmt.Errorf("%w: %s: requested %d, available %d",
					catalog.ErrInsufficientStock, ref, line.Quantity, ps.Available)
			}
			if math.Abs(ps.Price-line.UnitPrice) > priceEpsilon {
				return fmt.Errorf("%w: %s: expected %.2f, got %.2f",
					ErrPriceMismatch, ref, ps.Price, line.UnitPrice)
			}

			total += ps.Price * float64(line.Quantity)
			items = append(items, Item{
				Product:   ref,
				Quantity:  line.Quantity,
				UnitPrice: ps.Price,
				AddressID: in.AddressID,
			})
		}

		if math.Abs(total-in.DeclaredTotal) > priceEpsilon {
			return fmt.Errorf("%w: expected %.2f, got %.2f", ErrTotalMismatch, total, in.DeclaredTotal)
		}

		discountAmount := 0.0
		if credit != nil && credit.Amount > 0 {
			discountAmount = math.Min(credit.Amount, total)
		}
		actual := total - discountAmount
		if actual < 0 {
			actual = 0
		}

		orderID, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("service: failed to generate order id: %w", err)
		}

		o := &Order{
			ID:              orderID,
			UserID:          userID,
			MerchantOrderNo: in.MerchantOrderNo,
			TotalAmount:     total,
			ActualAmount:    actual,
			DiscountAmount:  discountAmount,
			Description:     in.Description,
			TradeState:      TradeStateNotPay,
			TradeStateDesc:  "awaiting payment",
		}

		if err := s.repo.Insert(ctx, o, items); err != nil {
			return err
		}

		if credit != nil && discountAmount > 0 {
			if err := s.credits.Consume(ctx, credit.ID, o.ID); err != nil {
				return err
			}
		}

		resp, err := s.gateway.CreatePaymentIntent(ctx, &gateway.PaymentIntentRequest{
			Description: in.Description,
			OutTradeNo:  in.MerchantOrderNo,
			Amount: gateway.Amount{
				Total:    gateway.MinorUnits(actual),
				Currency: s.currency,
			},
			Payer: gateway.Payer{OpenID: in.OpenID},
		})
		if err != nil {
			return err
		}

		result = &CreateOrderResult{Order: o, PrepayID: resp.PrepayID}
		return nil
	})
	if err != nil {
		// A clean rejection frees the lock so the client can fix the
		// request and resubmit. On gateway/infra errors the lock is left
		// to expire, since the true outcome is unknown.
		if isDefinitiveRejection(err) {
			if relErr := s.locker.ReleaseOrderLock(ctx, in.MerchantOrderNo); relErr != nil {
				log.Warn().Err(relErr).Str("merchant_order_no", in.MerchantOrderNo).
					Msg("Failed to release order lock after rejection")
			}
		}
		log.Warn().Err(err).Str("merchant_order_no", in.MerchantOrderNo).Msg("Order creation failed")
		return nil, err
	}

	log.Info().
		Str("merchant_order_no", in.MerchantOrderNo).
		Stringer("order_id", result.Order.ID).
		Float64("actual_amount", result.Order.ActualAmount).
		Msg("Order created")
	return result, nil
}

// GetOrder returns the local order plus, best-effort, the gateway's own
// status for it. A gateway outage degrades the response, it does not fail it.
func (s *service) GetOrder(ctx context.Context, merchantOrderNo string) (*OrderDetails, error) {
	o, err := s.repo.GetByMerchantOrderNo(ctx, merchantOrderNo)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.GetItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}

	details := &OrderDetails{Order: o, Items: items}

	status, err := s.gateway.QueryOrder(ctx, merchantOrderNo)
	if err != nil {
		log.Warn().Err(err).Str("merchant_order_no", merchantOrderNo).Msg("Gateway order query failed")
		return details, nil
	}
	details.GatewayState = status
	return details, nil
}

// CloseOrder voids an unpaid order at the gateway and locally.
func (s *service) CloseOrder(ctx context.Context, merchantOrderNo string) error {
	o, err := s.repo.GetByMerchantOrderNo(ctx, merchantOrderNo)
	if err != nil {
		return err
	}
	if !o.TradeState.CanTransitionTo(TradeStateClosed) {
		return fmt.Errorf("order: cannot close order in state %s", o.TradeState)
	}

	if err := s.gateway.CloseOrder(ctx, merchantOrderNo); err != nil {
		return err
	}

	if err := s.repo.UpdateTradeState(ctx, o.ID, TradeStateClosed, "closed by merchant"); err != nil {
		return err
	}

	log.Info().Str("merchant_order_no", merchantOrderNo).Msg("Order closed")
	return nil
}

func validateInput(in CreateOrderInput) error {
	if in.OpenID == "" {
		return errors.New("order: openid is required")
	}
	if in.MerchantOrderNo == "" || len(in.MerchantOrderNo) > maxMerchantOrderNoLen {
		return fmt.Errorf("%w: %q", ErrInvalidOrderNo, in.MerchantOrderNo)
	}
	if len(in.Lines) == 0 {
		return ErrEmptyOrder
	}
	for _, line := range in.Lines {
		if !line.Kind.Valid() {
			return fmt.Errorf("order: unknown product kind %q", line.Kind)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: got %d for product %d", ErrInvalidQuantity, line.Quantity, line.ProductID)
		}
		if line.UnitPrice < 0 {
			return fmt.Errorf("order: unit price for product %d cannot be negative", line.ProductID)
		}
	}
	return nil
}

func isDefinitiveRejection(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrPriceMismatch) ||
		errors.Is(err, ErrTotalMismatch) ||
		errors.Is(err, ErrDuplicateOrderNo) ||
		errors.Is(err, catalog.ErrProductNotFound) ||
		errors.Is(err, catalog.ErrNotSellable) ||
		errors.Is(err, catalog.ErrInsufficientStock)
}
