package refund_test

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gallerix/payment-service/internal/gateway"
	"github.com/gallerix/payment-service/internal/order"
	"github.com/gallerix/payment-service/internal/refund"
)

type mockRepository struct {
	insertFunc                func(ctx context.Context, r *refund.Request) error
	getByIDFunc               func(ctx context.Context, id uuid.UUID) (*refund.Request, error)
	getByMerchantRefundNoFunc func(ctx context.Context, merchantRefundNo string) (*refund.Request, error)
	listFunc                  func(ctx context.Context) ([]refund.Request, error)
	approveFunc               func(ctx context.Context, id uuid.UUID) error
	rejectFunc                func(ctx context.Context, id uuid.UUID, reason string) error
	markProcessingFunc        func(ctx context.Context, id uuid.UUID, gatewayRefundID string) error
	markSucceededFunc         func(ctx context.Context, id uuid.UUID, succeededAt time.Time) error
}

func (m *mockRepository) Insert(ctx context.Context, r *refund.Request) error {
	return m.insertFunc(ctx, r)
}

func (m *mockRepository) GetByID(ctx context.Context, id uuid.UUID) (*refund.Request, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockRepository) GetByMerchantRefundNo(ctx context.Context, merchantRefundNo string) (*refund.Request, error) {
	return m.getByMerchantRefundNoFunc(ctx, merchantRefundNo)
}

func (m *mockRepository) List(ctx context.Context) ([]refund.Request, error) {
	return m.listFunc(ctx)
}

func (m *mockRepository) Approve(ctx context.Context, id uuid.UUID) error {
	return m.approveFunc(ctx, id)
}

func (m *mockRepository) Reject(ctx context.Context, id uuid.UUID, reason string) error {
	return m.rejectFunc(ctx, id, reason)
}

func (m *mockRepository) MarkProcessing(ctx context.Context, id uuid.UUID, gatewayRefundID string) error {
	return m.markProcessingFunc(ctx, id, gatewayRefundID)
}

func (m *mockRepository) MarkSucceeded(ctx context.Context, id uuid.UUID, succeededAt time.Time) error {
	return m.markSucceededFunc(ctx, id, succeededAt)
}

type mockOrders struct {
	getByMerchantOrderNoFunc func(ctx context.Context, merchantOrderNo string) (*order.Order, error)
}

func (m *mockOrders) GetByMerchantOrderNo(ctx context.Context, merchantOrderNo string) (*order.Order, error) {
	return m.getByMerchantOrderNoFunc(ctx, merchantOrderNo)
}

type mockGateway struct {
	createRefundFunc func(ctx context.Context, call *gateway.RefundCall) (*gateway.RefundResponse, error)
}

func (m *mockGateway) CreateRefund(ctx context.Context, call *gateway.RefundCall) (*gateway.RefundResponse, error) {
	return m.createRefundFunc(ctx, call)
}

type fakeTxManager struct {
	rolledBack bool
}

func (m *fakeTxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		m.rolledBack = true
		return err
	}
	return nil
}

func paidOrder() *order.Order {
	return &order.Order{
		ID:              uuid.Must(uuid.NewV4()),
		MerchantOrderNo: "O1",
		TransactionID:   "tx-1",
		TotalAmount:     200,
		ActualAmount:    200,
		TradeState:      order.TradeStateSuccess,
	}
}

func TestRefundService_Create(t *testing.T) {
	tests := []struct {
		name       string
		input      refund.CreateInput
		orderState order.TradeState
		wantErrIs  error
	}{
		{
			name: "creates_pending_request",
			input: refund.CreateInput{
				MerchantOrderNo: "O1",
				Reason:          "damaged in transit",
				RefundAmount:    50,
				TotalAmount:     200,
				Currency:        "CNY",
			},
			orderState: order.TradeStateSuccess,
		},
		{
			name: "zero_amount",
			input: refund.CreateInput{
				MerchantOrderNo: "O1",
				RefundAmount:    0,
				TotalAmount:     200,
				Currency:        "CNY",
			},
			wantErrIs: refund.ErrInvalidAmount,
		},
		{
			name: "amount_exceeds_total",
			input: refund.CreateInput{
				MerchantOrderNo: "O1",
				RefundAmount:    300,
				TotalAmount:     200,
				Currency:        "CNY",
			},
			wantErrIs: refund.ErrAmountExceedsTotal,
		},
		{
			name: "unsupported_currency",
			input: refund.CreateInput{
				MerchantOrderNo: "O1",
				RefundAmount:    50,
				TotalAmount:     200,
				Currency:        "USD",
			},
			wantErrIs: refund.ErrUnsupportedCurrency,
		},
		{
			name: "unpaid_order_not_refundable",
			input: refund.CreateInput{
				MerchantOrderNo: "O1",
				RefundAmount:    50,
				TotalAmount:     200,
				Currency:        "CNY",
			},
			orderState: order.TradeStateNotPay,
			wantErrIs:  refund.ErrOrderNotRefundable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var inserted *refund.Request

			repo := &mockRepository{
				insertFunc: func(ctx context.Context, r *refund.Request) error {
					inserted = r
					return nil
				},
			}
			orders := &mockOrders{
				getByMerchantOrderNoFunc: func(ctx context.Context, no string) (*order.Order, error) {
					o := paidOrder()
					o.TradeState = tt.orderState
					return o, nil
				},
			}

			svc := refund.NewService(repo, orders, &mockGateway{}, &fakeTxManager{}, "CNY")

			req, err := svc.Create(context.Background(), tt.input)

			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
				assert.Nil(t, inserted)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, req)
			assert.Equal(t, refund.StatusPending, req.Status)
			assert.Equal(t, "tx-1", req.TransactionID)
			assert.True(t, len(req.MerchantRefundNo) > 2)
			assert.Equal(t, "RF", req.MerchantRefundNo[:2])
			assert.NotContains(t, req.MerchantRefundNo, "-")
			assert.Same(t, req, inserted)
		})
	}
}

func TestRefundService_Decide_Reject(t *testing.T) {
	id := uuid.Must(uuid.NewV4())

	t.Run("reason_required", func(t *testing.T) {
		svc := refund.NewService(&mockRepository{}, &mockOrders{}, &mockGateway{}, &fakeTxManager{}, "CNY")

		_, err := svc.Decide(context.Background(), id, false, "")
		assert.ErrorIs(t, err, refund.ErrRejectReasonRequired)
	})

	t.Run("rejects_pending_request", func(t *testing.T) {
		var rejectedReason string
		repo := &mockRepository{
			rejectFunc: func(ctx context.Context, rid uuid.UUID, reason string) error {
				rejectedReason = reason
				return nil
			},
			getByIDFunc: func(ctx context.Context, rid uuid.UUID) (*refund.Request, error) {
				return &refund.Request{ID: rid, Status: refund.StatusRejected, RejectReason: "out of window"}, nil
			},
		}

		svc := refund.NewService(repo, &mockOrders{}, &mockGateway{}, &fakeTxManager{}, "CNY")

		req, err := svc.Decide(context.Background(), id, false, "out of window")
		require.NoError(t, err)
		assert.Equal(t, refund.StatusRejected, req.Status)
		assert.Equal(t, "out of window", rejectedReason)
	})

	t.Run("already_decided", func(t *testing.T) {
		repo := &mockRepository{
			rejectFunc: func(ctx context.Context, rid uuid.UUID, reason string) error {
				return refund.ErrNotPending
			},
		}

		svc := refund.NewService(repo, &mockOrders{}, &mockGateway{}, &fakeTxManager{}, "CNY")

		_, err := svc.Decide(context.Background(), id, false, "late")
		assert.ErrorIs(t, err, refund.ErrNotPending)
	})
}

func TestRefundService_Decide_Approve(t *testing.T) {
	id := uuid.Must(uuid.NewV4())

	pending := func() *refund.Request {
		return &refund.Request{
			ID:               id,
			MerchantOrderNo:  "O1",
			MerchantRefundNo: "RF1",
			Reason:           "damaged",
			RefundAmount:     50,
			TotalAmount:      199.90,
			Currency:         "CNY",
			Status:           refund.StatusPending,
		}
	}

	t.Run("approves_and_submits_to_gateway", func(t *testing.T) {
		var approved bool
		var markedID string
		var call *gateway.RefundCall

		current := pending()
		repo := &mockRepository{
			getByIDFunc: func(ctx context.Context, rid uuid.UUID) (*refund.Request, error) { return current, nil },
			approveFunc: func(ctx context.Context, rid uuid.UUID) error {
				approved = true
				return nil
			},
			markProcessingFunc: func(ctx context.Context, rid uuid.UUID, gwID string) error {
				markedID = gwID
				current.Status = refund.StatusProcessing
				return nil
			},
		}
		gw := &mockGateway{
			createRefundFunc: func(ctx context.Context, c *gateway.RefundCall) (*gateway.RefundResponse, error) {
				call = c
				return &gateway.RefundResponse{RefundID: "gw-refund-1", Status: "PROCESSING"}, nil
			},
		}
		tx := &fakeTxManager{}

		svc := refund.NewService(repo, &mockOrders{}, gw, tx, "CNY")

		req, err := svc.Decide(context.Background(), id, true, "")
		require.NoError(t, err)
		assert.True(t, approved)
		assert.Equal(t, "gw-refund-1", markedID)
		assert.Equal(t, refund.StatusProcessing, req.Status)
		assert.False(t, tx.rolledBack)

		require.NotNil(t, call)
		assert.Equal(t, "O1", call.OutTradeNo)
		assert.Equal(t, "RF1", call.OutRefundNo)
		assert.Equal(t, int64(5000), call.Amount.Refund)
		assert.Equal(t, int64(19990), call.Amount.Total)
	})

	t.Run("gateway_rejection_rolls_back", func(t *testing.T) {
		repo := &mockRepository{
			getByIDFunc: func(ctx context.Context, rid uuid.UUID) (*refund.Request, error) { return pending(), nil },
			approveFunc: func(ctx context.Context, rid uuid.UUID) error { return nil },
			markProcessingFunc: func(ctx context.Context, rid uuid.UUID, gwID string) error {
				t.Fatal("must not mark processing after gateway rejection")
				return nil
			},
		}
		gw := &mockGateway{
			createRefundFunc: func(ctx context.Context, c *gateway.RefundCall) (*gateway.RefundResponse, error) {
				return nil, gateway.ErrGatewayStatus
			},
		}
		tx := &fakeTxManager{}

		svc := refund.NewService(repo, &mockOrders{}, gw, tx, "CNY")

		_, err := svc.Decide(context.Background(), id, true, "")
		assert.ErrorIs(t, err, gateway.ErrGatewayStatus)
		assert.True(t, tx.rolledBack)
	})

	t.Run("not_pending", func(t *testing.T) {
		decided := pending()
		decided.Status = refund.StatusProcessing

		repo := &mockRepository{
			getByIDFunc: func(ctx context.Context, rid uuid.UUID) (*refund.Request, error) { return decided, nil },
		}
		gw := &mockGateway{
			createRefundFunc: func(ctx context.Context, c *gateway.RefundCall) (*gateway.RefundResponse, error) {
				t.Fatal("must not reach the gateway for a decided request")
				return nil, nil
			},
		}

		svc := refund.NewService(repo, &mockOrders{}, gw, &fakeTxManager{}, "CNY")

		_, err := svc.Decide(context.Background(), id, true, "")
		assert.ErrorIs(t, err, refund.ErrNotPending)
	})
}
