package refund

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gallerix/payment-service/internal/db"
)

var (
	ErrRefundNotFound = errors.New("refund: not found")
	// ErrNotPending signals a lost decision race or a re-submitted
	// decision: the request already left PENDING.
	ErrNotPending = errors.New("refund: request is not pending")
)

type Repository interface {
	Insert(ctx context.Context, r *Request) error
	GetByID(ctx context.Context, id uuid.UUID) (*Request, error)
	GetByMerchantRefundNo(ctx context.Context, merchantRefundNo string) (*Request, error)
	List(ctx context.Context) ([]Request, error)
	// Approve and Reject are compare-and-swap transitions out of PENDING.
	Approve(ctx context.Context, id uuid.UUID) error
	Reject(ctx context.Context, id uuid.UUID, reason string) error
	MarkProcessing(ctx context.Context, id uuid.UUID, gatewayRefundID string) error
	MarkSucceeded(ctx context.Context, id uuid.UUID, succeededAt time.Time) error
}

type postgresRepository struct {
	db *db.Postgres
}

func NewRepository(database *db.Postgres) Repository {
	return &postgresRepository{db: database}
}

const selectColumns = `
	id, merchant_order_no, COALESCE(transaction_id, ''), merchant_refund_no, reason,
	refund_amount, total_amount, currency, status, COALESCE(gateway_refund_id, ''),
	COALESCE(reject_reason, ''), approved_at, processed_at, succeeded_at, created_at, updated_at`

func (r *postgresRepository) Insert(ctx context.Context, req *Request) error {
	q := r.db.Querier(ctx)

	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	_, err := q.Exec(ctx, `
		INSERT INTO refund_requests (id, merchant_order_no, transaction_id, merchant_refund_no, reason,
		                             refund_amount, total_amount, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		req.ID, req.MerchantOrderNo, req.TransactionID, req.MerchantRefundNo, req.Reason,
		req.RefundAmount, req.TotalAmount, req.Currency, string(req.Status), req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert refund request: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Request, error) {
	req, err := r.getOne(ctx, `WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("repository: refund %s: %w", id, err)
	}
	return req, nil
}

func (r *postgresRepository) GetByMerchantRefundNo(ctx context.Context, merchantRefundNo string) (*Request, error) {
	req, err := r.getOne(ctx, `WHERE merchant_refund_no = $1`, merchantRefundNo)
	if err != nil {
		return nil, fmt.Errorf("repository: refund %s: %w", merchantRefundNo, err)
	}
	return req, nil
}

func (r *postgresRepository) getOne(ctx context.Context, where string, arg any) (*Request, error) {
	q := r.db.Querier(ctx)

	var req Request
	var status string
	err := q.QueryRow(ctx, `SELECT `+selectColumns+` FROM refund_requests `+where, arg).Scan(
		&req.ID, &req.MerchantOrderNo, &req.TransactionID, &req.MerchantRefundNo, &req.Reason,
		&req.RefundAmount, &req.TotalAmount, &req.Currency, &status, &req.GatewayRefundID,
		&req.RejectReason, &req.ApprovedAt, &req.ProcessedAt, &req.SucceededAt, &req.CreatedAt, &req.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRefundNotFound
	}
	if err != nil {
		return nil, err
	}
	req.Status = Status(status)
	return &req, nil
}

func (r *postgresRepository) List(ctx context.Context) ([]Request, error) {
	q := r.db.Querier(ctx)

	rows, err := q.Query(ctx, `SELECT `+selectColumns+` FROM refund_requests ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query refund requests: %w", err)
	}
	defer rows.Close()

	requests := make([]Request, 0)
	for rows.Next() {
		var req Request
		var status string
		err := rows.Scan(
			&req.ID, &req.MerchantOrderNo, &req.TransactionID, &req.MerchantRefundNo, &req.Reason,
			&req.RefundAmount, &req.TotalAmount, &req.Currency, &status, &req.GatewayRefundID,
			&req.RejectReason, &req.ApprovedAt, &req.ProcessedAt, &req.SucceededAt, &req.CreatedAt, &req.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan refund request: %w", err)
		}
		req.Status = Status(status)
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating refund requests: %w", err)
	}
	return requests, nil
}

func (r *postgresRepository) Approve(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, id, `
		UPDATE refund_requests
		SET status = $2, approved_at = $3, updated_at = $3
		WHERE id = $1 AND status = $4`,
		id, string(StatusApproved), time.Now().UTC(), string(StatusPending))
}

func (r *postgresRepository) Reject(ctx context.Context, id uuid.UUID, reason string) error {
	q := r.db.Querier(ctx)

	tag, err := q.Exec(ctx, `
		UPDATE refund_requests
		SET status = $2, reject_reason = $3, updated_at = $4
		WHERE id = $1 AND status = $5`,
		id, string(StatusRejected), reason, time.Now().UTC(), string(StatusPending),
	)
	if err != nil {
		return fmt.Errorf("repository: failed to reject refund %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotPending, id)
	}
	return nil
}

func (r *postgresRepository) MarkProcessing(ctx context.Context, id uuid.UUID, gatewayRefundID string) error {
	q := r.db.Querier(ctx)

	tag, err := q.Exec(ctx, `
		UPDATE refund_requests
		SET status = $2, gateway_refund_id = $3, processed_at = $4, updated_at = $4
		WHERE id = $1 AND status = $5`,
		id, string(StatusProcessing), gatewayRefundID, time.Now().UTC(), string(StatusApproved),
	)
	if err != nil {
		return fmt.Errorf("repository: failed to mark refund %s processing: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotPending, id)
	}
	return nil
}

func (r *postgresRepository) MarkSucceeded(ctx context.Context, id uuid.UUID, succeededAt time.Time) error {
	q := r.db.Querier(ctx)

	tag, err := q.Exec(ctx, `
		UPDATE refund_requests
		SET status = $2, succeeded_at = $3, updated_at = $4
		WHERE id = $1 AND status IN ($5, $6)`,
		id, string(StatusSuccess), succeededAt, time.Now().UTC(),
		string(StatusProcessing), string(StatusApproved),
	)
	if err != nil {
		return fmt.Errorf("repository: failed to mark refund %s succeeded: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotPending, id)
	}
	return nil
}

func (r *postgresRepository) transition(ctx context.Context, id uuid.UUID, sql string, args ...any) error {
	q := r.db.Querier(ctx)

	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("repository: failed to transition refund %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotPending, id)
	}
	return nil
}
