// Package discount manages single-use discount credits. A credit offsets
// exactly one future order; consuming it zeroes that accrual record, it is
// not a reusable balance.
package discount

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gallerix/payment-service/internal/db"
)

type Credit struct {
	ID        int64
	UserID    int64
	Amount    float64
	Consumed  bool
	CreatedAt time.Time
}

var ErrAlreadyConsumed = errors.New("discount: credit already consumed")

type Repository interface {
	// FindUnconsumed returns the oldest unconsumed credit for the user, or
	// nil when the user has none. Inside a transaction the row is locked.
	FindUnconsumed(ctx context.Context, userID int64) (*Credit, error)

	// Consume marks the credit as spent on the given order. It fails with
	// ErrAlreadyConsumed when a concurrent order got there first.
	Consume(ctx context.Context, creditID int64, orderID uuid.UUID) error
}

type postgresRepository struct {
	db *db.Postgres
}

func NewRepository(database *db.Postgres) Repository {
	return &postgresRepository{db: database}
}

func (r *postgresRepository) FindUnconsumed(ctx context.Context, userID int64) (*Credit, error) {
	q := r.db.Querier(ctx)

	var c Credit
	err := q.QueryRow(ctx, `
		SELECT id, user_id, amount, consumed, created_at
		FROM discount_credits
		WHERE user_id = $1 AND NOT consumed
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE`,
		userID,
	).Scan(&c.ID, &c.UserID, &c.Amount, &c.Consumed, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("discount: failed to find credit for user %d: %w", userID, err)
	}
	return &c, nil
}

func (r *postgresRepository) Consume(ctx context.Context, creditID int64, orderID uuid.UUID) error {
	q := r.db.Querier(ctx)

	tag, err := q.Exec(ctx, `
		UPDATE discount_credits
		SET consumed = true, consumed_order_id = $2
		WHERE id = $1 AND NOT consumed`,
		creditID, orderID,
	)
	if err != nil {
		return fmt.Errorf("discount: failed to consume credit %d: %w", creditID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrAlreadyConsumed, creditID)
	}
	return nil
}
