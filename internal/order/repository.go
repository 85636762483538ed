package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gallerix/payment-service/internal/catalog"
	"github.com/gallerix/payment-service/internal/db"
)

var (
	ErrOrderNotFound    = errors.New("order: not found")
	ErrUserNotFound     = errors.New("order: user not found")
	ErrDuplicateOrderNo = errors.New("order: merchant order number already exists")
)

type Repository interface {
	ResolveUserID(ctx context.Context, openID string) (int64, error)
	Insert(ctx context.Context, o *Order, items []Item) error
	GetByMerchantOrderNo(ctx context.Context, merchantOrderNo string) (*Order, error)
	GetItems(ctx context.Context, orderID uuid.UUID) ([]Item, error)
	// ApplyPaymentSuccess writes the gateway transaction fields and moves
	// the order to its settled trade state.
	ApplyPaymentSuccess(ctx context.Context, orderID uuid.UUID, res PaymentResult) error
	UpdateTradeState(ctx context.Context, orderID uuid.UUID, state TradeState, desc string) error
}

type postgresRepository struct {
	db *db.Postgres
}

func NewRepository(database *db.Postgres) Repository {
	return &postgresRepository{db: database}
}

func (r *postgresRepository) ResolveUserID(ctx context.Context, openID string) (int64, error) {
	q := r.db.Querier(ctx)

	var id int64
	err := q.QueryRow(ctx, `SELECT id FROM users WHERE wallet_openid = $1`, openID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("repository: failed to resolve user: %w", err)
	}
	return id, nil
}

func (r *postgresRepository) Insert(ctx context.Context, o *Order, items []Item) error {
	q := r.db.Querier(ctx)

	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now

	_, err := q.Exec(ctx, `
		INSERT INTO orders (id, user_id, merchant_order_no, total_amount, actual_amount, discount_amount,
		                    description, trade_state, trade_state_desc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		o.ID, o.UserID, o.MerchantOrderNo, o.TotalAmount, o.ActualAmount, o.DiscountAmount,
		o.Description, string(o.TradeState), o.TradeStateDesc, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicateOrderNo, o.MerchantOrderNo)
		}
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}

	for i := range items {
		item := &items[i]

		itemID, genErr := uuid.NewV4()
		if genErr != nil {
			return fmt.Errorf("repository: failed to generate order item id: %w", genErr)
		}
		item.ID = itemID
		item.OrderID = o.ID
		item.CreatedAt = now

		rightID, digitalID, artworkID := productColumns(item.Product)

		_, err = q.Exec(ctx, `
			INSERT INTO order_items (id, order_id, kind, right_id, digital_artwork_id, original_artwork_id,
			                         quantity, unit_price, address_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			item.ID, item.OrderID, string(item.Product.Kind), rightID, digitalID, artworkID,
			item.Quantity, item.UnitPrice, item.AddressID, item.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order item for order %s: %w", o.ID, err)
		}
	}
	return nil
}

func (r *postgresRepository) GetByMerchantOrderNo(ctx context.Context, merchantOrderNo string) (*Order, error) {
	q := r.db.Querier(ctx)

	var o Order
	var state string
	err := q.QueryRow(ctx, `
		SELECT id, user_id, merchant_order_no, total_amount, actual_amount, discount_amount,
		       description, COALESCE(transaction_id, ''), COALESCE(trade_type, ''),
		       trade_state, trade_state_desc, success_time, created_at, updated_at
		FROM orders
		WHERE merchant_order_no = $1`,
		merchantOrderNo,
	).Scan(
		&o.ID, &o.UserID, &o.MerchantOrderNo, &o.TotalAmount, &o.ActualAmount, &o.DiscountAmount,
		&o.Description, &o.TransactionID, &o.TradeType,
		&state, &o.TradeStateDesc, &o.SuccessTime, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, merchantOrderNo)
	}
	if err != nil {
		return nil, fmt.Errorf("repository: failed to select order %s: %w", merchantOrderNo, err)
	}
	o.TradeState = TradeState(state)
	return &o, nil
}

func (r *postgresRepository) GetItems(ctx context.Context, orderID uuid.UUID) ([]Item, error) {
	q := r.db.Querier(ctx)

	rows, err := q.Query(ctx, `
		SELECT id, order_id, kind, right_id, digital_artwork_id, original_artwork_id,
		       quantity, unit_price, address_id, created_at
		FROM order_items
		WHERE order_id = $1`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items for order %s: %w", orderID, err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var item Item
		var kind string
		var rightID, digitalID, artworkID *int64
		err := rows.Scan(
			&item.ID, &item.OrderID, &kind, &rightID, &digitalID, &artworkID,
			&item.Quantity, &item.UnitPrice, &item.AddressID, &item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item for order %s: %w", orderID, err)
		}

		ref, err := productRef(kind, rightID, digitalID, artworkID)
		if err != nil {
			return nil, fmt.Errorf("repository: order %s: %w", orderID, err)
		}
		item.Product = ref
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items for order %s: %w", orderID, err)
	}
	return items, nil
}

func (r *postgresRepository) ApplyPaymentSuccess(ctx context.Context, orderID uuid.UUID, res PaymentResult) error {
	q := r.db.Querier(ctx)

	tag, err := q.Exec(ctx, `
		UPDATE orders
		SET transaction_id = $1, trade_type = $2, trade_state = $3, trade_state_desc = $4,
		    success_time = $5, updated_at = $6
		WHERE id = $7`,
		res.TransactionID, res.TradeType, string(res.TradeState), res.TradeStateDesc,
		res.SuccessTime, time.Now().UTC(), orderID,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to apply payment result for order %s: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return nil
}

func (r *postgresRepository) UpdateTradeState(ctx context.Context, orderID uuid.UUID, state TradeState, desc string) error {
	q := r.db.Querier(ctx)

	tag, err := q.Exec(ctx, `
		UPDATE orders
		SET trade_state = $1, trade_state_desc = $2, updated_at = $3
		WHERE id = $4`,
		string(state), desc, time.Now().UTC(), orderID,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to update trade state for order %s: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return nil
}

// productColumns flattens the tagged product reference into the three
// nullable foreign key columns, exactly one of which is set.
func productColumns(ref catalog.ProductRef) (rightID, digitalID, artworkID *int64) {
	id := ref.ID
	switch ref.Kind {
	case catalog.KindRight:
		rightID = &id
	case catalog.KindDigital:
		digitalID = &id
	case catalog.KindArtwork:
		artworkID = &id
	}
	return rightID, digitalID, artworkID
}

func productRef(kind string, rightID, digitalID, artworkID *int64) (catalog.ProductRef, error) {
	switch catalog.Kind(kind) {
	case catalog.KindRight:
		if rightID == nil {
			return catalog.ProductRef{}, fmt.Errorf("order item of kind %q has no right_id", kind)
		}
		return catalog.ProductRef{Kind: catalog.KindRight, ID: *rightID}, nil
	case catalog.KindDigital:
		if digitalID == nil {
			return catalog.ProductRef{}, fmt.Errorf("order item of kind %q has no digital_artwork_id", kind)
		}
		return catalog.ProductRef{Kind: catalog.KindDigital, ID: *digitalID}, nil
	case catalog.KindArtwork:
		if artworkID == nil {
			return catalog.ProductRef{}, fmt.Errorf("order item of kind %q has no original_artwork_id", kind)
		}
		return catalog.ProductRef{Kind: catalog.KindArtwork, ID: *artworkID}, nil
	default:
		return catalog.ProductRef{}, fmt.Errorf("order item has unknown kind %q", kind)
	}
}
