// Package catalog is the read-mostly price/stock oracle over the three
// product tables. It is the single source of truth for price and
// availability; client-submitted prices are never trusted.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/gallerix/payment-service/internal/db"
)

type Kind string

const (
	KindRight   Kind = "right"
	KindDigital Kind = "digital"
	KindArtwork Kind = "artwork"
)

func (k Kind) Valid() bool {
	return k == KindRight || k == KindDigital || k == KindArtwork
}

// ProductRef is the tagged product reference. At the persistence edge it
// maps to three nullable foreign key columns with exactly one populated.
type ProductRef struct {
	Kind Kind
	ID   int64
}

func (r ProductRef) String() string {
	return fmt.Sprintf("%s/%d", r.Kind, r.ID)
}

// PriceStock is the authoritative answer for one product. Unlimited is set
// for digital collectibles, which carry no stock.
type PriceStock struct {
	Price     float64
	Available int
	OnSale    bool
	Unlimited bool
}

// StockDelta is one stock mutation applied at settlement time.
type StockDelta struct {
	Ref      ProductRef
	Quantity int
}

var (
	ErrProductNotFound   = errors.New("catalog: product not found")
	ErrNotSellable       = errors.New("catalog: product not on sale")
	ErrInsufficientStock = errors.New("catalog: insufficient stock")
)

type Oracle struct {
	db *db.Postgres
}

func NewOracle(database *db.Postgres) *Oracle {
	return &Oracle{db: database}
}

// PriceAndStock returns price and availability for one product. Inside a
// transaction the stock row is locked (FOR UPDATE) so the order write sees
// a stable quantity.
func (o *Oracle) PriceAndStock(ctx context.Context, ref ProductRef) (*PriceStock, error) {
	q := o.db.Querier(ctx)

	var ps PriceStock
	var err error

	switch ref.Kind {
	case KindRight:
		err = q.QueryRow(ctx,
			`SELECT price, remaining_count, on_sale FROM rights WHERE id = $1 FOR UPDATE`,
			ref.ID,
		).Scan(&ps.Price, &ps.Available, &ps.OnSale)
	case KindDigital:
		ps.Unlimited = true
		err = q.QueryRow(ctx,
			`SELECT price, on_sale FROM digital_artworks WHERE id = $1`,
			ref.ID,
		).Scan(&ps.Price, &ps.OnSale)
	case KindArtwork:
		err = q.QueryRow(ctx,
			`SELECT price, stock, on_sale FROM original_artworks WHERE id = $1 FOR UPDATE`,
			ref.ID,
		).Scan(&ps.Price, &ps.Available, &ps.OnSale)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrProductNotFound, ref.Kind)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to read product %s: %w", ref, err)
	}

	if !ps.OnSale {
		return nil, fmt.Errorf("%w: %s", ErrNotSellable, ref)
	}
	return &ps, nil
}

// DecrementStock applies the settlement-time stock decrements. Each update
// carries an atomic floor check; a delta that would drive stock negative
// fails the whole call with ErrInsufficientStock.
func (o *Oracle) DecrementStock(ctx context.Context, deltas []StockDelta) error {
	q := o.db.Querier(ctx)

	for _, d := range deltas {
		var sql string
		switch d.Ref.Kind {
		case KindRight:
			sql = `UPDATE rights SET remaining_count = remaining_count - $1 WHERE id = $2 AND remaining_count >= $1`
		case KindArtwork:
			sql = `UPDATE original_artworks SET stock = stock - $1 WHERE id = $2 AND stock >= $1`
		case KindDigital:
			continue
		default:
			return fmt.Errorf("%w: unknown kind %q", ErrProductNotFound, d.Ref.Kind)
		}

		tag, err := q.Exec(ctx, sql, d.Quantity, d.Ref.ID)
		if err != nil {
			return fmt.Errorf("catalog: failed to decrement stock for %s: %w", d.Ref, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", ErrInsufficientStock, d.Ref)
		}
	}
	return nil
}

// RestoreStock reverses DecrementStock after a successful refund.
func (o *Oracle) RestoreStock(ctx context.Context, deltas []StockDelta) error {
	q := o.db.Querier(ctx)

	for _, d := range deltas {
		var sql string
		switch d.Ref.Kind {
		case KindRight:
			sql = `UPDATE rights SET remaining_count = remaining_count + $1 WHERE id = $2`
		case KindArtwork:
			sql = `UPDATE original_artworks SET stock = stock + $1 WHERE id = $2`
		case KindDigital:
			continue
		default:
			return fmt.Errorf("%w: unknown kind %q", ErrProductNotFound, d.Ref.Kind)
		}

		tag, err := q.Exec(ctx, sql, d.Quantity, d.Ref.ID)
		if err != nil {
			return fmt.Errorf("catalog: failed to restore stock for %s: %w", d.Ref, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", ErrProductNotFound, d.Ref)
		}
	}
	return nil
}
