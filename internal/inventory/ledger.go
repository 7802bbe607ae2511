package inventory

import (
	"context"
	"database/sql"
	"fmt"

	"parsshop-be/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx. Reserve and Restore always
// run inside the caller's transaction so the stock movement commits or rolls
// back together with the order-side write that caused it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ItemQty references either a product or a variant, never both.
type ItemQty struct {
	ProductID *uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
}

// LowStockAlert is emitted when a reservation drops remaining stock to or
// below the configured threshold.
type LowStockAlert struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Name      string
	Remaining int
	Threshold int
}

type Ledger struct{}

func NewLedger() *Ledger {
	return &Ledger{}
}

// Reserve decrements stock for every item and recomputes is_in_stock.
// The decrement is deliberately unconditional: oversell is permitted so a
// racing checkout is never abandoned, the low-stock alert still fires.
func (l *Ledger) Reserve(ctx context.Context, q DBTX, items []ItemQty) ([]LowStockAlert, error) {
	var alerts []LowStockAlert

	for i, it := range items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("item %d: quantity must be positive", i)
		}

		var (
			name      string
			remaining int
			threshold int
		)

		switch {
		case it.VariantID != nil:
			err := q.QueryRowContext(ctx, `
				UPDATE variants
				SET stock_quantity = stock_quantity - $1,
				    is_in_stock = (stock_quantity - $1) > 0
				WHERE id = $2
				RETURNING name, stock_quantity, low_stock_threshold
			`, it.Quantity, *it.VariantID).Scan(&name, &remaining, &threshold)
			if err != nil {
				return nil, fmt.Errorf("reserve variant %s: %w", it.VariantID, err)
			}

			if remaining <= threshold {
				alerts = append(alerts, LowStockAlert{
					VariantID: it.VariantID,
					Name:      name,
					Remaining: remaining,
					Threshold: threshold,
				})
			}

		case it.ProductID != nil:
			err := q.QueryRowContext(ctx, `
				UPDATE products
				SET stock_quantity = stock_quantity - $1,
				    is_in_stock = (stock_quantity - $1) > 0
				WHERE id = $2
				RETURNING name, stock_quantity, low_stock_threshold
			`, it.Quantity, *it.ProductID).Scan(&name, &remaining, &threshold)
			if err != nil {
				return nil, fmt.Errorf("reserve product %s: %w", it.ProductID, err)
			}

			if remaining <= threshold {
				alerts = append(alerts, LowStockAlert{
					ProductID: *it.ProductID,
					Name:      name,
					Remaining: remaining,
					Threshold: threshold,
				})
			}

		default:
			return nil, fmt.Errorf("item %d: neither product nor variant referenced", i)
		}
	}

	if len(alerts) > 0 {
		logger.FromCtx(ctx).Warn("stock at or below threshold after reservation",
			zap.Int("alert_count", len(alerts)),
		)
	}

	return alerts, nil
}

// Restore credits back the originally reserved quantities. The ledger keeps
// no record of prior restores: the caller must guarantee exactly one call
// per terminal transition (the payment_status guard in the order repository).
func (l *Ledger) Restore(ctx context.Context, q DBTX, items []ItemQty) error {
	for i, it := range items {
		switch {
		case it.VariantID != nil:
			_, err := q.ExecContext(ctx, `
				UPDATE variants
				SET stock_quantity = stock_quantity + $1,
				    is_in_stock = TRUE
				WHERE id = $2
			`, it.Quantity, *it.VariantID)
			if err != nil {
				return fmt.Errorf("restore variant %s: %w", it.VariantID, err)
			}

		case it.ProductID != nil:
			_, err := q.ExecContext(ctx, `
				UPDATE products
				SET stock_quantity = stock_quantity + $1,
				    is_in_stock = TRUE
				WHERE id = $2
			`, it.Quantity, *it.ProductID)
			if err != nil {
				return fmt.Errorf("restore product %s: %w", it.ProductID, err)
			}

		default:
			return fmt.Errorf("item %d: neither product nor variant referenced", i)
		}
	}

	return nil
}
