package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"parsshop-be/internal/coupon"
	"parsshop-be/internal/inventory"
	"parsshop-be/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Repository interface {
	// CreateOrderTx inserts the order and its items, reserves stock and
	// takes the coupon usage, all in one transaction.
	CreateOrderTx(ctx context.Context, o *Order) ([]inventory.LowStockAlert, error)

	GetByID(ctx context.Context, orderID uuid.UUID) (*Order, error)
	GetByAuthority(ctx context.Context, authority string) (*Order, error)
	GetOrderItems(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error)

	SetAuthority(ctx context.Context, orderID uuid.UUID, authority string) error

	// ConfirmPaidTx commits a verified payment. The write is guarded by
	// payment_status='PENDING': whichever delivery channel lands first wins,
	// the loser sees applied=false and must re-read.
	ConfirmPaidTx(ctx context.Context, orderID uuid.UUID, refID string, paidAt time.Time) (applied bool, err error)

	// FailAndRestoreTx marks the payment FAILED and restores stock and
	// coupon usage in the same transaction. The PENDING guard makes the
	// restore fire exactly once. With alsoCancel the order status moves to
	// CANCELLED as well (customer cancellation); a bare gateway decline
	// leaves status untouched.
	FailAndRestoreTx(ctx context.Context, orderID uuid.UUID, reason string, alsoCancel bool) (applied bool, err error)

	// ReopenForPaymentTx re-arms a FAILED order for a payment retry:
	// re-reserves stock, re-takes the coupon and stores the new authority.
	ReopenForPaymentTx(ctx context.Context, orderID uuid.UUID, authority string) ([]inventory.LowStockAlert, bool, error)

	// MarkRefundedTx moves a PAID order to REFUNDED on both axes.
	MarkRefundedTx(ctx context.Context, orderID uuid.UUID) (applied bool, err error)
}

type repository struct {
	db      *sql.DB
	ledger  *inventory.Ledger
	coupons coupon.Repository
}

func NewRepository(db *sql.DB, ledger *inventory.Ledger, coupons coupon.Repository) Repository {
	return &repository{db: db, ledger: ledger, coupons: coupons}
}

const orderColumns = `
	id, order_number, user_id, status, payment_status,
	subtotal, tax, shipping_fee, discount, total,
	authority, ref_id, coupon_id, address_id, tracking_code,
	failure_reason, paid_at, created_at, updated_at
`

func nullableUUID(n uuid.NullUUID) *uuid.UUID {
	if !n.Valid {
		return nil
	}
	u := n.UUID
	return &u
}

func scanOrder(row interface{ Scan(dest ...any) error }) (*Order, error) {
	var (
		o         Order
		couponID  uuid.NullUUID
		addressID uuid.NullUUID
	)
	err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.UserID,
		&o.Status,
		&o.PaymentStatus,
		&o.Subtotal,
		&o.Tax,
		&o.ShippingFee,
		&o.Discount,
		&o.Total,
		&o.Authority,
		&o.RefID,
		&couponID,
		&addressID,
		&o.TrackingCode,
		&o.FailureReason,
		&o.PaidAt,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	o.CouponID = nullableUUID(couponID)
	o.AddressID = nullableUUID(addressID)
	return &o, nil
}

func (r *repository) CreateOrderTx(ctx context.Context, o *Order) ([]inventory.LowStockAlert, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "CreateOrderTx"),
		zap.String("order_id", o.ID.String()),
		zap.Int("item_count", len(o.Items)),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("failed to begin transaction", zap.Error(err))
		return nil, err
	}

	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error("failed to rollback transaction", zap.Error(rbErr))
			}
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, order_number, user_id, status, payment_status,
			subtotal, tax, shipping_fee, discount, total,
			coupon_id, address_id, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)
	`,
		o.ID,
		o.OrderNumber,
		o.UserID,
		o.Status,
		o.PaymentStatus,
		o.Subtotal,
		o.Tax,
		o.ShippingFee,
		o.Discount,
		o.Total,
		o.CouponID,
		o.AddressID,
		o.CreatedAt,
	)
	if err != nil {
		log.Error("failed to insert order", zap.Error(err))
		return nil, err
	}

	reserve := make([]inventory.ItemQty, 0, len(o.Items))
	for i, item := range o.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (
				order_id, product_id, variant_id, name,
				quantity, unit_price, subtotal
			) VALUES ($1,$2,$3,$4,$5,$6,$7)
		`,
			o.ID,
			item.ProductID,
			item.VariantID,
			item.Name,
			item.Quantity,
			item.UnitPrice,
			item.Subtotal,
		)
		if err != nil {
			log.Error("failed to insert order item",
				zap.Int("item_index", i),
				zap.Error(err),
			)
			return nil, err
		}

		reserve = append(reserve, inventory.ItemQty{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		})
	}

	alerts, err := r.ledger.Reserve(ctx, tx, reserve)
	if err != nil {
		log.Error("failed to reserve stock", zap.Error(err))
		return nil, err
	}

	if o.CouponID != nil {
		if err := r.coupons.IncrementUsage(ctx, tx, *o.CouponID); err != nil {
			log.Error("failed to take coupon usage", zap.Error(err))
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		log.Error("failed to commit order transaction", zap.Error(err))
		return nil, err
	}

	committed = true
	log.Info("order created")

	return alerts, nil
}

func (r *repository) GetByID(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return scanOrder(r.db.QueryRowContext(ctx, query, orderID))
}

func (r *repository) GetByAuthority(ctx context.Context, authority string) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE authority = $1`
	return scanOrder(r.db.QueryRowContext(ctx, query, authority))
}

func (r *repository) GetOrderItems(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, variant_id, name, quantity, unit_price, subtotal
		FROM order_items
		WHERE order_id = $1
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var (
			it        OrderItem
			productID uuid.NullUUID
			variantID uuid.NullUUID
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &productID, &variantID, &it.Name, &it.Quantity, &it.UnitPrice, &it.Subtotal); err != nil {
			return nil, err
		}
		it.ProductID = nullableUUID(productID)
		it.VariantID = nullableUUID(variantID)
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *repository) SetAuthority(ctx context.Context, orderID uuid.UUID, authority string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET authority = $1, updated_at = NOW()
		WHERE id = $2 AND payment_status = 'PENDING'
	`, authority, orderID)
	if err != nil {
		return fmt.Errorf("failed to store authority: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *repository) ConfirmPaidTx(ctx context.Context, orderID uuid.UUID, refID string, paidAt time.Time) (bool, error) {
	// Single guarded statement: read-check-write collapses into the WHERE
	// clause, so two racing reconciliations cannot both commit.
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = 'PAID',
		    status = 'CONFIRMED',
		    ref_id = $2,
		    paid_at = $3,
		    updated_at = NOW()
		WHERE id = $1 AND payment_status = 'PENDING'
	`, orderID, refID, paidAt)
	if err != nil {
		return false, fmt.Errorf("failed to confirm payment: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (r *repository) FailAndRestoreTx(ctx context.Context, orderID uuid.UUID, reason string, alsoCancel bool) (bool, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "FailAndRestoreTx"),
		zap.String("order_id", orderID.String()),
		zap.Bool("cancel", alsoCancel),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}

	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error("failed to rollback transaction", zap.Error(rbErr))
			}
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = 'FAILED',
		    status = CASE WHEN $3 THEN 'CANCELLED' ELSE status END,
		    failure_reason = $2,
		    updated_at = NOW()
		WHERE id = $1 AND payment_status = 'PENDING'
	`, orderID, reason, alsoCancel)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment failed: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	if rows == 0 {
		// Payment already terminal. A cancellation of an order whose stock
		// was restored earlier still flips the status, without touching the
		// ledger again.
		if !alsoCancel {
			return false, nil
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE orders
			SET status = 'CANCELLED', updated_at = NOW()
			WHERE id = $1
			  AND payment_status = 'FAILED'
			  AND status IN ('PENDING','CONFIRMED','PROCESSING')
		`, orderID)
		if err != nil {
			return false, fmt.Errorf("failed to cancel order: %w", err)
		}

		rows, _ := res.RowsAffected()
		if rows == 0 {
			return false, nil
		}

		if err := tx.Commit(); err != nil {
			return false, err
		}
		committed = true
		return true, nil
	}

	restore, err := loadReservedItems(ctx, tx, orderID)
	if err != nil {
		return false, err
	}

	if err := r.ledger.Restore(ctx, tx, restore); err != nil {
		log.Error("failed to restore stock", zap.Error(err))
		return false, err
	}

	couponID, err := loadCouponID(ctx, tx, orderID)
	if err != nil {
		return false, err
	}
	if couponID != nil {
		if err := r.coupons.DecrementUsage(ctx, tx, *couponID); err != nil {
			log.Error("failed to release coupon usage", zap.Error(err))
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		log.Error("failed to commit restore transaction", zap.Error(err))
		return false, err
	}

	committed = true
	log.Info("payment failed and reservation restored", zap.String("reason", reason))

	return true, nil
}

func (r *repository) ReopenForPaymentTx(ctx context.Context, orderID uuid.UUID, authority string) ([]inventory.LowStockAlert, bool, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "ReopenForPaymentTx"),
		zap.String("order_id", orderID.String()),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}

	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error("failed to rollback transaction", zap.Error(rbErr))
			}
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = 'PENDING',
		    authority = $2,
		    failure_reason = NULL,
		    updated_at = NOW()
		WHERE id = $1
		  AND payment_status = 'FAILED'
		  AND status NOT IN ('CANCELLED','REFUNDED')
	`, orderID, authority)
	if err != nil {
		return nil, false, fmt.Errorf("failed to reopen order for payment: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if rows == 0 {
		return nil, false, nil
	}

	reserve, err := loadReservedItems(ctx, tx, orderID)
	if err != nil {
		return nil, false, err
	}

	alerts, err := r.ledger.Reserve(ctx, tx, reserve)
	if err != nil {
		log.Error("failed to re-reserve stock", zap.Error(err))
		return nil, false, err
	}

	couponID, err := loadCouponID(ctx, tx, orderID)
	if err != nil {
		return nil, false, err
	}
	if couponID != nil {
		if err := r.coupons.IncrementUsage(ctx, tx, *couponID); err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}

	committed = true
	log.Info("order reopened for payment retry")

	return alerts, true, nil
}

func loadReservedItems(ctx context.Context, tx *sql.Tx, orderID uuid.UUID) ([]inventory.ItemQty, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT product_id, variant_id, quantity
		FROM order_items
		WHERE order_id = $1
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []inventory.ItemQty
	for rows.Next() {
		var (
			it        inventory.ItemQty
			productID uuid.NullUUID
			variantID uuid.NullUUID
		)
		if err := rows.Scan(&productID, &variantID, &it.Quantity); err != nil {
			return nil, err
		}
		it.ProductID = nullableUUID(productID)
		it.VariantID = nullableUUID(variantID)
		items = append(items, it)
	}
	return items, rows.Err()
}

func loadCouponID(ctx context.Context, tx *sql.Tx, orderID uuid.UUID) (*uuid.UUID, error) {
	var couponID uuid.NullUUID
	err := tx.QueryRowContext(ctx, `SELECT coupon_id FROM orders WHERE id = $1`, orderID).Scan(&couponID)
	if err != nil {
		return nil, err
	}
	return nullableUUID(couponID), nil
}

func (r *repository) MarkRefundedTx(ctx context.Context, orderID uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = 'REFUNDED',
		    status = 'REFUNDED',
		    updated_at = NOW()
		WHERE id = $1 AND payment_status = 'PAID'
	`, orderID)
	if err != nil {
		return false, fmt.Errorf("failed to mark order refunded: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}
