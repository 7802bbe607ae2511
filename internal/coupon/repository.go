package coupon

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// DBTX is satisfied by *sql.DB and *sql.Tx. Usage counter moves always run
// inside the order transaction that holds or releases the reservation.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repository interface {
	GetByCode(ctx context.Context, code string) (*Coupon, error)
	CountActiveUseByUser(ctx context.Context, couponID uuid.UUID, userID uint) (int, error)
	IncrementUsage(ctx context.Context, q DBTX, couponID uuid.UUID) error
	DecrementUsage(ctx context.Context, q DBTX, couponID uuid.UUID) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByCode(ctx context.Context, code string) (*Coupon, error) {
	query := `
		SELECT id, code, discount_type, discount_value, min_amount,
		       valid_from, valid_to, usage_limit, per_user_limit, usage_count,
		       created_at, updated_at
		FROM coupons
		WHERE code = $1
	`

	var c Coupon
	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&c.ID,
		&c.Code,
		&c.DiscountType,
		&c.DiscountValue,
		&c.MinAmount,
		&c.ValidFrom,
		&c.ValidTo,
		&c.UsageLimit,
		&c.PerUserLimit,
		&c.UsageCount,
		&c.CreatedAt,
		&c.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, err
	}

	return &c, nil
}

// CountActiveUseByUser counts orders of this user still holding a
// non-rolled-back reservation of the coupon. A FAILED payment releases the
// reservation, so those orders do not count against the per-user limit.
func (r *repository) CountActiveUseByUser(ctx context.Context, couponID uuid.UUID, userID uint) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM orders
		WHERE coupon_id = $1
		  AND user_id = $2
		  AND payment_status <> 'FAILED'
	`

	var n int
	if err := r.db.QueryRowContext(ctx, query, couponID, userID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *repository) IncrementUsage(ctx context.Context, q DBTX, couponID uuid.UUID) error {
	res, err := q.ExecContext(ctx, `
		UPDATE coupons
		SET usage_count = usage_count + 1,
		    updated_at = NOW()
		WHERE id = $1
	`, couponID)
	if err != nil {
		return fmt.Errorf("failed to increment coupon usage: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrCouponNotFound
	}
	return nil
}

func (r *repository) DecrementUsage(ctx context.Context, q DBTX, couponID uuid.UUID) error {
	// GREATEST guards against drift, the counter must never go negative.
	res, err := q.ExecContext(ctx, `
		UPDATE coupons
		SET usage_count = GREATEST(usage_count - 1, 0),
		    updated_at = NOW()
		WHERE id = $1
	`, couponID)
	if err != nil {
		return fmt.Errorf("failed to decrement coupon usage: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrCouponNotFound
	}
	return nil
}
