package coupon

import (
	"context"
	"time"

	"parsshop-be/internal/logger"

	"go.uber.org/zap"
)

type Service interface {
	// Validate checks code validity for the user and order subtotal and
	// returns the coupon when it may be applied.
	Validate(ctx context.Context, code string, userID uint, subtotal int64) (*Coupon, error)
	Discount(c *Coupon, subtotal int64) int64
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) Validate(ctx context.Context, code string, userID uint, subtotal int64) (*Coupon, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "ValidateCoupon"),
		zap.String("code", code),
	)

	c, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if now.Before(c.ValidFrom) {
		return nil, ErrCouponNotYetValid
	}
	if now.After(c.ValidTo) {
		return nil, ErrCouponExpired
	}

	if subtotal < c.MinAmount {
		log.Debug("subtotal below coupon minimum",
			zap.Int64("subtotal", subtotal),
			zap.Int64("min_amount", c.MinAmount),
		)
		return nil, ErrCouponMinAmount
	}

	if c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit {
		return nil, ErrCouponExhausted
	}

	if c.PerUserLimit > 0 {
		used, err := s.repo.CountActiveUseByUser(ctx, c.ID, userID)
		if err != nil {
			return nil, err
		}
		if used >= c.PerUserLimit {
			log.Warn("per-user coupon limit reached",
				zap.Uint("user_id", userID),
				zap.Int("used", used),
			)
			return nil, ErrCouponLimitExceeded
		}
	}

	return c, nil
}

// Discount computes the discount in minor units, capped at the subtotal.
func (s *service) Discount(c *Coupon, subtotal int64) int64 {
	var d int64
	switch c.DiscountType {
	case DiscountPercent:
		d = subtotal * c.DiscountValue / 100
	default:
		d = c.DiscountValue
	}

	if d > subtotal {
		d = subtotal
	}
	if d < 0 {
		d = 0
	}
	return d
}
