package coupon

import "errors"

var (
	ErrCouponNotFound      = errors.New("coupon not found")
	ErrCouponNotYetValid   = errors.New("coupon not yet valid")
	ErrCouponExpired       = errors.New("coupon expired")
	ErrCouponMinAmount     = errors.New("order amount below coupon minimum")
	ErrCouponExhausted     = errors.New("coupon usage limit reached")
	ErrCouponLimitExceeded = errors.New("coupon usage limit reached for user")
)
