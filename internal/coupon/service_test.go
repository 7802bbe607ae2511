package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetByCode(ctx context.Context, code string) (*Coupon, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Coupon), args.Error(1)
}

func (m *MockRepository) CountActiveUseByUser(ctx context.Context, couponID uuid.UUID, userID uint) (int, error) {
	args := m.Called(ctx, couponID, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) IncrementUsage(ctx context.Context, q DBTX, couponID uuid.UUID) error {
	args := m.Called(ctx, q, couponID)
	return args.Error(0)
}

func (m *MockRepository) DecrementUsage(ctx context.Context, q DBTX, couponID uuid.UUID) error {
	args := m.Called(ctx, q, couponID)
	return args.Error(0)
}

func validCoupon() *Coupon {
	return &Coupon{
		ID:            uuid.New(),
		Code:          "WELCOME10",
		DiscountType:  DiscountPercent,
		DiscountValue: 10,
		MinAmount:     100_000,
		ValidFrom:     time.Now().Add(-time.Hour),
		ValidTo:       time.Now().Add(time.Hour),
		UsageLimit:    100,
		PerUserLimit:  1,
	}
}

func TestService_Validate(t *testing.T) {
	ctx := context.Background()
	userID := uint(7)

	t.Run("Success", func(t *testing.T) {
		repo := new(MockRepository)
		c := validCoupon()
		repo.On("GetByCode", ctx, "WELCOME10").Return(c, nil)
		repo.On("CountActiveUseByUser", ctx, c.ID, userID).Return(0, nil)

		svc := NewService(repo)
		got, err := svc.Validate(ctx, "WELCOME10", userID, 500_000)
		assert.NoError(t, err)
		assert.Equal(t, c, got)
		repo.AssertExpectations(t)
	})

	t.Run("NotFound", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetByCode", ctx, "NOPE").Return(nil, ErrCouponNotFound)

		svc := NewService(repo)
		_, err := svc.Validate(ctx, "NOPE", userID, 500_000)
		assert.ErrorIs(t, err, ErrCouponNotFound)
	})

	t.Run("Expired", func(t *testing.T) {
		repo := new(MockRepository)
		c := validCoupon()
		c.ValidTo = time.Now().Add(-time.Minute)
		repo.On("GetByCode", ctx, "WELCOME10").Return(c, nil)

		svc := NewService(repo)
		_, err := svc.Validate(ctx, "WELCOME10", userID, 500_000)
		assert.ErrorIs(t, err, ErrCouponExpired)
	})

	t.Run("NotYetValid", func(t *testing.T) {
		repo := new(MockRepository)
		c := validCoupon()
		c.ValidFrom = time.Now().Add(time.Hour)
		repo.On("GetByCode", ctx, "WELCOME10").Return(c, nil)

		svc := NewService(repo)
		_, err := svc.Validate(ctx, "WELCOME10", userID, 500_000)
		assert.ErrorIs(t, err, ErrCouponNotYetValid)
	})

	t.Run("BelowMinAmount", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetByCode", ctx, "WELCOME10").Return(validCoupon(), nil)

		svc := NewService(repo)
		_, err := svc.Validate(ctx, "WELCOME10", userID, 50_000)
		assert.ErrorIs(t, err, ErrCouponMinAmount)
	})

	t.Run("Exhausted", func(t *testing.T) {
		repo := new(MockRepository)
		c := validCoupon()
		c.UsageLimit = 5
		c.UsageCount = 5
		repo.On("GetByCode", ctx, "WELCOME10").Return(c, nil)

		svc := NewService(repo)
		_, err := svc.Validate(ctx, "WELCOME10", userID, 500_000)
		assert.ErrorIs(t, err, ErrCouponExhausted)
	})

	t.Run("PerUserLimitExceeded", func(t *testing.T) {
		repo := new(MockRepository)
		c := validCoupon()
		repo.On("GetByCode", ctx, "WELCOME10").Return(c, nil)
		repo.On("CountActiveUseByUser", ctx, c.ID, userID).Return(1, nil)

		svc := NewService(repo)
		_, err := svc.Validate(ctx, "WELCOME10", userID, 500_000)
		assert.ErrorIs(t, err, ErrCouponLimitExceeded)
	})
}

func TestService_Discount(t *testing.T) {
	svc := NewService(nil)

	t.Run("Percent", func(t *testing.T) {
		c := &Coupon{DiscountType: DiscountPercent, DiscountValue: 10}
		assert.Equal(t, int64(50_000), svc.Discount(c, 500_000))
	})

	t.Run("Fixed", func(t *testing.T) {
		c := &Coupon{DiscountType: DiscountFixed, DiscountValue: 30_000}
		assert.Equal(t, int64(30_000), svc.Discount(c, 500_000))
	})

	t.Run("CappedAtSubtotal", func(t *testing.T) {
		c := &Coupon{DiscountType: DiscountFixed, DiscountValue: 900_000}
		assert.Equal(t, int64(500_000), svc.Discount(c, 500_000))
	})
}
