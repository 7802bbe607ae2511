package order

import (
	"context"
	"fmt"
	"time"

	"parsshop-be/internal/coupon"
	"parsshop-be/internal/inventory"
	"parsshop-be/internal/logger"
	"parsshop-be/internal/notify"
	"parsshop-be/internal/payment"
	"parsshop-be/internal/product"
	"parsshop-be/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// taxRate is the VAT percentage applied on the subtotal.
	taxRate = 9

	// shippingFlatFee is a flat rate in minor units until carrier quotes
	// are wired in.
	shippingFlatFee = int64(250_000)
)

type PlaceOrderItemInput struct {
	ProductID *uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
}

type PlaceOrderInput struct {
	Items         []PlaceOrderItemInput
	AddressID     *uuid.UUID
	PaymentMethod string
	CouponCode    *string
}

type Service interface {
	PlaceOrder(ctx context.Context, input PlaceOrderInput) (*Order, error)
	BeginPayment(ctx context.Context, orderID uuid.UUID) (*payment.PaymentSession, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID) (*Order, error)
	RefundOrder(ctx context.Context, orderID uuid.UUID) (*Order, error)
	GetOrderDetail(ctx context.Context, orderID uuid.UUID) (*Order, error)
}

type service struct {
	repo     Repository
	products product.Repository
	coupons  coupon.Service
	gateway  payment.Gateway
	events   notify.Publisher
}

func NewService(
	repo Repository,
	products product.Repository,
	coupons coupon.Service,
	gateway payment.Gateway,
	events notify.Publisher,
) Service {
	return &service{
		repo:     repo,
		products: products,
		coupons:  coupons,
		gateway:  gateway,
		events:   events,
	}
}

func (s *service) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "PlaceOrder"),
		zap.Int("item_count", len(input.Items)),
	)

	userID, ok := utils.GetUserIDFromContext(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}

	if len(input.Items) == 0 {
		return nil, ErrInvalidItems
	}
	if input.AddressID == nil {
		return nil, ErrAddressRequired
	}

	// 1. Snapshot prices. The catalog is never consulted again for this
	// order after creation.
	items := make([]OrderItem, 0, len(input.Items))
	var subtotal int64

	for i, in := range input.Items {
		if in.Quantity <= 0 {
			log.Warn("invalid quantity", zap.Int("index", i))
			return nil, ErrInvalidItems
		}
		if (in.ProductID == nil) == (in.VariantID == nil) {
			log.Warn("item must reference exactly one of product or variant", zap.Int("index", i))
			return nil, ErrInvalidItems
		}

		var (
			name  string
			price int64
		)

		if in.VariantID != nil {
			v, p, err := s.products.GetVariantForCheckout(ctx, *in.VariantID)
			if err != nil {
				return nil, err
			}
			name = p.Name + " / " + v.Name
			price = v.Price
		} else {
			p, err := s.products.GetProductForCheckout(ctx, *in.ProductID)
			if err != nil {
				return nil, err
			}
			name = p.Name
			price = p.Price
		}

		itemSubtotal := price * int64(in.Quantity)
		subtotal += itemSubtotal

		items = append(items, OrderItem{
			ProductID: in.ProductID,
			VariantID: in.VariantID,
			Name:      name,
			Quantity:  in.Quantity,
			UnitPrice: price,
			Subtotal:  itemSubtotal,
		})
	}

	// 2. Coupon, then fees.
	var (
		discount int64
		couponID *uuid.UUID
	)
	if input.CouponCode != nil && *input.CouponCode != "" {
		c, err := s.coupons.Validate(ctx, *input.CouponCode, userID, subtotal)
		if err != nil {
			return nil, err
		}
		discount = s.coupons.Discount(c, subtotal)
		couponID = &c.ID
	}

	tax := subtotal * taxRate / 100
	total := subtotal + tax + shippingFlatFee - discount

	o := &Order{
		ID:            uuid.New(),
		OrderNumber:   utils.GenerateOrderNumber(),
		UserID:        userID,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		Subtotal:      subtotal,
		Tax:           tax,
		ShippingFee:   shippingFlatFee,
		Discount:      discount,
		Total:         total,
		CouponID:      couponID,
		AddressID:     input.AddressID,
		CreatedAt:     time.Now(),
		Items:         items,
	}

	log = log.With(
		zap.String("order_id", o.ID.String()),
		zap.String("order_number", o.OrderNumber),
		zap.Int64("total", total),
	)

	// 3. One transaction: order, items, stock reservation, coupon usage.
	alerts, err := s.repo.CreateOrderTx(ctx, o)
	if err != nil {
		log.Error("failed to create order", zap.Error(err))
		return nil, err
	}

	log.Info("order placed")

	s.publishOrderPlaced(ctx, o)
	s.publishLowStock(ctx, alerts)

	return o, nil
}

func (s *service) BeginPayment(ctx context.Context, orderID uuid.UUID) (*payment.PaymentSession, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "BeginPayment"),
		zap.String("order_id", orderID.String()),
	)

	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := s.authorizeActor(ctx, o); err != nil {
		return nil, err
	}

	switch o.PaymentStatus {
	case PaymentPaid:
		return nil, ErrAlreadyPaid
	case PaymentPending, PaymentFailed:
		// retryable
	default:
		return nil, ErrPaymentNotRetryable
	}
	if o.Status == StatusCancelled || o.Status == StatusRefunded {
		return nil, ErrPaymentNotRetryable
	}

	session, err := s.gateway.RequestPayment(ctx, payment.PaymentRequest{
		Amount:      o.Total,
		Description: fmt.Sprintf("Order %s", o.OrderNumber),
		Email:       utils.GetUserEmailFromContext(ctx),
	})
	if err != nil {
		log.Warn("gateway rejected payment request", zap.Error(err))
		return nil, err
	}

	if o.PaymentStatus == PaymentFailed {
		// The failed attempt released the reservation, take it again
		// together with the PENDING reset and the new authority.
		alerts, applied, err := s.repo.ReopenForPaymentTx(ctx, o.ID, session.Authority)
		if err != nil {
			return nil, err
		}
		if !applied {
			return nil, ErrPaymentNotRetryable
		}
		s.publishLowStock(ctx, alerts)
	} else {
		if err := s.repo.SetAuthority(ctx, o.ID, session.Authority); err != nil {
			return nil, err
		}
	}

	log.Info("payment session started", zap.String("authority", session.Authority))

	return session, nil
}

func (s *service) CancelOrder(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CancelOrder"),
		zap.String("order_id", orderID.String()),
	)

	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := s.authorizeActor(ctx, o); err != nil {
		return nil, err
	}

	if !CanCancel(o) {
		return nil, ErrNotCancellable
	}

	applied, err := s.repo.FailAndRestoreTx(ctx, o.ID, "cancelled by customer", true)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Lost the race against a payment commit.
		return nil, ErrNotCancellable
	}

	log.Info("order cancelled")

	updated, err := s.repo.GetByID(ctx, o.ID)
	if err != nil {
		return nil, err
	}

	if env, err := notify.NewEnvelope(notify.EventOrderCancelled, o.ID.String(), notify.OrderCancelledPayload{
		OrderID:     o.ID.String(),
		OrderNumber: o.OrderNumber,
		Reason:      "cancelled by customer",
	}); err == nil {
		s.events.Publish(ctx, env)
	}

	return updated, nil
}

func (s *service) RefundOrder(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "RefundOrder"),
		zap.String("order_id", orderID.String()),
	)

	if utils.GetUserRoleFromContext(ctx) != "ADMIN" {
		return nil, ErrUnauthorized
	}

	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if o.PaymentStatus != PaymentPaid || o.Authority == nil {
		return nil, ErrNotRefundable
	}

	// Validate the move on a copy before touching the gateway.
	check := *o
	st, ps := StatusRefunded, PaymentRefunded
	if err := Transition(&check, &st, &ps); err != nil {
		return nil, ErrNotRefundable
	}

	res, err := s.gateway.Refund(ctx, *o.Authority)
	if err != nil {
		log.Error("gateway refund failed", zap.Error(err))
		return nil, err
	}

	applied, err := s.repo.MarkRefundedTx(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ErrNotRefundable
	}

	log.Info("order refunded", zap.String("ref_id", res.RefID))

	updated, err := s.repo.GetByID(ctx, o.ID)
	if err != nil {
		return nil, err
	}

	if env, err := notify.NewEnvelope(notify.EventOrderRefunded, o.ID.String(), notify.OrderRefundedPayload{
		OrderID:     o.ID.String(),
		OrderNumber: o.OrderNumber,
		RefID:       res.RefID,
	}); err == nil {
		s.events.Publish(ctx, env)
	}

	return updated, nil
}

func (s *service) GetOrderDetail(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := s.authorizeActor(ctx, o); err != nil {
		return nil, err
	}

	items, err := s.repo.GetOrderItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	o.Items = items

	return o, nil
}

// authorizeActor allows the order's owner and admins.
func (s *service) authorizeActor(ctx context.Context, o *Order) error {
	if utils.GetUserRoleFromContext(ctx) == "ADMIN" {
		return nil
	}
	userID, ok := utils.GetUserIDFromContext(ctx)
	if !ok || userID != o.UserID {
		return ErrUnauthorized
	}
	return nil
}

func (s *service) publishOrderPlaced(ctx context.Context, o *Order) {
	env, err := notify.NewEnvelope(notify.EventOrderPlaced, o.ID.String(), notify.OrderPlacedPayload{
		OrderID:     o.ID.String(),
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		Total:       o.Total,
		ItemCount:   len(o.Items),
	})
	if err != nil {
		logger.FromCtx(ctx).Error("failed to build order placed event", zap.Error(err))
		return
	}
	s.events.Publish(ctx, env)
}

func (s *service) publishLowStock(ctx context.Context, alerts []inventory.LowStockAlert) {
	for _, a := range alerts {
		payload := notify.LowStockPayload{
			Name:      a.Name,
			Remaining: a.Remaining,
			Threshold: a.Threshold,
		}
		if a.VariantID != nil {
			payload.VariantID = a.VariantID.String()
		} else {
			payload.ProductID = a.ProductID.String()
		}

		env, err := notify.NewEnvelope(notify.EventLowStock, "", payload)
		if err != nil {
			logger.FromCtx(ctx).Error("failed to build low stock event", zap.Error(err))
			continue
		}
		s.events.Publish(ctx, env)
	}
}
