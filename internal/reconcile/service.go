package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"parsshop-be/internal/logger"
	"parsshop-be/internal/notify"
	"parsshop-be/internal/order"
	"parsshop-be/internal/payment"

	"go.uber.org/zap"
)

// ErrVerificationFailed marks a success report the gateway would not
// confirm. The order is already moved to FAILED when this is returned.
var ErrVerificationFailed = errors.New("payment verification failed")

// Outcome is the payment result as reported by a delivery channel, before
// any verification.
type Outcome string

const (
	OutcomeSuccess  Outcome = "SUCCESS"
	OutcomeDeclined Outcome = "DECLINED"
)

// Result is what both the callback and the webhook respond with. It always
// reflects committed database state, never the raw report.
type Result struct {
	OrderNumber   string
	Status        order.OrderStatus
	PaymentStatus order.PaymentStatus
}

// Service reconciles gateway payment reports against order state. Reports
// arrive over two channels for the same payment (customer redirect and
// server webhook) in any order, so every path here must be idempotent and
// safe under concurrent delivery.
type Service interface {
	Reconcile(ctx context.Context, authority string, outcome Outcome) (*Result, error)
}

type service struct {
	orders        order.Repository
	gateway       payment.Gateway
	events        notify.Publisher
	verifyTimeout time.Duration
}

func NewService(orders order.Repository, gateway payment.Gateway, events notify.Publisher) Service {
	return &service{
		orders:        orders,
		gateway:       gateway,
		events:        events,
		verifyTimeout: 10 * time.Second,
	}
}

func (s *service) Reconcile(ctx context.Context, authority string, outcome Outcome) (*Result, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Reconcile"),
		zap.String("authority", authority),
		zap.String("outcome", string(outcome)),
	)

	o, err := s.orders.GetByAuthority(ctx, authority)
	if err != nil {
		return nil, err
	}

	log = log.With(zap.String("order_id", o.ID.String()))

	// Duplicate delivery of an already-committed payment. No verify, no
	// write, no event: answer from committed state.
	if o.PaymentStatus == order.PaymentPaid {
		log.Info("payment already committed, duplicate report")
		return resultOf(o), nil
	}

	if outcome == OutcomeDeclined {
		return s.applyDecline(ctx, log, o, "declined by gateway")
	}

	return s.applySuccess(ctx, log, o)
}

// applyDecline moves the payment to FAILED and restores the reservation.
// The order status is left alone: a declined order is retryable, only an
// explicit customer cancellation closes it.
func (s *service) applyDecline(ctx context.Context, log *zap.Logger, o *order.Order, reason string) (*Result, error) {
	applied, err := s.orders.FailAndRestoreTx(ctx, o.ID, reason, false)
	if err != nil {
		return nil, err
	}

	if applied {
		log.Info("payment marked failed", zap.String("reason", reason))
		s.publishPaymentFailed(ctx, o, reason)
	} else {
		log.Info("decline report arrived after terminal payment state")
	}

	// Either way the answer is whatever is committed now. A concurrent
	// success may have won the guard.
	updated, err := s.orders.GetByID(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	return resultOf(updated), nil
}

// applySuccess verifies the reported success with the gateway before
// committing anything. A success report is a claim, the gateway's verify
// response is the fact.
func (s *service) applySuccess(ctx context.Context, log *zap.Logger, o *order.Order) (*Result, error) {
	vctx, cancel := context.WithTimeout(ctx, s.verifyTimeout)
	defer cancel()

	res, err := s.gateway.VerifyPayment(vctx, *o.Authority, o.Total)
	if err != nil {
		log.Warn("verification call failed", zap.Error(err))
		return s.failVerification(ctx, log, o, fmt.Sprintf("verification unavailable: %v", err))
	}
	if !res.Verified {
		log.Warn("gateway did not confirm the payment",
			zap.Int("code", res.Code),
			zap.String("message", res.Message),
		)
		return s.failVerification(ctx, log, o, "verification declined: "+res.Message)
	}

	applied, err := s.orders.ConfirmPaidTx(ctx, o.ID, res.RefID, time.Now())
	if err != nil {
		return nil, err
	}

	if applied {
		log.Info("payment committed", zap.String("ref_id", res.RefID))
		s.publishPaymentSucceeded(ctx, o, res.RefID)

		o.Status = order.StatusConfirmed
		o.PaymentStatus = order.PaymentPaid
		return resultOf(o), nil
	}

	// Lost the guard. Re-read and answer with the winner's state.
	updated, err := s.orders.GetByID(ctx, o.ID)
	if err != nil {
		return nil, err
	}

	if updated.PaymentStatus == order.PaymentPaid {
		// The other channel committed the same payment first.
		log.Info("payment already committed by concurrent report")
		return resultOf(updated), nil
	}

	// A decline or cancellation won the race against a verified success.
	// The money is with the gateway but the order is closed: surface the
	// committed state and leave the follow-up to support tooling.
	log.Warn("verified payment lost the guard to a terminal state",
		zap.String("payment_status", string(updated.PaymentStatus)),
		zap.String("status", string(updated.Status)),
	)
	return resultOf(updated), nil
}

// failVerification handles a success report the gateway would not confirm:
// the payment moves to FAILED exactly like a decline, and the caller gets
// ErrVerificationFailed so the channel can distinguish it from a plain
// decline.
func (s *service) failVerification(ctx context.Context, log *zap.Logger, o *order.Order, reason string) (*Result, error) {
	applied, err := s.orders.FailAndRestoreTx(ctx, o.ID, reason, false)
	if err != nil {
		return nil, err
	}

	if applied {
		s.publishPaymentFailed(ctx, o, reason)
		return nil, ErrVerificationFailed
	}

	// Already terminal: if the concurrent channel managed to verify and
	// commit, the payment stands and this report is answered as a
	// duplicate success.
	updated, err := s.orders.GetByID(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	if updated.PaymentStatus == order.PaymentPaid {
		log.Info("payment committed concurrently, ignoring failed verification")
		return resultOf(updated), nil
	}
	return nil, ErrVerificationFailed
}

func resultOf(o *order.Order) *Result {
	return &Result{
		OrderNumber:   o.OrderNumber,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
	}
}

func (s *service) publishPaymentSucceeded(ctx context.Context, o *order.Order, refID string) {
	env, err := notify.NewEnvelope(notify.EventPaymentSucceeded, o.ID.String(), notify.PaymentSucceededPayload{
		OrderID:     o.ID.String(),
		OrderNumber: o.OrderNumber,
		RefID:       refID,
		Amount:      o.Total,
	})
	if err != nil {
		logger.FromCtx(ctx).Error("failed to build payment succeeded event", zap.Error(err))
		return
	}
	s.events.Publish(ctx, env)
}

func (s *service) publishPaymentFailed(ctx context.Context, o *order.Order, reason string) {
	env, err := notify.NewEnvelope(notify.EventPaymentFailed, o.ID.String(), notify.PaymentFailedPayload{
		OrderID:     o.ID.String(),
		OrderNumber: o.OrderNumber,
		Reason:      reason,
	})
	if err != nil {
		logger.FromCtx(ctx).Error("failed to build payment failed event", zap.Error(err))
		return
	}
	s.events.Publish(ctx, env)
}
