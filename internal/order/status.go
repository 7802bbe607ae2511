package order

type OrderStatus string

const (
	StatusPending    OrderStatus = "PENDING"
	StatusConfirmed  OrderStatus = "CONFIRMED"
	StatusProcessing OrderStatus = "PROCESSING"
	StatusShipped    OrderStatus = "SHIPPED"
	StatusDelivered  OrderStatus = "DELIVERED"
	StatusCancelled  OrderStatus = "CANCELLED"
	StatusRefunded   OrderStatus = "REFUNDED"
)

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "PENDING"
	PaymentPaid              PaymentStatus = "PAID"
	PaymentFailed            PaymentStatus = "FAILED"
	PaymentRefunded          PaymentStatus = "REFUNDED"
	PaymentPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

// statusTransitions is the adjacency list for the order lifecycle.
// REFUNDED is reachable from every post-payment state, CANCELLED only
// before fulfilment completes.
var statusTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled, StatusRefunded},
	StatusProcessing: {StatusShipped, StatusCancelled, StatusRefunded},
	StatusShipped:    {StatusDelivered, StatusRefunded},
	StatusDelivered:  {StatusRefunded},
	StatusCancelled:  {},
	StatusRefunded:   {},
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending: {PaymentPaid, PaymentFailed},
	PaymentFailed:  {PaymentPending},
	PaymentPaid:    {PaymentRefunded, PaymentPartiallyRefunded},
}

func contains[T comparable](xs []T, x T) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// Transition validates the requested move on either or both axes and, when
// legal, applies it to the order in one step. Persistence is the caller's
// concern: the repository writes the resulting pair as a single update.
// Inventory and coupon effects are owned by the reconciliation flow, never
// by the state machine.
func Transition(o *Order, status *OrderStatus, paymentStatus *PaymentStatus) error {
	if status == nil && paymentStatus == nil {
		return ErrInvalidTransition
	}

	if status != nil && *status != o.Status {
		if !contains(statusTransitions[o.Status], *status) {
			return ErrInvalidTransition
		}

		switch *status {
		case StatusCancelled:
			// Paid orders exit through REFUNDED, never CANCELLED.
			if o.PaymentStatus == PaymentPaid {
				return ErrInvalidTransition
			}
		case StatusConfirmed:
			// Confirmation is the commit of a pending payment.
			if o.PaymentStatus != PaymentPending {
				return ErrInvalidTransition
			}
		}
	}

	if paymentStatus != nil && *paymentStatus != o.PaymentStatus {
		if !contains(paymentTransitions[o.PaymentStatus], *paymentStatus) {
			return ErrInvalidTransition
		}
	}

	if status != nil {
		o.Status = *status
	}
	if paymentStatus != nil {
		o.PaymentStatus = *paymentStatus
	}
	return nil
}

// CanCancel reports whether a customer cancellation is currently legal.
func CanCancel(o *Order) bool {
	if o.PaymentStatus == PaymentPaid {
		return false
	}
	switch o.Status {
	case StatusPending, StatusConfirmed, StatusProcessing:
		return true
	}
	return false
}
