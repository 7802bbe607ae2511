package order

import "errors"

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrInvalidTransition   = errors.New("invalid order state transition")
	ErrNotCancellable      = errors.New("order cannot be cancelled")
	ErrNotRefundable       = errors.New("order cannot be refunded")
	ErrInvalidItems        = errors.New("order items invalid")
	ErrAddressRequired     = errors.New("shipping address required")
	ErrAlreadyPaid         = errors.New("order already paid")
	ErrPaymentNotRetryable = errors.New("payment cannot be retried for this order")
	ErrUnauthorized        = errors.New("unauthorized")
)
