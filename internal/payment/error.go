package payment

import (
	"errors"
	"fmt"
)

var (
	ErrAmountBelowMinimum = errors.New("amount below gateway minimum")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// GatewayError carries a gateway-reported rejection with its normalized
// code. Unrecognized response shapes collapse into this rather than being
// trusted field by field.
type GatewayError struct {
	Code    int
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway error %d: %s", e.Code, e.Message)
}
