package payment

import "context"

// Gateway is the single integration point against the payment provider.
// Expected gateway rejections come back as *GatewayError with a normalized
// code, transport failures as ErrGatewayUnavailable. The adapter performs
// no deduplication, callers own idempotency per authority.
type Gateway interface {
	RequestPayment(ctx context.Context, req PaymentRequest) (*PaymentSession, error)
	VerifyPayment(ctx context.Context, authority string, amount int64) (*VerifyResult, error)
	Refund(ctx context.Context, authority string) (*RefundResult, error)
}
