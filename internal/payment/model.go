package payment

// Amounts are integral minor currency units (IRR).

type PaymentRequest struct {
	Amount      int64
	Description string
	Mobile      string
	Email       string
}

// PaymentSession is the correlation token plus the URL the customer is
// redirected to.
type PaymentSession struct {
	Authority   string
	RedirectURL string
	Fee         int64
}

type VerifyResult struct {
	Verified bool
	RefID    string
	CardPan  string
	Code     int
	Message  string
}

type RefundResult struct {
	RefID string
	Code  int
}
