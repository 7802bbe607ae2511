package notify

import "context"

// Publisher dispatches events fire-and-forget. Publish never blocks the
// caller on broker I/O and never surfaces delivery errors: a lost
// notification must not roll back or delay the commit that caused it.
type Publisher interface {
	Publish(ctx context.Context, env Envelope)
	Close() error
}

// Nop discards every event. Used in tests and when no brokers are
// configured.
type Nop struct{}

func (Nop) Publish(ctx context.Context, env Envelope) {}
func (Nop) Close() error                              { return nil }
