package reconcile

import (
	"context"
	"testing"
	"time"

	"parsshop-be/internal/inventory"
	"parsshop-be/internal/notify"
	"parsshop-be/internal/order"
	"parsshop-be/internal/payment"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) CreateOrderTx(ctx context.Context, o *order.Order) ([]inventory.LowStockAlert, error) {
	args := m.Called(ctx, o)
	if alerts, ok := args.Get(0).([]inventory.LowStockAlert); ok {
		return alerts, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, orderID)
	if o, ok := args.Get(0).(*order.Order); ok {
		return o, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockOrderRepository) GetByAuthority(ctx context.Context, authority string) (*order.Order, error) {
	args := m.Called(ctx, authority)
	if o, ok := args.Get(0).(*order.Order); ok {
		return o, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockOrderRepository) GetOrderItems(ctx context.Context, orderID uuid.UUID) ([]order.OrderItem, error) {
	args := m.Called(ctx, orderID)
	if items, ok := args.Get(0).([]order.OrderItem); ok {
		return items, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockOrderRepository) SetAuthority(ctx context.Context, orderID uuid.UUID, authority string) error {
	return m.Called(ctx, orderID, authority).Error(0)
}

func (m *MockOrderRepository) ConfirmPaidTx(ctx context.Context, orderID uuid.UUID, refID string, paidAt time.Time) (bool, error) {
	args := m.Called(ctx, orderID, refID, paidAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) FailAndRestoreTx(ctx context.Context, orderID uuid.UUID, reason string, alsoCancel bool) (bool, error) {
	args := m.Called(ctx, orderID, reason, alsoCancel)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) ReopenForPaymentTx(ctx context.Context, orderID uuid.UUID, authority string) ([]inventory.LowStockAlert, bool, error) {
	args := m.Called(ctx, orderID, authority)
	var alerts []inventory.LowStockAlert
	if a, ok := args.Get(0).([]inventory.LowStockAlert); ok {
		alerts = a
	}
	return alerts, args.Bool(1), args.Error(2)
}

func (m *MockOrderRepository) MarkRefundedTx(ctx context.Context, orderID uuid.UUID) (bool, error) {
	args := m.Called(ctx, orderID)
	return args.Bool(0), args.Error(1)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) RequestPayment(ctx context.Context, req payment.PaymentRequest) (*payment.PaymentSession, error) {
	args := m.Called(ctx, req)
	if s, ok := args.Get(0).(*payment.PaymentSession); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGateway) VerifyPayment(ctx context.Context, authority string, amount int64) (*payment.VerifyResult, error) {
	args := m.Called(ctx, authority, amount)
	if r, ok := args.Get(0).(*payment.VerifyResult); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGateway) Refund(ctx context.Context, authority string) (*payment.RefundResult, error) {
	args := m.Called(ctx, authority)
	if r, ok := args.Get(0).(*payment.RefundResult); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

type capturePublisher struct {
	events []notify.Envelope
}

func (c *capturePublisher) Publish(ctx context.Context, env notify.Envelope) {
	c.events = append(c.events, env)
}
func (c *capturePublisher) Close() error { return nil }

func (c *capturePublisher) types() []string {
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.EventType)
	}
	return out
}

type fixture struct {
	orders  *MockOrderRepository
	gateway *MockGateway
	events  *capturePublisher
	svc     Service
}

func newFixture() *fixture {
	f := &fixture{
		orders:  new(MockOrderRepository),
		gateway: new(MockGateway),
		events:  &capturePublisher{},
	}
	f.svc = NewService(f.orders, f.gateway, f.events)
	return f
}

const authority = "A00000000000000000000000000123456789"

func pendingOrder() *order.Order {
	a := authority
	return &order.Order{
		ID:            uuid.New(),
		OrderNumber:   "ORD-20260101-120000-001-0001",
		Status:        order.StatusPending,
		PaymentStatus: order.PaymentPending,
		Total:         745_000,
		Authority:     &a,
	}
}

func TestReconcile_SuccessCommitsPayment(t *testing.T) {
	f := newFixture()
	o := pendingOrder()

	f.orders.On("GetByAuthority", mock.Anything, authority).Return(o, nil)
	f.gateway.On("VerifyPayment", mock.Anything, authority, o.Total).
		Return(&payment.VerifyResult{Verified: true, RefID: "2012023456", Code: 100}, nil)
	f.orders.On("ConfirmPaidTx", mock.Anything, o.ID, "2012023456", mock.AnythingOfType("time.Time")).
		Return(true, nil)

	res, err := f.svc.Reconcile(context.Background(), authority, OutcomeSuccess)

	require.NoError(t, err)
	assert.Equal(t, order.PaymentPaid, res.PaymentStatus)
	assert.Equal(t, order.StatusConfirmed, res.Status)
	assert.Equal(t, o.OrderNumber, res.OrderNumber)
	assert.Equal(t, []string{notify.EventPaymentSucceeded}, f.events.types())
	f.orders.AssertExpectations(t)
}

func TestReconcile_UnknownAuthority(t *testing.T) {
	f := newFixture()

	f.orders.On("GetByAuthority", mock.Anything, "A-unknown").
		Return(nil, order.ErrOrderNotFound)

	_, err := f.svc.Reconcile(context.Background(), "A-unknown", OutcomeSuccess)

	assert.ErrorIs(t, err, order.ErrOrderNotFound)
	f.gateway.AssertNotCalled(t, "VerifyPayment", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcile_DuplicateSuccessIsIdempotent(t *testing.T) {
	// Second delivery of the same success: answered from committed state
	// without verify, write or a second event.
	f := newFixture()
	o := pendingOrder()
	o.Status = order.StatusConfirmed
	o.PaymentStatus = order.PaymentPaid

	f.orders.On("GetByAuthority", mock.Anything, authority).Return(o, nil)

	res, err := f.svc.Reconcile(context.Background(), authority, OutcomeSuccess)

	require.NoError(t, err)
	assert.Equal(t, order.PaymentPaid, res.PaymentStatus)
	assert.Empty(t, f.events.events)
	f.gateway.AssertNotCalled(t, "VerifyPayment", mock.Anything, mock.Anything, mock.Anything)
	f.orders.AssertNotCalled(t, "ConfirmPaidTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcile_DeclineRestoresAndStaysRetryable(t *testing.T) {
	f := newFixture()
	o := pendingOrder()
	after := *o
	after.PaymentStatus = order.PaymentFailed

	f.orders.On("GetByAuthority", mock.Anything, authority).Return(o, nil)
	f.orders.On("FailAndRestoreTx", mock.Anything, o.ID, mock.Anything, false).
		Return(true, nil)
	f.orders.On("GetByID", mock.Anything, o.ID).Return(&after, nil)

	res, err := f.svc.Reconcile(context.Background(), authority, OutcomeDeclined)

	require.NoError(t, err)
	assert.Equal(t, order.PaymentFailed, res.PaymentStatus)
	assert.Equal(t, order.StatusPending, res.Status, "decline must not cancel the order")
	assert.Equal(t, []string{notify.EventPaymentFailed}, f.events.types())
	f.gateway.AssertNotCalled(t, "VerifyPayment", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcile_DuplicateDecline(t *testing.T) {
	f := newFixture()
	o := pendingOrder()
	o.PaymentStatus = order.PaymentFailed

	f.orders.On("GetByAuthority", mock.Anything, authority).Return(o, nil)
	f.orders.On("FailAndRestoreTx", mock.Anything, o.ID, mock.Anything, false).
		Return(false, nil)
	f.orders.On("GetByID", mock.Anything, o.ID).Return(o, nil)

	res, err := f.svc.Reconcile(context.Background(), authority, OutcomeDeclined)

	require.NoError(t, err)
	assert.Equal(t, order.PaymentFailed, res.PaymentStatus)
	assert.Empty(t, f.events.events, "no second restore, no second event")
}

func TestReconcile_VerificationDeclined(t *testing.T) {
	// The channel reported success but the gateway will not confirm it.
	f := newFixture()
	o := pendingOrder()

	f.orders.On("GetByAuthority", mock.Anything, authority).Return(o, nil)
	f.gateway.On("VerifyPayment", mock.Anything, authority, o.Total).
		Return(&payment.VerifyResult{Verified: false, Code: 51, Message: "insufficient funds"}, nil)
	f.orders.On("FailAndRestoreTx", mock.Anything, o.ID, mock.Anything, false).
		Return(true, nil)

	_, err := f.svc.Reconcile(context.Background(), authority, OutcomeSuccess)

	assert.ErrorIs(t, err, ErrVerificationFailed)
	assert.Equal(t, []string{notify.EventPaymentFailed}, f.events.types())
	f.orders.AssertNotCalled(t, "ConfirmPaidTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcile_VerificationUnavailable(t *testing.T) {
	// Transport failure during verify counts as failed verification, never
	// as a committed payment.
	f := newFixture()
	o := pendingOrder()

	f.orders.On("GetByAuthority", mock.Anything, authority).Return(o, nil)
	f.gateway.On("VerifyPayment", mock.Anything, authority, o.Total).
		Return(nil, payment.ErrGatewayUnavailable)
	f.orders.On("FailAndRestoreTx", mock.Anything, o.ID, mock.Anything, false).
		Return(true, nil)

	_, err := f.svc.Reconcile(context.Background(), authority, OutcomeSuccess)

	assert.ErrorIs(t, err, ErrVerificationFailed)
	f.orders.AssertNotCalled(t, "ConfirmPaidTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcile_VerificationLosesToConcurrentCommit(t *testing.T) {
	// Webhook verified and committed while this channel's verify failed.
	// The committed payment stands, the failed verification is dropped.
	f := newFixture()
	o := pendingOrder()
	after := *o
	after.Status = order.StatusConfirmed
	after.PaymentStatus = order.PaymentPaid

	f.orders.On("GetByAuthority", mock.Anything, authority).Return(o, nil)
	f.gateway.On("VerifyPayment", mock.Anything, authority, o.Total).
		Return(nil, payment.ErrGatewayUnavailable)
	f.orders.On("FailAndRestoreTx", mock.Anything, o.ID, mock.Anything, false).
		Return(false, nil)
	f.orders.On("GetByID", mock.Anything, o.ID).Return(&after, nil)

	res, err := f.svc.Reconcile(context.Background(), authority, OutcomeSuccess)

	require.NoError(t, err)
	assert.Equal(t, order.PaymentPaid, res.PaymentStatus)
	assert.Empty(t, f.events.events)
}

func TestReconcile_ConcurrentSuccessLoserReturnsWinnersState(t *testing.T) {
	// Both channels verified, one guard wins. The loser answers with the
	// winner's committed state and emits nothing.
	f := newFixture()
	o := pendingOrder()
	after := *o
	after.Status = order.StatusConfirmed
	after.PaymentStatus = order.PaymentPaid

	f.orders.On("GetByAuthority", mock.Anything, authority).Return(o, nil)
	f.gateway.On("VerifyPayment", mock.Anything, authority, o.Total).
		Return(&payment.VerifyResult{Verified: true, RefID: "2012023456", Code: 100}, nil)
	f.orders.On("ConfirmPaidTx", mock.Anything, o.ID, "2012023456", mock.Anything).
		Return(false, nil)
	f.orders.On("GetByID", mock.Anything, o.ID).Return(&after, nil)

	res, err := f.svc.Reconcile(context.Background(), authority, OutcomeSuccess)

	require.NoError(t, err)
	assert.Equal(t, order.PaymentPaid, res.PaymentStatus)
	assert.Empty(t, f.events.events, "only the winning channel emits the event")
}

func TestReconcile_VerifiedSuccessLosesToDecline(t *testing.T) {
	// Rare interleaving: a decline committed FAILED between this channel's
	// verify and its confirm. Committed state is the answer.
	f := newFixture()
	o := pendingOrder()
	after := *o
	after.PaymentStatus = order.PaymentFailed

	f.orders.On("GetByAuthority", mock.Anything, authority).Return(o, nil)
	f.gateway.On("VerifyPayment", mock.Anything, authority, o.Total).
		Return(&payment.VerifyResult{Verified: true, RefID: "2012023456", Code: 100}, nil)
	f.orders.On("ConfirmPaidTx", mock.Anything, o.ID, "2012023456", mock.Anything).
		Return(false, nil)
	f.orders.On("GetByID", mock.Anything, o.ID).Return(&after, nil)

	res, err := f.svc.Reconcile(context.Background(), authority, OutcomeSuccess)

	require.NoError(t, err)
	assert.Equal(t, order.PaymentFailed, res.PaymentStatus)
	assert.Empty(t, f.events.events)
}
