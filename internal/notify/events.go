package notify

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderPlaced      = "OrderPlaced"
	EventOrderCancelled   = "OrderCancelled"
	EventOrderRefunded    = "OrderRefunded"
	EventPaymentSucceeded = "PaymentSucceeded"
	EventPaymentFailed    = "PaymentFailed"
	EventLowStock         = "LowStock"
)

// Envelope is the outbound message shape shared by every event. Payload is
// event-specific. CorrelationID is the order id for order-scoped events.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

const producerName = "parsshop-be"

func NewEnvelope(eventType, correlationID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}

	return Envelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producerName,
		CorrelationID: correlationID,
		Payload:       raw,
	}, nil
}

// ---- Payload types per event ----

type OrderPlacedPayload struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	UserID      uint   `json:"user_id"`
	Total       int64  `json:"total"`
	ItemCount   int    `json:"item_count"`
}

type OrderCancelledPayload struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Reason      string `json:"reason,omitempty"`
}

type OrderRefundedPayload struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	RefID       string `json:"ref_id,omitempty"`
}

type PaymentSucceededPayload struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	RefID       string `json:"ref_id"`
	Amount      int64  `json:"amount"`
}

type PaymentFailedPayload struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Reason      string `json:"reason,omitempty"`
}

type LowStockPayload struct {
	ProductID string `json:"product_id,omitempty"`
	VariantID string `json:"variant_id,omitempty"`
	Name      string `json:"name"`
	Remaining int    `json:"remaining"`
	Threshold int    `json:"threshold"`
}
