package order

import (
	"time"

	"github.com/google/uuid"
)

type Order struct {
	ID            uuid.UUID
	OrderNumber   string
	UserID        uint
	Status        OrderStatus
	PaymentStatus PaymentStatus

	// Monetary breakdown in minor units. Total = Subtotal + Tax +
	// ShippingFee - Discount, all components non-negative.
	Subtotal    int64
	Tax         int64
	ShippingFee int64
	Discount    int64
	Total       int64

	// Authority is the gateway correlation token, unique once assigned.
	Authority     *string
	RefID         *string
	CouponID      *uuid.UUID
	AddressID     *uuid.UUID
	TrackingCode  *string
	FailureReason *string
	PaidAt        *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
	Items     []OrderItem
}

// OrderItem is a price snapshot taken at order time. Prices are never
// re-read from the catalog afterwards, the order is an immutable receipt.
type OrderItem struct {
	ID        uint
	OrderID   uuid.UUID
	ProductID *uuid.UUID
	VariantID *uuid.UUID
	Name      string
	Quantity  int
	UnitPrice int64
	Subtotal  int64
}

type OrderSummary struct {
	ID            uuid.UUID
	OrderNumber   string
	Status        OrderStatus
	PaymentStatus PaymentStatus
	Total         int64
}

func (o *Order) Summary() *OrderSummary {
	return &OrderSummary{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		Total:         o.Total,
	}
}
