package coupon

import (
	"time"

	"github.com/google/uuid"
)

type DiscountType string

const (
	DiscountFixed   DiscountType = "FIXED"
	DiscountPercent DiscountType = "PERCENT"
)

type Coupon struct {
	ID            uuid.UUID
	Code          string
	DiscountType  DiscountType
	DiscountValue int64
	MinAmount     int64
	ValidFrom     time.Time
	ValidTo       time.Time
	UsageLimit    int
	PerUserLimit  int
	UsageCount    int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
