package product

import (
	"time"

	"github.com/google/uuid"
)

type Product struct {
	ID                uuid.UUID
	Name              string
	Price             int64
	StockQuantity     int
	LowStockThreshold int
	IsInStock         bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Variant struct {
	ID                uuid.UUID
	ProductID         uuid.UUID
	Name              string
	Price             int64
	StockQuantity     int
	LowStockThreshold int
	IsInStock         bool
}
