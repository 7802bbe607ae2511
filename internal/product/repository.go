package product

import (
	"context"
	"database/sql"
	"errors"

	"parsshop-be/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrProductNotFound = errors.New("product not found")

type Repository interface {
	GetProductForCheckout(ctx context.Context, productID uuid.UUID) (*Product, error)
	GetVariantForCheckout(ctx context.Context, variantID uuid.UUID) (*Variant, *Product, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

// GetProductForCheckout reads the price snapshot fields used at order
// placement. Prices are never re-read after the order is created.
func (r *repository) GetProductForCheckout(ctx context.Context, productID uuid.UUID) (*Product, error) {
	query := `
		SELECT id, name, price, stock_quantity, low_stock_threshold, is_in_stock
		FROM products
		WHERE id = $1
	`

	var p Product
	err := r.db.QueryRowContext(ctx, query, productID).
		Scan(&p.ID, &p.Name, &p.Price, &p.StockQuantity, &p.LowStockThreshold, &p.IsInStock)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		logger.FromCtx(ctx).Error(
			"failed to query product for checkout",
			zap.String("product_id", productID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	return &p, nil
}

func (r *repository) GetVariantForCheckout(ctx context.Context, variantID uuid.UUID) (*Variant, *Product, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "GetVariantForCheckout"),
		zap.String("variant_id", variantID.String()),
	)

	query := `
		SELECT
			v.id,
			v.product_id,
			v.name,
			v.price,
			v.stock_quantity,
			v.low_stock_threshold,
			v.is_in_stock,
			p.id,
			p.name
		FROM variants v
		LEFT JOIN products p ON p.id = v.product_id
		WHERE v.id = $1
	`

	var v Variant
	var p Product

	err := r.db.QueryRowContext(ctx, query, variantID).
		Scan(&v.ID, &v.ProductID, &v.Name, &v.Price, &v.StockQuantity, &v.LowStockThreshold, &v.IsInStock, &p.ID, &p.Name)

	if errors.Is(err, sql.ErrNoRows) {
		log.Warn("variant not found")
		return nil, nil, ErrProductNotFound
	}
	if err != nil {
		log.Error("failed to query variant for checkout", zap.Error(err))
		return nil, nil, err
	}

	return &v, &p, nil
}
