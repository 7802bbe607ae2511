package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_Reserve(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ledger := NewLedger()
	ctx := context.Background()

	productID := uuid.New()
	variantID := uuid.New()

	t.Run("Success product above threshold", func(t *testing.T) {
		mock.ExpectQuery(`UPDATE products\s+SET stock_quantity = stock_quantity - \$1`).
			WithArgs(3, productID).
			WillReturnRows(sqlmock.NewRows([]string{"name", "stock_quantity", "low_stock_threshold"}).
				AddRow("Teapot", 7, 5))

		alerts, err := ledger.Reserve(ctx, db, []ItemQty{{ProductID: &productID, Quantity: 3}})
		assert.NoError(t, err)
		assert.Empty(t, alerts)
	})

	t.Run("LowStockAlert fires at threshold", func(t *testing.T) {
		mock.ExpectQuery(`UPDATE products\s+SET stock_quantity = stock_quantity - \$1`).
			WithArgs(5, productID).
			WillReturnRows(sqlmock.NewRows([]string{"name", "stock_quantity", "low_stock_threshold"}).
				AddRow("Teapot", 5, 5))

		alerts, err := ledger.Reserve(ctx, db, []ItemQty{{ProductID: &productID, Quantity: 5}})
		assert.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, productID, alerts[0].ProductID)
		assert.Equal(t, 5, alerts[0].Remaining)
		assert.Equal(t, "Teapot", alerts[0].Name)
	})

	t.Run("Variant path", func(t *testing.T) {
		mock.ExpectQuery(`UPDATE variants\s+SET stock_quantity = stock_quantity - \$1`).
			WithArgs(2, variantID).
			WillReturnRows(sqlmock.NewRows([]string{"name", "stock_quantity", "low_stock_threshold"}).
				AddRow("Teapot / Blue", 1, 3))

		alerts, err := ledger.Reserve(ctx, db, []ItemQty{{VariantID: &variantID, Quantity: 2}})
		assert.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, &variantID, alerts[0].VariantID)
	})

	t.Run("RejectsZeroQuantity", func(t *testing.T) {
		_, err := ledger.Reserve(ctx, db, []ItemQty{{ProductID: &productID, Quantity: 0}})
		assert.Error(t, err)
	})

	t.Run("RejectsUnreferencedItem", func(t *testing.T) {
		_, err := ledger.Reserve(ctx, db, []ItemQty{{Quantity: 1}})
		assert.Error(t, err)
	})

	t.Run("DBError", func(t *testing.T) {
		mock.ExpectQuery(`UPDATE products\s+SET stock_quantity = stock_quantity - \$1`).
			WillReturnError(errors.New("db down"))

		_, err := ledger.Reserve(ctx, db, []ItemQty{{ProductID: &productID, Quantity: 1}})
		assert.Error(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_Restore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ledger := NewLedger()
	ctx := context.Background()

	productID := uuid.New()
	variantID := uuid.New()

	t.Run("Success mixed items", func(t *testing.T) {
		mock.ExpectExec(`UPDATE products\s+SET stock_quantity = stock_quantity \+ \$1`).
			WithArgs(3, productID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE variants\s+SET stock_quantity = stock_quantity \+ \$1`).
			WithArgs(2, variantID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := ledger.Restore(ctx, db, []ItemQty{
			{ProductID: &productID, Quantity: 3},
			{VariantID: &variantID, Quantity: 2},
		})
		assert.NoError(t, err)
	})

	t.Run("DBError", func(t *testing.T) {
		mock.ExpectExec(`UPDATE products\s+SET stock_quantity = stock_quantity \+ \$1`).
			WillReturnError(errors.New("db down"))

		err := ledger.Restore(ctx, db, []ItemQty{{ProductID: &productID, Quantity: 1}})
		assert.Error(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
