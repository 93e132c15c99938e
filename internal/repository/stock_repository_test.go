package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ims-api/internal/models"
)

func TestStockRepositoryAdjustLogsTransaction(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStockRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE stock_items SET quantity_on_hand = quantity_on_hand").
		WithArgs("item-1", -15.0, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"quantity_on_hand"}).AddRow(25.0))
	mock.ExpectExec("INSERT INTO stock_transactions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	userID := "u1"
	txn := &models.StockTransaction{
		ItemID:          "item-1",
		QuantityChanged: -15,
		Reason:          "uniform issue",
		UserID:          &userID,
	}
	newQty, err := repo.Adjust(context.Background(), txn)
	require.NoError(t, err)
	assert.Equal(t, 25.0, newQty)
	assert.NotEmpty(t, txn.ID)
	assert.False(t, txn.Date.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStockRepositoryAdjustRollsBackOnLogFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStockRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE stock_items SET quantity_on_hand = quantity_on_hand").
		WillReturnRows(sqlmock.NewRows([]string{"quantity_on_hand"}).AddRow(5.0))
	mock.ExpectExec("INSERT INTO stock_transactions").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := repo.Adjust(context.Background(), &models.StockTransaction{ItemID: "item-1", QuantityChanged: 5})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStockRepositoryListLowItems(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStockRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "name", "description", "unit_of_measure", "quantity_on_hand", "reorder_level", "created_at", "updated_at"}).
		AddRow("item-1", "Notebooks", "", "pcs", 4.0, 10.0, now, now)
	mock.ExpectQuery("FROM stock_items WHERE quantity_on_hand <= reorder_level").
		WillReturnRows(rows)

	items, err := repo.ListLowItems(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Notebooks", items[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}
