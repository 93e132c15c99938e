package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/ims-api/internal/models"
	appErrors "github.com/noah-isme/ims-api/pkg/errors"
)

type mockStockRepo struct {
	items map[string]*models.StockItem
	txns  []*models.StockTransaction
}

func (m *mockStockRepo) FindItemByID(ctx context.Context, id string) (*models.StockItem, error) {
	if item, ok := m.items[id]; ok {
		cp := *item
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStockRepo) ListItems(ctx context.Context) ([]models.StockItem, error) {
	return nil, nil
}

func (m *mockStockRepo) ListLowItems(ctx context.Context) ([]models.StockItem, error) {
	return nil, nil
}

func (m *mockStockRepo) CreateItem(ctx context.Context, item *models.StockItem) error {
	if item.ID == "" {
		item.ID = "item-1"
	}
	if m.items == nil {
		m.items = make(map[string]*models.StockItem)
	}
	cp := *item
	m.items[item.ID] = &cp
	return nil
}

func (m *mockStockRepo) UpdateItem(ctx context.Context, item *models.StockItem) error {
	cp := *item
	m.items[item.ID] = &cp
	return nil
}

func (m *mockStockRepo) Adjust(ctx context.Context, txn *models.StockTransaction) (float64, error) {
	m.txns = append(m.txns, txn)
	item := m.items[txn.ItemID]
	item.QuantityOnHand += txn.QuantityChanged
	return item.QuantityOnHand, nil
}

func (m *mockStockRepo) ListTransactions(ctx context.Context, itemID string) ([]models.StockTransaction, error) {
	out := make([]models.StockTransaction, 0, len(m.txns))
	for _, txn := range m.txns {
		if txn.ItemID == itemID {
			out = append(out, *txn)
		}
	}
	return out, nil
}

func newStockServiceForTest(repo *mockStockRepo) *StockService {
	return NewStockService(repo, validator.New(), zap.NewNop())
}

func TestStockCreateItemWithOpeningBalance(t *testing.T) {
	repo := &mockStockRepo{}
	svc := newStockServiceForTest(repo)

	item, err := svc.CreateItem(context.Background(), CreateStockItemRequest{
		Name:            "Fabric roll",
		UnitOfMeasure:   "m",
		OpeningQuantity: 40,
		ReorderLevel:    10,
	})
	require.NoError(t, err)
	assert.Equal(t, 40.0, item.QuantityOnHand)
	require.Len(t, repo.txns, 1)
	assert.Equal(t, "opening balance", repo.txns[0].Reason)
}

func TestStockCreateItemZeroOpeningSkipsLedger(t *testing.T) {
	repo := &mockStockRepo{}
	svc := newStockServiceForTest(repo)

	_, err := svc.CreateItem(context.Background(), CreateStockItemRequest{
		Name:          "Thread spool",
		UnitOfMeasure: "pcs",
	})
	require.NoError(t, err)
	assert.Empty(t, repo.txns)
}

func TestStockAdjust(t *testing.T) {
	repo := &mockStockRepo{items: map[string]*models.StockItem{
		"item-1": {ID: "item-1", Name: "Fabric roll", QuantityOnHand: 40, ReorderLevel: 10},
	}}
	svc := newStockServiceForTest(repo)

	item, err := svc.Adjust(context.Background(), "item-1", AdjustStockRequest{QuantityChanged: -15, Reason: "issued to batch"})
	require.NoError(t, err)
	assert.Equal(t, 25.0, item.QuantityOnHand)
	require.Len(t, repo.txns, 1)
	assert.Equal(t, -15.0, repo.txns[0].QuantityChanged)
}

func TestStockAdjustRejectsNegativeResult(t *testing.T) {
	repo := &mockStockRepo{items: map[string]*models.StockItem{
		"item-1": {ID: "item-1", QuantityOnHand: 10},
	}}
	svc := newStockServiceForTest(repo)

	_, err := svc.Adjust(context.Background(), "item-1", AdjustStockRequest{QuantityChanged: -11, Reason: "issued"})
	require.Error(t, err)
	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrInsufficientStock.Code, apiErr.Code)
	assert.Empty(t, repo.txns)
}

func TestStockAdjustToExactlyZero(t *testing.T) {
	repo := &mockStockRepo{items: map[string]*models.StockItem{
		"item-1": {ID: "item-1", QuantityOnHand: 10},
	}}
	svc := newStockServiceForTest(repo)

	item, err := svc.Adjust(context.Background(), "item-1", AdjustStockRequest{QuantityChanged: -10, Reason: "issued"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, item.QuantityOnHand)
}

func TestStockUpdateItemDoesNotTouchQuantity(t *testing.T) {
	repo := &mockStockRepo{items: map[string]*models.StockItem{
		"item-1": {ID: "item-1", Name: "Old", QuantityOnHand: 7, UnitOfMeasure: "pcs"},
	}}
	svc := newStockServiceForTest(repo)

	item, err := svc.UpdateItem(context.Background(), "item-1", UpdateStockItemRequest{
		Name:          "New name",
		UnitOfMeasure: "pcs",
		ReorderLevel:  3,
	})
	require.NoError(t, err)
	assert.Equal(t, "New name", item.Name)
	assert.Equal(t, 7.0, item.QuantityOnHand)
}
