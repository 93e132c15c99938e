package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ims-api/internal/models"
)

// StockRepository persists inventory items and their transaction log.
type StockRepository struct {
	db *sqlx.DB
}

// NewStockRepository constructs the repository.
func NewStockRepository(db *sqlx.DB) *StockRepository {
	return &StockRepository{db: db}
}

const stockItemColumns = `id, name, description, unit_of_measure, quantity_on_hand, reorder_level, created_at, updated_at`

// FindItemByID returns a stock item.
func (r *StockRepository) FindItemByID(ctx context.Context, id string) (*models.StockItem, error) {
	query := `SELECT ` + stockItemColumns + ` FROM stock_items WHERE id = $1`
	var item models.StockItem
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// ListItems returns all stock items ordered by name.
func (r *StockRepository) ListItems(ctx context.Context) ([]models.StockItem, error) {
	query := `SELECT ` + stockItemColumns + ` FROM stock_items ORDER BY name ASC`
	var items []models.StockItem
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, fmt.Errorf("list stock items: %w", err)
	}
	return items, nil
}

// ListLowItems returns items at or below their reorder level.
func (r *StockRepository) ListLowItems(ctx context.Context) ([]models.StockItem, error) {
	query := `SELECT ` + stockItemColumns + ` FROM stock_items WHERE quantity_on_hand <= reorder_level ORDER BY name ASC`
	var items []models.StockItem
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, fmt.Errorf("list low stock items: %w", err)
	}
	return items, nil
}

// CreateItem inserts a stock item.
func (r *StockRepository) CreateItem(ctx context.Context, item *models.StockItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	const query = `INSERT INTO stock_items (id, name, description, unit_of_measure, quantity_on_hand, reorder_level, created_at, updated_at)
        VALUES (:id, :name, :description, :unit_of_measure, :quantity_on_hand, :reorder_level, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("insert stock item: %w", err)
	}
	return nil
}

// UpdateItem updates the descriptive fields of a stock item. Quantity only
// moves through Adjust so the transaction log stays complete.
func (r *StockRepository) UpdateItem(ctx context.Context, item *models.StockItem) error {
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE stock_items SET name = :name, description = :description, unit_of_measure = :unit_of_measure,
        reorder_level = :reorder_level, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("update stock item: %w", err)
	}
	return nil
}

// Adjust applies a quantity delta to an item and logs the transaction,
// both in one database transaction. The new on-hand quantity is returned.
func (r *StockRepository) Adjust(ctx context.Context, txn *models.StockTransaction) (float64, error) {
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	if txn.Date.IsZero() {
		txn.Date = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin stock tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var newQuantity float64
	const update = `UPDATE stock_items SET quantity_on_hand = quantity_on_hand + $2, updated_at = $3
        WHERE id = $1 RETURNING quantity_on_hand`
	if err := tx.GetContext(ctx, &newQuantity, update, txn.ItemID, txn.QuantityChanged, time.Now().UTC()); err != nil {
		return 0, err
	}

	const insert = `INSERT INTO stock_transactions (id, item_id, date, quantity_changed, reason, user_id)
        VALUES (:id, :item_id, :date, :quantity_changed, :reason, :user_id)`
	if _, err := tx.NamedExecContext(ctx, insert, txn); err != nil {
		return 0, fmt.Errorf("insert stock transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit stock tx: %w", err)
	}
	return newQuantity, nil
}

// ListTransactions returns the transaction log for an item, newest first.
func (r *StockRepository) ListTransactions(ctx context.Context, itemID string) ([]models.StockTransaction, error) {
	const query = `SELECT id, item_id, date, quantity_changed, reason, user_id
        FROM stock_transactions WHERE item_id = $1 ORDER BY date DESC`
	var txns []models.StockTransaction
	if err := r.db.SelectContext(ctx, &txns, query, itemID); err != nil {
		return nil, fmt.Errorf("list stock transactions: %w", err)
	}
	return txns, nil
}
