package models

import "time"

// StockItem is an inventory item such as fabric, thread or buttons.
type StockItem struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Description    string    `db:"description" json:"description"`
	UnitOfMeasure  string    `db:"unit_of_measure" json:"unit_of_measure"`
	QuantityOnHand float64   `db:"quantity_on_hand" json:"quantity_on_hand"`
	ReorderLevel   float64   `db:"reorder_level" json:"reorder_level"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// NeedsReorder reports whether the quantity is at or below the reorder level.
func (i StockItem) NeedsReorder() bool {
	return i.QuantityOnHand <= i.ReorderLevel
}

// StockTransaction logs one change to an item's quantity. The parent item's
// quantity_on_hand is adjusted in the same database transaction as the insert.
type StockTransaction struct {
	ID              string    `db:"id" json:"id"`
	ItemID          string    `db:"item_id" json:"item_id"`
	Date            time.Time `db:"date" json:"date"`
	QuantityChanged float64   `db:"quantity_changed" json:"quantity_changed"`
	Reason          string    `db:"reason" json:"reason"`
	UserID          *string   `db:"user_id" json:"user_id,omitempty"`
}
