package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/ims-api/internal/models"
	appErrors "github.com/noah-isme/ims-api/pkg/errors"
)

type stockRepository interface {
	FindItemByID(ctx context.Context, id string) (*models.StockItem, error)
	ListItems(ctx context.Context) ([]models.StockItem, error)
	ListLowItems(ctx context.Context) ([]models.StockItem, error)
	CreateItem(ctx context.Context, item *models.StockItem) error
	UpdateItem(ctx context.Context, item *models.StockItem) error
	Adjust(ctx context.Context, txn *models.StockTransaction) (float64, error)
	ListTransactions(ctx context.Context, itemID string) ([]models.StockTransaction, error)
}

// CreateStockItemRequest describes a new inventory item.
type CreateStockItemRequest struct {
	Name            string  `json:"name" validate:"required"`
	Description     string  `json:"description"`
	UnitOfMeasure   string  `json:"unit_of_measure" validate:"required"`
	OpeningQuantity float64 `json:"opening_quantity" validate:"gte=0"`
	ReorderLevel    float64 `json:"reorder_level" validate:"gte=0"`
}

// UpdateStockItemRequest describes item metadata changes. Quantity is
// deliberately absent; it only moves through adjustments.
type UpdateStockItemRequest struct {
	Name          string  `json:"name" validate:"required"`
	Description   string  `json:"description"`
	UnitOfMeasure string  `json:"unit_of_measure" validate:"required"`
	ReorderLevel  float64 `json:"reorder_level" validate:"gte=0"`
}

// AdjustStockRequest describes a quantity delta with its reason.
type AdjustStockRequest struct {
	QuantityChanged float64 `json:"quantity_changed" validate:"required"`
	Reason          string  `json:"reason" validate:"required"`
	UserID          *string `json:"-"`
}

// StockService manages inventory items and their append-only transaction log.
type StockService struct {
	repo      stockRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStockService constructs StockService.
func NewStockService(repo stockRepository, validate *validator.Validate, logger *zap.Logger) *StockService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockService{repo: repo, validator: validate, logger: logger}
}

// CreateItem registers an item; a non-zero opening quantity is logged as the
// first transaction so the ledger accounts for every unit.
func (s *StockService) CreateItem(ctx context.Context, req CreateStockItemRequest) (*models.StockItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid stock item payload")
	}
	item := &models.StockItem{
		Name:          req.Name,
		Description:   req.Description,
		UnitOfMeasure: req.UnitOfMeasure,
		ReorderLevel:  req.ReorderLevel,
	}
	if err := s.repo.CreateItem(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create stock item")
	}
	if req.OpeningQuantity > 0 {
		txn := &models.StockTransaction{ItemID: item.ID, QuantityChanged: req.OpeningQuantity, Reason: "opening balance"}
		newQty, err := s.repo.Adjust(ctx, txn)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record opening balance")
		}
		item.QuantityOnHand = newQty
	}
	return item, nil
}

// GetItem returns one item.
func (s *StockService) GetItem(ctx context.Context, id string) (*models.StockItem, error) {
	item, err := s.repo.FindItemByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "stock item not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stock item")
	}
	return item, nil
}

// ListItems returns all items.
func (s *StockService) ListItems(ctx context.Context) ([]models.StockItem, error) {
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list stock items")
	}
	return items, nil
}

// ListLowItems returns items at or below their reorder level.
func (s *StockService) ListLowItems(ctx context.Context) ([]models.StockItem, error) {
	items, err := s.repo.ListLowItems(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list low stock items")
	}
	return items, nil
}

// UpdateItem updates descriptive fields.
func (s *StockService) UpdateItem(ctx context.Context, id string, req UpdateStockItemRequest) (*models.StockItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid stock item payload")
	}
	item, err := s.repo.FindItemByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "stock item not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stock item")
	}
	item.Name = req.Name
	item.Description = req.Description
	item.UnitOfMeasure = req.UnitOfMeasure
	item.ReorderLevel = req.ReorderLevel
	if err := s.repo.UpdateItem(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update stock item")
	}
	return item, nil
}

// Adjust applies a quantity delta and logs it, atomically. A delta that
// would drive the quantity negative is rejected before any write.
func (s *StockService) Adjust(ctx context.Context, itemID string, req AdjustStockRequest) (*models.StockItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid adjustment payload")
	}
	item, err := s.repo.FindItemByID(ctx, itemID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "stock item not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stock item")
	}
	if item.QuantityOnHand+req.QuantityChanged < 0 {
		return nil, appErrors.Clone(appErrors.ErrInsufficientStock, "adjustment would drive stock quantity negative")
	}
	txn := &models.StockTransaction{ItemID: itemID, QuantityChanged: req.QuantityChanged, Reason: req.Reason, UserID: req.UserID}
	newQty, err := s.repo.Adjust(ctx, txn)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to adjust stock")
	}
	item.QuantityOnHand = newQty
	if item.NeedsReorder() {
		s.logger.Warn("stock at or below reorder level",
			zap.String("item_id", item.ID),
			zap.String("name", item.Name),
			zap.Float64("quantity_on_hand", item.QuantityOnHand),
			zap.Float64("reorder_level", item.ReorderLevel))
	}
	return item, nil
}

// ListTransactions returns an item's transaction log.
func (s *StockService) ListTransactions(ctx context.Context, itemID string) ([]models.StockTransaction, error) {
	if _, err := s.repo.FindItemByID(ctx, itemID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "stock item not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stock item")
	}
	txns, err := s.repo.ListTransactions(ctx, itemID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list stock transactions")
	}
	return txns, nil
}
