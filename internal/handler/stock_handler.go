package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ims-api/internal/service"
	appErrors "github.com/noah-isme/ims-api/pkg/errors"
	"github.com/noah-isme/ims-api/pkg/response"
)

// StockHandler exposes inventory endpoints.
type StockHandler struct {
	stock *service.StockService
}

// NewStockHandler constructs StockHandler.
func NewStockHandler(stock *service.StockService) *StockHandler {
	return &StockHandler{stock: stock}
}

// List godoc
// @Summary List stock items
// @Tags Stock
// @Produce json
// @Param low query bool false "Only items at or below reorder level"
// @Success 200 {object} response.Envelope
// @Router /stock/items [get]
func (h *StockHandler) List(c *gin.Context) {
	var err error
	var items interface{}
	if c.Query("low") == "true" {
		items, err = h.stock.ListLowItems(c.Request.Context())
	} else {
		items, err = h.stock.ListItems(c.Request.Context())
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get stock item
// @Tags Stock
// @Produce json
// @Param id path string true "Item ID"
// @Success 200 {object} response.Envelope
// @Router /stock/items/{id} [get]
func (h *StockHandler) Get(c *gin.Context) {
	item, err := h.stock.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Create godoc
// @Summary Create stock item
// @Tags Stock
// @Accept json
// @Produce json
// @Param payload body service.CreateStockItemRequest true "Item payload"
// @Success 201 {object} response.Envelope
// @Router /stock/items [post]
func (h *StockHandler) Create(c *gin.Context) {
	var req service.CreateStockItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	item, err := h.stock.CreateItem(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Update godoc
// @Summary Update stock item metadata
// @Tags Stock
// @Accept json
// @Produce json
// @Param id path string true "Item ID"
// @Param payload body service.UpdateStockItemRequest true "Item payload"
// @Success 200 {object} response.Envelope
// @Router /stock/items/{id} [put]
func (h *StockHandler) Update(c *gin.Context) {
	var req service.UpdateStockItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	item, err := h.stock.UpdateItem(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Adjust godoc
// @Summary Adjust stock quantity
// @Tags Stock
// @Accept json
// @Produce json
// @Param id path string true "Item ID"
// @Param payload body service.AdjustStockRequest true "Adjustment payload"
// @Success 200 {object} response.Envelope
// @Router /stock/items/{id}/adjust [post]
func (h *StockHandler) Adjust(c *gin.Context) {
	var req service.AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if claims := claimsFromContext(c); claims != nil {
		req.UserID = &claims.UserID
	}
	item, err := h.stock.Adjust(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Transactions godoc
// @Summary List stock transactions for an item
// @Tags Stock
// @Produce json
// @Param id path string true "Item ID"
// @Success 200 {object} response.Envelope
// @Router /stock/items/{id}/transactions [get]
func (h *StockHandler) Transactions(c *gin.Context) {
	txns, err := h.stock.ListTransactions(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, txns, nil)
}
