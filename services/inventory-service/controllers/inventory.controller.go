package controllers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/NOVASWAY/Seth2.0-sub005/services/inventory-service/models"
	"github.com/NOVASWAY/Seth2.0-sub005/services/inventory-service/utils"
	"github.com/NOVASWAY/Seth2.0-sub005/shared/logger"
	"github.com/NOVASWAY/Seth2.0-sub005/shared/security"
)

type InventoryController struct {
	store *models.InventoryStore
	log   zerolog.Logger
}

func NewInventoryController(store *models.InventoryStore) *InventoryController {
	return &InventoryController{store: store, log: logger.WithComponent("inventory")}
}

type listItemsQuery struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	Limit    int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Search   string `form:"search" binding:"omitempty,max=100"`
	Category string `form:"category" binding:"omitempty,max=100"`
}

func (ic *InventoryController) ListItems(c *gin.Context) {
	var query listItemsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		security.SendBindingError(c, err)
		return
	}
	if query.Page == 0 {
		query.Page = 1
	}
	if query.Limit == 0 {
		query.Limit = 20
	}

	items, total, err := ic.store.ListItems(c.Request.Context(), models.ItemFilter{
		Page:     query.Page,
		Limit:    query.Limit,
		Search:   query.Search,
		Category: query.Category,
	})
	if err != nil {
		ic.fail(c, "list items", err)
		return
	}

	security.SendSuccess(c, http.StatusOK, gin.H{
		"items": items,
		"pagination": gin.H{
			"page":        query.Page,
			"limit":       query.Limit,
			"total":       total,
			"total_pages": (total + query.Limit - 1) / query.Limit,
		},
	}, "")
}

func (ic *InventoryController) GetItem(c *gin.Context) {
	id, ok := security.ParamUUID(c, "id")
	if !ok {
		return
	}

	item, err := ic.store.GetItem(c.Request.Context(), id)
	if err != nil {
		ic.fail(c, "get item", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, item, "")
}

func (ic *InventoryController) CreateItem(c *gin.Context) {
	var input models.CreateItemInput
	if err := c.ShouldBindJSON(&input); err != nil {
		security.SendBindingError(c, err)
		return
	}

	item, err := ic.store.CreateItem(c.Request.Context(), input)
	if err != nil {
		ic.fail(c, "create item", err)
		return
	}

	ic.log.Info().Str("item_id", item.ID).Str("user_id", security.UserID(c)).Msg("Inventory item created")
	security.SendSuccess(c, http.StatusCreated, item, "Inventory item created successfully")
}

func (ic *InventoryController) UpdateItem(c *gin.Context) {
	id, ok := security.ParamUUID(c, "id")
	if !ok {
		return
	}
	var input models.UpdateItemInput
	if err := c.ShouldBindJSON(&input); err != nil {
		security.SendBindingError(c, err)
		return
	}

	item, err := ic.store.UpdateItem(c.Request.Context(), id, input)
	if err != nil {
		ic.fail(c, "update item", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, item, "Inventory item updated successfully")
}

func (ic *InventoryController) ListBatches(c *gin.Context) {
	id, ok := security.ParamUUID(c, "id")
	if !ok {
		return
	}

	batches, err := ic.store.ListBatches(c.Request.Context(), id)
	if err != nil {
		ic.fail(c, "list batches", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, batches, "")
}

func (ic *InventoryController) CreateBatch(c *gin.Context) {
	var input models.CreateBatchInput
	if err := c.ShouldBindJSON(&input); err != nil {
		security.SendBindingError(c, err)
		return
	}
	var priceErrs []security.FieldError
	if input.UnitCost.IsNegative() {
		priceErrs = append(priceErrs, security.FieldError{Field: "unit_cost", Message: "must not be negative"})
	}
	if input.SellingPrice.IsNegative() {
		priceErrs = append(priceErrs, security.FieldError{Field: "selling_price", Message: "must not be negative"})
	}
	if len(priceErrs) > 0 {
		security.SendValidationError(c, "Invalid input data", priceErrs)
		return
	}

	batch, err := ic.store.CreateBatch(c.Request.Context(), input, security.UserID(c))
	if err != nil {
		ic.fail(c, "create batch", err)
		return
	}

	ic.log.Info().
		Str("batch_id", batch.ID).
		Str("item_id", batch.InventoryItemID).
		Int("quantity", batch.Quantity).
		Msg("Batch received")
	security.SendSuccess(c, http.StatusCreated, batch, "Batch created successfully")
}

func (ic *InventoryController) Dispense(c *gin.Context) {
	var input models.DispenseInput
	if err := c.ShouldBindJSON(&input); err != nil {
		security.SendBindingError(c, err)
		return
	}

	batch, err := ic.store.DispenseFromBatch(c.Request.Context(), input.BatchID, input.Quantity, security.UserID(c), input.Reference)
	if err != nil {
		ic.fail(c, "dispense", err)
		return
	}

	ic.log.Info().
		Str("batch_id", batch.ID).
		Int("quantity", input.Quantity).
		Int("remaining", batch.Quantity).
		Msg("Dispensed from batch")
	security.SendSuccess(c, http.StatusOK, batch, "Dispensed successfully")
}

func (ic *InventoryController) AdjustBatch(c *gin.Context) {
	id, ok := security.ParamUUID(c, "id")
	if !ok {
		return
	}
	var input models.AdjustBatchInput
	if err := c.ShouldBindJSON(&input); err != nil {
		security.SendBindingError(c, err)
		return
	}

	batch, err := ic.store.AdjustBatch(c.Request.Context(), id, input.Delta, input.Reason, security.UserID(c))
	if err != nil {
		ic.fail(c, "adjust batch", err)
		return
	}

	ic.log.Info().Str("batch_id", id).Int("delta", input.Delta).Str("reason", input.Reason).Msg("Batch adjusted")
	security.SendSuccess(c, http.StatusOK, batch, "Batch adjusted successfully")
}

func (ic *InventoryController) ExpireBatch(c *gin.Context) {
	id, ok := security.ParamUUID(c, "id")
	if !ok {
		return
	}

	batch, err := ic.store.ExpireBatch(c.Request.Context(), id, security.UserID(c))
	if err != nil {
		ic.fail(c, "expire batch", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, batch, "Batch marked as expired")
}

func (ic *InventoryController) ReconcileBatch(c *gin.Context) {
	id, ok := security.ParamUUID(c, "id")
	if !ok {
		return
	}

	rec, err := ic.store.ReconcileBatch(c.Request.Context(), id)
	if err != nil {
		ic.fail(c, "reconcile batch", err)
		return
	}
	if !rec.Balanced {
		ic.log.Warn().
			Str("batch_id", id).
			Int("quantity", rec.Quantity).
			Int("ledger_quantity", rec.LedgerQuantity).
			Msg("Batch quantity does not match its movement ledger")
	}
	security.SendSuccess(c, http.StatusOK, rec, "")
}

type listMovementsQuery struct {
	ItemID       string `form:"item_id" binding:"omitempty,uuid"`
	BatchID      string `form:"batch_id" binding:"omitempty,uuid"`
	MovementType string `form:"movement_type" binding:"omitempty,oneof=RECEIVE DISPENSE ADJUST EXPIRE TRANSFER"`
	Limit        int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

func (ic *InventoryController) ListMovements(c *gin.Context) {
	var query listMovementsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		security.SendBindingError(c, err)
		return
	}
	if query.Limit == 0 {
		query.Limit = 100
	}

	movements, err := ic.store.ListMovements(c.Request.Context(), models.MovementFilter{
		ItemID:       query.ItemID,
		BatchID:      query.BatchID,
		MovementType: query.MovementType,
		Limit:        query.Limit,
	})
	if err != nil {
		ic.fail(c, "list movements", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, movements, "")
}

func (ic *InventoryController) GetStockLevels(c *gin.Context) {
	levels, err := ic.store.GetStockLevels(c.Request.Context())
	if err != nil {
		ic.fail(c, "stock levels", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, levels, "")
}

func (ic *InventoryController) ExportStockLevels(c *gin.Context) {
	levels, err := ic.store.GetStockLevels(c.Request.Context())
	if err != nil {
		ic.fail(c, "stock levels", err)
		return
	}

	var buf bytes.Buffer
	if err := utils.WriteStockLevelsXLSX(&buf, levels); err != nil {
		ic.fail(c, "export stock levels", err)
		return
	}

	filename := fmt.Sprintf("stock-levels-%s.xlsx", time.Now().Format("20060102"))
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

type expiringQuery struct {
	Days int `form:"days" binding:"omitempty,min=1,max=365"`
}

func (ic *InventoryController) GetExpiringBatches(c *gin.Context) {
	var query expiringQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		security.SendBindingError(c, err)
		return
	}
	if query.Days == 0 {
		query.Days = 30
	}

	batches, err := ic.store.GetExpiringBatches(c.Request.Context(), query.Days)
	if err != nil {
		ic.fail(c, "expiring batches", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, batches, "")
}

type availableStockQuery struct {
	Search   string `form:"search" binding:"omitempty,max=100"`
	Category string `form:"category" binding:"omitempty,max=100"`
}

func (ic *InventoryController) GetAvailableStock(c *gin.Context) {
	var query availableStockQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		security.SendBindingError(c, err)
		return
	}

	stock, err := ic.store.GetAvailableStock(c.Request.Context(), query.Search, query.Category)
	if err != nil {
		ic.fail(c, "available stock", err)
		return
	}
	security.SendSuccess(c, http.StatusOK, stock, "")
}

// fail maps store errors onto the response envelope.
func (ic *InventoryController) fail(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, models.ErrBatchNotFound):
		security.SendNotFoundError(c, "batch")
	case errors.Is(err, models.ErrNotFound):
		security.SendNotFoundError(c, "inventory item")
	case errors.Is(err, models.ErrDuplicateBatch):
		security.SendConflictError(c, "Batch number already exists for this item")
	case errors.Is(err, models.ErrInsufficientStock):
		security.SendBusinessError(c, "Insufficient stock in batch")
	case errors.Is(err, models.ErrBatchExpired):
		security.SendBusinessError(c, "Batch has expired")
	case errors.Is(err, models.ErrItemInactive):
		security.SendBusinessError(c, "Inventory item is inactive")
	case errors.Is(err, models.ErrInvalidAdjustment),
		errors.Is(err, models.ErrInvalidQuantity),
		errors.Is(err, models.ErrInvalidPrice):
		security.SendBusinessError(c, err.Error())
	default:
		ic.log.Error().Err(err).Str("op", op).Msg("Inventory operation failed")
		security.SendDatabaseError(c, "Failed to "+op)
		return
	}
	ic.log.Warn().Err(err).Str("op", op).Msg("Inventory request rejected")
}
