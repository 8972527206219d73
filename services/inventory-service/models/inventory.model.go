package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("inventory item not found")
	ErrItemInactive      = errors.New("inventory item is inactive")
	ErrBatchNotFound     = errors.New("batch not found")
	ErrInsufficientStock = errors.New("insufficient stock in batch")
	ErrBatchExpired      = errors.New("batch has expired")
	ErrDuplicateBatch    = errors.New("batch number already exists for this item")
	ErrInvalidAdjustment = errors.New("adjustment would take batch quantity outside 0..original quantity")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrInvalidPrice      = errors.New("unit cost and selling price must not be negative")
)

// Movement types recorded in inventory_movements.
const (
	MovementReceive  = "RECEIVE"
	MovementDispense = "DISPENSE"
	MovementAdjust   = "ADJUST"
	MovementExpire   = "EXPIRE"
	MovementTransfer = "TRANSFER"
)

type InventoryItem struct {
	ID            string    `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	GenericName   *string   `json:"generic_name" db:"generic_name"`
	Category      string    `json:"category" db:"category"`
	Unit          string    `json:"unit" db:"unit"`
	Description   *string   `json:"description" db:"description"`
	ReorderLevel  int       `json:"reorder_level" db:"reorder_level"`
	MaxStockLevel int       `json:"max_stock_level" db:"max_stock_level"`
	IsActive      bool      `json:"is_active" db:"is_active"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

type InventoryBatch struct {
	ID               string          `json:"id" db:"id"`
	InventoryItemID  string          `json:"inventory_item_id" db:"inventory_item_id"`
	BatchNumber      string          `json:"batch_number" db:"batch_number"`
	Quantity         int             `json:"quantity" db:"quantity"`
	OriginalQuantity int             `json:"original_quantity" db:"original_quantity"`
	UnitCost         decimal.Decimal `json:"unit_cost" db:"unit_cost"`
	SellingPrice     decimal.Decimal `json:"selling_price" db:"selling_price"`
	ExpiryDate       time.Time       `json:"expiry_date" db:"expiry_date"`
	Supplier         *string         `json:"supplier" db:"supplier"`
	ReceivedBy       *string         `json:"received_by" db:"received_by"`
	ReceivedAt       time.Time       `json:"received_at" db:"received_at"`
	IsExpired        bool            `json:"is_expired" db:"is_expired"`
}

// ExpiredAt reports whether the batch can no longer be dispensed on the given day.
func (b InventoryBatch) ExpiredAt(now time.Time) bool {
	if b.IsExpired {
		return true
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	expiry := time.Date(b.ExpiryDate.Year(), b.ExpiryDate.Month(), b.ExpiryDate.Day(), 0, 0, 0, 0, time.UTC)
	return expiry.Before(today)
}

// InventoryMovement is an append-only ledger row. Quantity is a magnitude for
// every type except ADJUST, which stores the signed delta.
type InventoryMovement struct {
	ID              string              `json:"id" db:"id"`
	InventoryItemID string              `json:"inventory_item_id" db:"inventory_item_id"`
	BatchID         *string             `json:"batch_id" db:"batch_id"`
	MovementType    string              `json:"movement_type" db:"movement_type"`
	Quantity        int                 `json:"quantity" db:"quantity"`
	UnitCost        decimal.NullDecimal `json:"unit_cost" db:"unit_cost"`
	Reference       *string             `json:"reference" db:"reference"`
	Notes           *string             `json:"notes" db:"notes"`
	PerformedBy     *string             `json:"performed_by" db:"performed_by"`
	PerformedAt     time.Time           `json:"performed_at" db:"performed_at"`
}

type StockLevel struct {
	ID              string `json:"id" db:"id"`
	Name            string `json:"name" db:"name"`
	Category        string `json:"category" db:"category"`
	Unit            string `json:"unit" db:"unit"`
	TotalQuantity   int    `json:"total_quantity" db:"total_quantity"`
	ReorderLevel    int    `json:"reorder_level" db:"reorder_level"`
	MaxStockLevel   int    `json:"max_stock_level" db:"max_stock_level"`
	NeedsReorder    bool   `json:"needs_reorder" db:"needs_reorder"`
	ExpiringBatches int    `json:"expiring_batches" db:"expiring_batches"`
}

type ExpiringBatch struct {
	ID           string    `json:"id" db:"id"`
	ItemID       string    `json:"item_id" db:"item_id"`
	ItemName     string    `json:"item_name" db:"item_name"`
	BatchNumber  string    `json:"batch_number" db:"batch_number"`
	Quantity     int       `json:"quantity" db:"quantity"`
	ExpiryDate   time.Time `json:"expiry_date" db:"expiry_date"`
	DaysToExpiry int       `json:"days_to_expiry" db:"days_to_expiry"`
}

type AvailableStock struct {
	ID                string              `json:"id" db:"id"`
	Name              string              `json:"name" db:"name"`
	GenericName       *string             `json:"generic_name" db:"generic_name"`
	Category          string              `json:"category" db:"category"`
	Unit              string              `json:"unit" db:"unit"`
	AvailableQuantity int                 `json:"available_quantity" db:"available_quantity"`
	SellingPrice      decimal.NullDecimal `json:"selling_price" db:"selling_price"`
	HasExpiringStock  bool                `json:"has_expiring_stock" db:"has_expiring_stock"`
}

// BatchReconciliation compares a batch's stored quantity with its movement history.
type BatchReconciliation struct {
	BatchID          string         `json:"batch_id"`
	OriginalQuantity int            `json:"original_quantity"`
	Quantity         int            `json:"quantity"`
	LedgerQuantity   int            `json:"ledger_quantity"`
	Received         int            `json:"received"`
	Totals           map[string]int `json:"totals"`
	Balanced         bool           `json:"balanced"`
}

type ItemFilter struct {
	Page     int
	Limit    int
	Search   string
	Category string
}

type MovementFilter struct {
	ItemID       string
	BatchID      string
	MovementType string
	Limit        int
}

type CreateItemInput struct {
	Name          string  `json:"name" binding:"required,min=1,max=200"`
	GenericName   *string `json:"generic_name" binding:"omitempty,max=200"`
	Category      string  `json:"category" binding:"required,min=1,max=100"`
	Unit          string  `json:"unit" binding:"required,min=1,max=50"`
	Description   *string `json:"description"`
	ReorderLevel  *int    `json:"reorder_level" binding:"omitempty,gte=0"`
	MaxStockLevel *int    `json:"max_stock_level" binding:"omitempty,gte=0"`
}

type UpdateItemInput struct {
	Name          *string `json:"name" binding:"omitempty,min=1,max=200"`
	GenericName   *string `json:"generic_name" binding:"omitempty,max=200"`
	Category      *string `json:"category" binding:"omitempty,min=1,max=100"`
	Unit          *string `json:"unit" binding:"omitempty,min=1,max=50"`
	Description   *string `json:"description"`
	ReorderLevel  *int    `json:"reorder_level" binding:"omitempty,gte=0"`
	MaxStockLevel *int    `json:"max_stock_level" binding:"omitempty,gte=0"`
	IsActive      *bool   `json:"is_active"`
}

type CreateBatchInput struct {
	InventoryItemID string           `json:"inventory_item_id" binding:"required,uuid"`
	BatchNumber     string           `json:"batch_number" binding:"required,min=1,max=100"`
	Quantity        int              `json:"quantity" binding:"required,gt=0"`
	UnitCost        *decimal.Decimal `json:"unit_cost" binding:"required"`
	SellingPrice    *decimal.Decimal `json:"selling_price" binding:"required"`
	ExpiryDate      string           `json:"expiry_date" binding:"required,datetime=2006-01-02"`
	Supplier        *string          `json:"supplier" binding:"omitempty,max=200"`
}

type DispenseInput struct {
	BatchID   string  `json:"batch_id" binding:"required,uuid"`
	Quantity  int     `json:"quantity" binding:"required,gt=0"`
	Reference *string `json:"reference" binding:"omitempty,max=200"`
}

type AdjustBatchInput struct {
	Delta  int    `json:"delta" binding:"required"`
	Reason string `json:"reason" binding:"required,min=3,max=500"`
}
