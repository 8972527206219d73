package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/NOVASWAY/Seth2.0-sub005/shared/database"
)

const itemColumns = `id, name, generic_name, category, unit, description, reorder_level,
	max_stock_level, is_active, created_at, updated_at`

const batchColumns = `id, inventory_item_id, batch_number, quantity, original_quantity, unit_cost,
	selling_price, expiry_date, supplier, received_by, received_at, is_expired`

const movementColumns = `id, inventory_item_id, batch_id, movement_type, quantity, unit_cost,
	reference, notes, performed_by, performed_at`

// InventoryStore owns every read and write against the inventory tables.
type InventoryStore struct {
	db               *sqlx.DB
	expiryWindowDays int
	now              func() time.Time
}

func NewInventoryStore(db *sqlx.DB, expiryWindowDays int) *InventoryStore {
	if expiryWindowDays <= 0 {
		expiryWindowDays = 30
	}
	return &InventoryStore{db: db, expiryWindowDays: expiryWindowDays, now: time.Now}
}

func (s *InventoryStore) ListItems(ctx context.Context, filter ItemFilter) ([]InventoryItem, int, error) {
	where := " WHERE is_active = true"
	args := []interface{}{}
	argIndex := 1

	if filter.Search != "" {
		where += fmt.Sprintf(" AND (name ILIKE $%d OR generic_name ILIKE $%d OR category ILIKE $%d)", argIndex, argIndex, argIndex)
		args = append(args, "%"+filter.Search+"%")
		argIndex++
	}
	if filter.Category != "" {
		where += fmt.Sprintf(" AND category = $%d", argIndex)
		args = append(args, filter.Category)
		argIndex++
	}

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM inventory_items"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count items: %w", err)
	}

	query := "SELECT " + itemColumns + " FROM inventory_items" + where +
		fmt.Sprintf(" ORDER BY name ASC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)

	items := []InventoryItem{}
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list items: %w", err)
	}
	return items, total, nil
}

func (s *InventoryStore) GetItem(ctx context.Context, id string) (*InventoryItem, error) {
	var item InventoryItem
	err := s.db.GetContext(ctx, &item, "SELECT "+itemColumns+" FROM inventory_items WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return &item, nil
}

func (s *InventoryStore) CreateItem(ctx context.Context, input CreateItemInput) (*InventoryItem, error) {
	reorderLevel, maxStockLevel := 0, 1000
	if input.ReorderLevel != nil {
		reorderLevel = *input.ReorderLevel
	}
	if input.MaxStockLevel != nil {
		maxStockLevel = *input.MaxStockLevel
	}

	var item InventoryItem
	err := s.db.GetContext(ctx, &item, `
		INSERT INTO inventory_items (id, name, generic_name, category, unit, description, reorder_level, max_stock_level)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+itemColumns,
		uuid.NewString(), input.Name, input.GenericName, input.Category, input.Unit, input.Description,
		reorderLevel, maxStockLevel)
	if err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}
	return &item, nil
}

// UpdateItem applies the non-nil fields. Setting is_active=false is the only way to remove an item.
func (s *InventoryStore) UpdateItem(ctx context.Context, id string, input UpdateItemInput) (*InventoryItem, error) {
	sets := []string{}
	args := []interface{}{}
	argIndex := 1

	add := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argIndex))
		args = append(args, value)
		argIndex++
	}
	if input.Name != nil {
		add("name", *input.Name)
	}
	if input.GenericName != nil {
		add("generic_name", *input.GenericName)
	}
	if input.Category != nil {
		add("category", *input.Category)
	}
	if input.Unit != nil {
		add("unit", *input.Unit)
	}
	if input.Description != nil {
		add("description", *input.Description)
	}
	if input.ReorderLevel != nil {
		add("reorder_level", *input.ReorderLevel)
	}
	if input.MaxStockLevel != nil {
		add("max_stock_level", *input.MaxStockLevel)
	}
	if input.IsActive != nil {
		add("is_active", *input.IsActive)
	}

	if len(sets) == 0 {
		return s.GetItem(ctx, id)
	}

	query := "UPDATE inventory_items SET " + strings.Join(sets, ", ") +
		fmt.Sprintf(", updated_at = NOW() WHERE id = $%d RETURNING ", argIndex) + itemColumns
	args = append(args, id)

	var item InventoryItem
	err := s.db.GetContext(ctx, &item, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	return &item, nil
}

// CreateBatch receives a new lot and records its RECEIVE movement in the same transaction.
func (s *InventoryStore) CreateBatch(ctx context.Context, input CreateBatchInput, receivedBy string) (*InventoryBatch, error) {
	if input.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	expiry, err := time.Parse("2006-01-02", input.ExpiryDate)
	if err != nil {
		return nil, fmt.Errorf("parse expiry date: %w", err)
	}
	unitCost, sellingPrice := decimal.Zero, decimal.Zero
	if input.UnitCost != nil {
		unitCost = *input.UnitCost
	}
	if input.SellingPrice != nil {
		sellingPrice = *input.SellingPrice
	}
	if unitCost.IsNegative() || sellingPrice.IsNegative() {
		return nil, ErrInvalidPrice
	}

	var batch InventoryBatch
	err = database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var active bool
		err := tx.GetContext(ctx, &active, `SELECT is_active FROM inventory_items WHERE id = $1`, input.InventoryItemID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load item: %w", err)
		}
		if !active {
			return ErrItemInactive
		}

		err = tx.GetContext(ctx, &batch, `
			INSERT INTO inventory_batches (id, inventory_item_id, batch_number, quantity, original_quantity,
				unit_cost, selling_price, expiry_date, supplier, received_by)
			VALUES ($1, $2, $3, $4, $4, $5, $6, $7, $8, $9)
			RETURNING `+batchColumns,
			uuid.NewString(), input.InventoryItemID, input.BatchNumber, input.Quantity,
			unitCost, sellingPrice, expiry, input.Supplier, database.NullString(receivedBy))
		if database.IsUniqueViolation(err) {
			return ErrDuplicateBatch
		}
		if err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}

		return insertMovement(ctx, tx, InventoryMovement{
			InventoryItemID: batch.InventoryItemID,
			BatchID:         &batch.ID,
			MovementType:    MovementReceive,
			Quantity:        batch.OriginalQuantity,
			UnitCost:        decimal.NewNullDecimal(batch.UnitCost),
			Reference:       &batch.BatchNumber,
			PerformedBy:     database.NullString(receivedBy),
		})
	})
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (s *InventoryStore) ListBatches(ctx context.Context, itemID string) ([]InventoryBatch, error) {
	batches := []InventoryBatch{}
	err := s.db.SelectContext(ctx, &batches, `
		SELECT `+batchColumns+`
		FROM inventory_batches
		WHERE inventory_item_id = $1 AND quantity > 0
		ORDER BY expiry_date ASC`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return batches, nil
}

// DispenseFromBatch removes quantity from a batch under a row lock. Either the
// full quantity is dispensed and a DISPENSE movement written, or nothing changes.
func (s *InventoryStore) DispenseFromBatch(ctx context.Context, batchID string, quantity int, performedBy string, reference *string) (*InventoryBatch, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	var batch InventoryBatch
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := lockBatch(ctx, tx, batchID, &batch); err != nil {
			return err
		}
		if batch.Quantity < quantity {
			return ErrInsufficientStock
		}
		if batch.ExpiredAt(s.now()) {
			return ErrBatchExpired
		}

		if err := tx.GetContext(ctx, &batch, `
			UPDATE inventory_batches SET quantity = quantity - $1
			WHERE id = $2
			RETURNING `+batchColumns, quantity, batchID); err != nil {
			return fmt.Errorf("update batch quantity: %w", err)
		}

		return insertMovement(ctx, tx, InventoryMovement{
			InventoryItemID: batch.InventoryItemID,
			BatchID:         &batch.ID,
			MovementType:    MovementDispense,
			Quantity:        quantity,
			UnitCost:        decimal.NewNullDecimal(batch.SellingPrice),
			Reference:       reference,
			PerformedBy:     database.NullString(performedBy),
		})
	})
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// AdjustBatch applies a signed stock correction, keeping 0 <= quantity <= original_quantity.
func (s *InventoryStore) AdjustBatch(ctx context.Context, batchID string, delta int, reason, performedBy string) (*InventoryBatch, error) {
	if delta == 0 {
		return nil, ErrInvalidAdjustment
	}

	var batch InventoryBatch
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := lockBatch(ctx, tx, batchID, &batch); err != nil {
			return err
		}
		next := batch.Quantity + delta
		if next < 0 || next > batch.OriginalQuantity {
			return ErrInvalidAdjustment
		}

		if err := tx.GetContext(ctx, &batch, `
			UPDATE inventory_batches SET quantity = $1
			WHERE id = $2
			RETURNING `+batchColumns, next, batchID); err != nil {
			return fmt.Errorf("update batch quantity: %w", err)
		}

		return insertMovement(ctx, tx, InventoryMovement{
			InventoryItemID: batch.InventoryItemID,
			BatchID:         &batch.ID,
			MovementType:    MovementAdjust,
			Quantity:        delta,
			UnitCost:        decimal.NewNullDecimal(batch.UnitCost),
			Notes:           &reason,
			PerformedBy:     database.NullString(performedBy),
		})
	})
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// ExpireBatch writes off whatever remains in a batch and marks it expired.
func (s *InventoryStore) ExpireBatch(ctx context.Context, batchID, performedBy string) (*InventoryBatch, error) {
	var batch InventoryBatch
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := lockBatch(ctx, tx, batchID, &batch); err != nil {
			return err
		}
		remaining := batch.Quantity

		if err := tx.GetContext(ctx, &batch, `
			UPDATE inventory_batches SET quantity = 0, is_expired = true
			WHERE id = $1
			RETURNING `+batchColumns, batchID); err != nil {
			return fmt.Errorf("expire batch: %w", err)
		}
		if remaining == 0 {
			return nil
		}

		return insertMovement(ctx, tx, InventoryMovement{
			InventoryItemID: batch.InventoryItemID,
			BatchID:         &batch.ID,
			MovementType:    MovementExpire,
			Quantity:        remaining,
			UnitCost:        decimal.NewNullDecimal(batch.UnitCost),
			PerformedBy:     database.NullString(performedBy),
		})
	})
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// ReconcileBatch replays the movement ledger of a batch against its stored quantity.
func (s *InventoryStore) ReconcileBatch(ctx context.Context, batchID string) (*BatchReconciliation, error) {
	var batch InventoryBatch
	err := s.db.GetContext(ctx, &batch, "SELECT "+batchColumns+" FROM inventory_batches WHERE id = $1", batchID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}

	movements := []InventoryMovement{}
	if err := s.db.SelectContext(ctx, &movements, `
		SELECT `+movementColumns+`
		FROM inventory_movements
		WHERE batch_id = $1
		ORDER BY performed_at ASC`, batchID); err != nil {
		return nil, fmt.Errorf("list batch movements: %w", err)
	}

	return ReconcileMovements(batch, movements), nil
}

func (s *InventoryStore) ListMovements(ctx context.Context, filter MovementFilter) ([]InventoryMovement, error) {
	query := "SELECT " + movementColumns + " FROM inventory_movements WHERE 1=1"
	args := []interface{}{}
	argIndex := 1

	if filter.ItemID != "" {
		query += fmt.Sprintf(" AND inventory_item_id = $%d", argIndex)
		args = append(args, filter.ItemID)
		argIndex++
	}
	if filter.BatchID != "" {
		query += fmt.Sprintf(" AND batch_id = $%d", argIndex)
		args = append(args, filter.BatchID)
		argIndex++
	}
	if filter.MovementType != "" {
		query += fmt.Sprintf(" AND movement_type = $%d", argIndex)
		args = append(args, filter.MovementType)
		argIndex++
	}
	query += fmt.Sprintf(" ORDER BY performed_at DESC LIMIT $%d", argIndex)
	args = append(args, filter.Limit)

	movements := []InventoryMovement{}
	if err := s.db.SelectContext(ctx, &movements, query, args...); err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	return movements, nil
}

// GetStockLevels aggregates the remaining quantity per active item.
func (s *InventoryStore) GetStockLevels(ctx context.Context) ([]StockLevel, error) {
	levels := []StockLevel{}
	err := s.db.SelectContext(ctx, &levels, `
		SELECT
			i.id,
			i.name,
			i.category,
			i.unit,
			COALESCE(SUM(b.quantity), 0) AS total_quantity,
			i.reorder_level,
			i.max_stock_level,
			COALESCE(SUM(b.quantity), 0) <= i.reorder_level AS needs_reorder,
			COUNT(CASE WHEN b.expiry_date <= CURRENT_DATE + $1::int THEN 1 END) AS expiring_batches
		FROM inventory_items i
		LEFT JOIN inventory_batches b ON b.inventory_item_id = i.id AND b.quantity > 0
		WHERE i.is_active = true
		GROUP BY i.id, i.name, i.category, i.unit, i.reorder_level, i.max_stock_level
		ORDER BY needs_reorder DESC, i.name ASC`, s.expiryWindowDays)
	if err != nil {
		return nil, fmt.Errorf("stock levels: %w", err)
	}
	return levels, nil
}

// GetExpiringBatches lists non-empty batches whose expiry falls within days from today.
func (s *InventoryStore) GetExpiringBatches(ctx context.Context, days int) ([]ExpiringBatch, error) {
	batches := []ExpiringBatch{}
	err := s.db.SelectContext(ctx, &batches, `
		SELECT
			b.id,
			i.id AS item_id,
			i.name AS item_name,
			b.batch_number,
			b.quantity,
			b.expiry_date,
			(b.expiry_date - CURRENT_DATE) AS days_to_expiry
		FROM inventory_batches b
		JOIN inventory_items i ON i.id = b.inventory_item_id
		WHERE b.expiry_date <= CURRENT_DATE + $1::int
			AND b.quantity > 0
			AND i.is_active = true
		ORDER BY b.expiry_date ASC`, days)
	if err != nil {
		return nil, fmt.Errorf("expiring batches: %w", err)
	}
	return batches, nil
}

// GetAvailableStock counts only non-expired quantity and flags items with stock
// expiring inside the configured window.
func (s *InventoryStore) GetAvailableStock(ctx context.Context, search, category string) ([]AvailableStock, error) {
	query := `
		SELECT
			i.id,
			i.name,
			i.generic_name,
			i.category,
			i.unit,
			COALESCE(SUM(CASE WHEN b.expiry_date > CURRENT_DATE THEN b.quantity ELSE 0 END), 0) AS available_quantity,
			MIN(b.selling_price) FILTER (WHERE b.expiry_date > CURRENT_DATE) AS selling_price,
			COALESCE(BOOL_OR(b.expiry_date > CURRENT_DATE AND b.expiry_date <= CURRENT_DATE + $1::int), false) AS has_expiring_stock
		FROM inventory_items i
		LEFT JOIN inventory_batches b ON b.inventory_item_id = i.id AND b.quantity > 0 AND b.is_expired = false
		WHERE i.is_active = true`
	args := []interface{}{s.expiryWindowDays}
	argIndex := 2

	if search != "" {
		query += fmt.Sprintf(" AND (i.name ILIKE $%d OR i.generic_name ILIKE $%d)", argIndex, argIndex)
		args = append(args, "%"+search+"%")
		argIndex++
	}
	if category != "" {
		query += fmt.Sprintf(" AND i.category = $%d", argIndex)
		args = append(args, category)
	}
	query += `
		GROUP BY i.id, i.name, i.generic_name, i.category, i.unit
		HAVING COALESCE(SUM(CASE WHEN b.expiry_date > CURRENT_DATE THEN b.quantity ELSE 0 END), 0) > 0
		ORDER BY i.name ASC`

	stock := []AvailableStock{}
	if err := s.db.SelectContext(ctx, &stock, query, args...); err != nil {
		return nil, fmt.Errorf("available stock: %w", err)
	}
	return stock, nil
}

func lockBatch(ctx context.Context, tx *sqlx.Tx, batchID string, batch *InventoryBatch) error {
	err := tx.GetContext(ctx, batch, "SELECT "+batchColumns+" FROM inventory_batches WHERE id = $1 FOR UPDATE", batchID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrBatchNotFound
	}
	if err != nil {
		return fmt.Errorf("lock batch: %w", err)
	}
	return nil
}

func insertMovement(ctx context.Context, tx *sqlx.Tx, m InventoryMovement) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO inventory_movements (id, inventory_item_id, batch_id, movement_type, quantity,
			unit_cost, reference, notes, performed_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.NewString(), m.InventoryItemID, m.BatchID, m.MovementType, m.Quantity,
		m.UnitCost, m.Reference, m.Notes, m.PerformedBy)
	if err != nil {
		return fmt.Errorf("insert %s movement: %w", strings.ToLower(m.MovementType), err)
	}
	return nil
}
