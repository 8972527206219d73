package models

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testItemID  = "6f1c1c4e-0b6a-4d55-9a52-0d4b7b1f9a10"
	testBatchID = "0b5e8a55-5f3f-4b8f-8a3b-3d7f9f6f2c21"
	testUserID  = "e2a7f0b4-2f57-4a6b-9c55-8d13d6b2a7c3"
)

var fixedNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

var batchCols = []string{
	"id", "inventory_item_id", "batch_number", "quantity", "original_quantity", "unit_cost",
	"selling_price", "expiry_date", "supplier", "received_by", "received_at", "is_expired",
}

func newMockStore(t *testing.T) (*InventoryStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewInventoryStore(sqlx.NewDb(db, "postgres"), 30)
	store.now = func() time.Time { return fixedNow }
	return store, mock
}

func batchRow(quantity, original int, expiry time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(batchCols).AddRow(
		testBatchID, testItemID, "AMX-001", quantity, original, "12.50",
		"20.00", expiry, "MedSupplies Ltd", testUserID, fixedNow, false,
	)
}

func q(fragment string) string {
	return regexp.QuoteMeta(fragment)
}

func TestDispenseFromBatchSucceeds(t *testing.T) {
	store, mock := newMockStore(t)
	expiry := fixedNow.AddDate(1, 0, 0)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FROM inventory_batches WHERE id = $1 FOR UPDATE")).
		WithArgs(testBatchID).
		WillReturnRows(batchRow(10, 10, expiry))
	mock.ExpectQuery(q("UPDATE inventory_batches SET quantity = quantity - $1")).
		WithArgs(4, testBatchID).
		WillReturnRows(batchRow(6, 10, expiry))
	mock.ExpectExec(q("INSERT INTO inventory_movements")).
		WithArgs(sqlmock.AnyArg(), testItemID, testBatchID, MovementDispense, 4,
			"20", "RX-1", nil, testUserID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ref := "RX-1"
	batch, err := store.DispenseFromBatch(context.Background(), testBatchID, 4, testUserID, &ref)
	require.NoError(t, err)
	assert.Equal(t, 6, batch.Quantity)
	assert.Equal(t, 10, batch.OriginalQuantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispenseFromBatchInsufficientStockRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).
		WithArgs(testBatchID).
		WillReturnRows(batchRow(6, 10, fixedNow.AddDate(1, 0, 0)))
	mock.ExpectRollback()

	batch, err := store.DispenseFromBatch(context.Background(), testBatchID, 10, testUserID, nil)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, "insufficient stock in batch", err.Error())
	assert.Nil(t, batch)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispenseFromBatchNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).
		WithArgs(testBatchID).
		WillReturnRows(sqlmock.NewRows(batchCols))
	mock.ExpectRollback()

	_, err := store.DispenseFromBatch(context.Background(), testBatchID, 1, testUserID, nil)
	assert.ErrorIs(t, err, ErrBatchNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispenseFromExpiredBatchIsRefused(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).
		WithArgs(testBatchID).
		WillReturnRows(batchRow(10, 10, fixedNow.AddDate(0, 0, -1)))
	mock.ExpectRollback()

	_, err := store.DispenseFromBatch(context.Background(), testBatchID, 1, testUserID, nil)
	assert.ErrorIs(t, err, ErrBatchExpired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispenseRejectsNonPositiveQuantity(t *testing.T) {
	store, mock := newMockStore(t)

	_, err := store.DispenseFromBatch(context.Background(), testBatchID, 0, testUserID, nil)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func createBatchInput() CreateBatchInput {
	cost := decimal.RequireFromString("12.50")
	price := decimal.RequireFromString("20.00")
	return CreateBatchInput{
		InventoryItemID: testItemID,
		BatchNumber:     "AMX-001",
		Quantity:        10,
		UnitCost:        &cost,
		SellingPrice:    &price,
		ExpiryDate:      "2027-03-10",
	}
}

func TestCreateBatchRecordsReceiveMovementInSameTransaction(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT is_active FROM inventory_items")).
		WithArgs(testItemID).
		WillReturnRows(sqlmock.NewRows([]string{"is_active"}).AddRow(true))
	mock.ExpectQuery(q("INSERT INTO inventory_batches")).
		WillReturnRows(batchRow(10, 10, fixedNow.AddDate(1, 0, 0)))
	mock.ExpectExec(q("INSERT INTO inventory_movements")).
		WithArgs(sqlmock.AnyArg(), testItemID, testBatchID, MovementReceive, 10,
			"12.5", "AMX-001", nil, testUserID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	batch, err := store.CreateBatch(context.Background(), createBatchInput(), testUserID)
	require.NoError(t, err)
	assert.Equal(t, batch.OriginalQuantity, batch.Quantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBatchDuplicateNumber(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT is_active FROM inventory_items")).
		WithArgs(testItemID).
		WillReturnRows(sqlmock.NewRows([]string{"is_active"}).AddRow(true))
	mock.ExpectQuery(q("INSERT INTO inventory_batches")).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})
	mock.ExpectRollback()

	_, err := store.CreateBatch(context.Background(), createBatchInput(), testUserID)
	assert.ErrorIs(t, err, ErrDuplicateBatch)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBatchForInactiveItem(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT is_active FROM inventory_items")).
		WithArgs(testItemID).
		WillReturnRows(sqlmock.NewRows([]string{"is_active"}).AddRow(false))
	mock.ExpectRollback()

	_, err := store.CreateBatch(context.Background(), createBatchInput(), testUserID)
	assert.ErrorIs(t, err, ErrItemInactive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustBatchKeepsQuantityWithinBounds(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).
		WithArgs(testBatchID).
		WillReturnRows(batchRow(6, 10, fixedNow.AddDate(1, 0, 0)))
	mock.ExpectRollback()

	_, err := store.AdjustBatch(context.Background(), testBatchID, 5, "recount", testUserID)
	assert.ErrorIs(t, err, ErrInvalidAdjustment)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustBatchWritesSignedMovement(t *testing.T) {
	store, mock := newMockStore(t)
	expiry := fixedNow.AddDate(1, 0, 0)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).
		WithArgs(testBatchID).
		WillReturnRows(batchRow(6, 10, expiry))
	mock.ExpectQuery(q("UPDATE inventory_batches SET quantity = $1")).
		WithArgs(4, testBatchID).
		WillReturnRows(batchRow(4, 10, expiry))
	mock.ExpectExec(q("INSERT INTO inventory_movements")).
		WithArgs(sqlmock.AnyArg(), testItemID, testBatchID, MovementAdjust, -2,
			sqlmock.AnyArg(), nil, "broken vials", testUserID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	batch, err := store.AdjustBatch(context.Background(), testBatchID, -2, "broken vials", testUserID)
	require.NoError(t, err)
	assert.Equal(t, 4, batch.Quantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireBatchWritesOffRemainder(t *testing.T) {
	store, mock := newMockStore(t)
	expiry := fixedNow.AddDate(0, 0, -3)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).
		WithArgs(testBatchID).
		WillReturnRows(batchRow(3, 10, expiry))
	mock.ExpectQuery(q("SET quantity = 0, is_expired = true")).
		WithArgs(testBatchID).
		WillReturnRows(batchRow(0, 10, expiry))
	mock.ExpectExec(q("INSERT INTO inventory_movements")).
		WithArgs(sqlmock.AnyArg(), testItemID, testBatchID, MovementExpire, 3,
			sqlmock.AnyArg(), nil, nil, testUserID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	batch, err := store.ExpireBatch(context.Background(), testBatchID, testUserID)
	require.NoError(t, err)
	assert.Equal(t, 0, batch.Quantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileMovements(t *testing.T) {
	batch := InventoryBatch{ID: testBatchID, Quantity: 5, OriginalQuantity: 10}
	movements := []InventoryMovement{
		{MovementType: MovementReceive, Quantity: 10},
		{MovementType: MovementDispense, Quantity: 4},
		{MovementType: MovementAdjust, Quantity: 1},
		{MovementType: MovementDispense, Quantity: 2},
	}

	rec := ReconcileMovements(batch, movements)
	assert.True(t, rec.Balanced)
	assert.Equal(t, 5, rec.LedgerQuantity)
	assert.Equal(t, 6, rec.Totals[MovementDispense])

	batch.Quantity = 6
	assert.False(t, ReconcileMovements(batch, movements).Balanced)

	assert.False(t, ReconcileMovements(InventoryBatch{Quantity: 0, OriginalQuantity: 10}, nil).Balanced,
		"a batch without its RECEIVE movement is not balanced")
}

func TestMovementEffect(t *testing.T) {
	assert.Equal(t, 10, MovementEffect(MovementReceive, 10))
	assert.Equal(t, -4, MovementEffect(MovementDispense, 4))
	assert.Equal(t, -3, MovementEffect(MovementExpire, 3))
	assert.Equal(t, -2, MovementEffect(MovementTransfer, 2))
	assert.Equal(t, -1, MovementEffect(MovementAdjust, -1))
	assert.Equal(t, 0, MovementEffect("UNKNOWN", 7))
}

func TestBatchExpiredAt(t *testing.T) {
	b := InventoryBatch{ExpiryDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)}
	assert.False(t, b.ExpiredAt(fixedNow), "expires at end of its expiry day")
	assert.True(t, b.ExpiredAt(fixedNow.AddDate(0, 0, 1)))

	b.IsExpired = true
	assert.True(t, b.ExpiredAt(fixedNow.AddDate(-1, 0, 0)))
}
