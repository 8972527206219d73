package models

// MovementEffect returns the signed change a movement applies to its batch quantity.
func MovementEffect(movementType string, quantity int) int {
	switch movementType {
	case MovementReceive:
		return quantity
	case MovementAdjust:
		return quantity
	case MovementDispense, MovementExpire, MovementTransfer:
		return -quantity
	default:
		return 0
	}
}

// ReconcileMovements checks the conservation of stock for one batch:
// received quantity must equal the original quantity, and replaying every
// movement must land on the stored quantity.
func ReconcileMovements(batch InventoryBatch, movements []InventoryMovement) *BatchReconciliation {
	rec := &BatchReconciliation{
		BatchID:          batch.ID,
		OriginalQuantity: batch.OriginalQuantity,
		Quantity:         batch.Quantity,
		Totals:           map[string]int{},
	}

	for _, m := range movements {
		rec.Totals[m.MovementType] += m.Quantity
		rec.LedgerQuantity += MovementEffect(m.MovementType, m.Quantity)
		if m.MovementType == MovementReceive {
			rec.Received += m.Quantity
		}
	}

	rec.Balanced = rec.Received == batch.OriginalQuantity && rec.LedgerQuantity == batch.Quantity
	return rec
}
