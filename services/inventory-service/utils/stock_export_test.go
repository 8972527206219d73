package utils

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/NOVASWAY/Seth2.0-sub005/services/inventory-service/models"
)

func TestWriteStockLevelsXLSX(t *testing.T) {
	levels := []models.StockLevel{
		{Name: "Amoxicillin 500mg", Category: "Antibiotics", Unit: "capsule", TotalQuantity: 40, ReorderLevel: 50, MaxStockLevel: 1000, NeedsReorder: true, ExpiringBatches: 1},
		{Name: "Paracetamol 500mg", Category: "Analgesics", Unit: "tablet", TotalQuantity: 900, ReorderLevel: 100, MaxStockLevel: 2000},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteStockLevelsXLSX(&buf, levels))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(StockLevelsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "Item", rows[0][0])
	assert.Equal(t, []string{"Amoxicillin 500mg", "Antibiotics", "capsule", "40", "50", "1000", "Yes", "1"}, rows[1])
	assert.Equal(t, "No", rows[2][6])
}
