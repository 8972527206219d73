package utils

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/NOVASWAY/Seth2.0-sub005/services/inventory-service/models"
)

const StockLevelsSheet = "Stock Levels"

var stockLevelHeadings = []string{
	"Item", "Category", "Unit", "Total Quantity", "Reorder Level", "Max Stock Level", "Needs Reorder", "Expiring Batches",
}

// WriteStockLevelsXLSX renders stock levels as a single-sheet workbook.
func WriteStockLevelsXLSX(w io.Writer, levels []models.StockLevel) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", StockLevelsSheet); err != nil {
		return err
	}

	for col, heading := range stockLevelHeadings {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(StockLevelsSheet, cell, heading); err != nil {
			return err
		}
	}

	for i, level := range levels {
		row := i + 2
		values := []interface{}{
			level.Name,
			level.Category,
			level.Unit,
			level.TotalQuantity,
			level.ReorderLevel,
			level.MaxStockLevel,
			yesNo(level.NeedsReorder),
			level.ExpiringBatches,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(StockLevelsSheet, cell, v); err != nil {
				return fmt.Errorf("write %s: %w", cell, err)
			}
		}
	}

	return f.Write(w)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
