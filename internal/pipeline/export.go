package pipeline

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"notaflow/internal"
)

// BuildExportRows flattens a reconciled invoice into export rows, one per
// line, in OCR order.
func BuildExportRows(inv *internal.Invoice) []internal.ExportRow {
	rows := make([]internal.ExportRow, 0, len(inv.Lines))
	for i, line := range inv.Lines {
		row := internal.ExportRow{
			LineNo:            i + 1,
			RawName:           line.RawName,
			Name:              line.Name,
			Quantity:          line.Quantity,
			Unit:              line.Unit,
			Price:             line.Price,
			Amount:            line.Amount(),
			MatchScore:        line.MatchScore,
			MatchStatus:       string(line.Status),
			IsValid:           line.IsValid,
			ConversionApplied: line.ConversionApplied,
		}
		if line.ProductID != "" {
			id := line.ProductID
			row.ProductID = &id
		}
		if line.ConversionApplied {
			qty := line.OriginalQuantity
			unit := line.OriginalUnit
			row.OriginalQuantity = &qty
			row.OriginalUnit = &unit
		}
		rows = append(rows, row)
	}
	return rows
}

// ExportRowsToXLSX writes the ERP-ready line sheet.
func ExportRowsToXLSX(rows []internal.ExportRow, outputPath string) error {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	headers := []string{
		"line_no", "raw_name", "name", "quantity", "unit", "price", "amount",
		"product_id", "match_score", "match_status", "is_valid",
		"conversion_applied", "original_quantity", "original_unit",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, row := range rows {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		set(1, row.LineNo)
		set(2, row.RawName)
		set(3, row.Name)
		set(4, row.Quantity)
		set(5, row.Unit)
		set(6, row.Price)
		set(7, row.Amount)
		set(8, derefString(row.ProductID))
		set(9, row.MatchScore)
		set(10, row.MatchStatus)
		set(11, row.IsValid)
		set(12, row.ConversionApplied)
		set(13, derefFloat(row.OriginalQuantity))
		set(14, derefString(row.OriginalUnit))
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefFloat(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}
