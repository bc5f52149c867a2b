package pipeline

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/xuri/excelize/v2"

	"ordena/internal"
)

// ExportDraftToXLSX renders a draft's lines, verification state and
// totals to a workbook for the review step.
func ExportDraftToXLSX(draft internal.DraftOrder, outputPath string) error {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	headers := []string{
		"product_id", "product_name", "sale_unit", "quantity",
		"unit_price", "subtotal", "requires_verification", "verified",
		"verified_weight_kg", "verified_units",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	ids := make([]int, 0, len(draft.Lines))
	for id := range draft.Lines {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	r := 1
	for _, id := range ids {
		line := draft.Lines[id]
		r++
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		set(1, line.ProductID)
		set(2, line.ProductName)
		set(3, line.SaleUnit)
		set(4, line.Quantity)
		set(5, line.UnitPrice.String())
		set(6, line.Subtotal.String())
		set(7, line.RequiresVerification)
		set(8, line.Verified)
		set(9, derefFloat(line.VerifiedWeight))
		set(10, derefFloat(line.VerifiedUnits))
	}

	r += 2
	for i, pair := range [][2]string{
		{"net_total", draft.Totals.Net.String()},
		{"tax_total", draft.Totals.Tax.String()},
		{"grand_total", draft.Totals.Grand.String()},
	} {
		nameCell, _ := excelize.CoordinatesToCellName(1, r+i)
		valueCell, _ := excelize.CoordinatesToCellName(2, r+i)
		_ = f.SetCellValue(sheet, nameCell, pair[0])
		_ = f.SetCellValue(sheet, valueCell, pair[1])
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func derefFloat(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}
