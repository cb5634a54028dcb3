package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

var registerHeaders = []string{"ID", "Date", "Party", "Status", "Currency", "Subtotal", "Discount", "Tax", "Charges", "Grand Total"}

// RegisterXLSX writes rows to a single-sheet workbook with a header row and
// a totals row. Amount cells stay numeric.
func RegisterXLSX(title string, rows []RegisterRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := title
	if len(sheet) > 31 {
		sheet = sheet[:31]
	}
	if sheet == "" {
		sheet = "Register"
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, fmt.Errorf("set sheet name: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#333333"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	moneyFmt := "#,##0.00"
	moneyStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &moneyFmt})
	if err != nil {
		return nil, fmt.Errorf("create money style: %w", err)
	}
	totalStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}, CustomNumFmt: &moneyFmt})
	if err != nil {
		return nil, fmt.Errorf("create total style: %w", err)
	}

	for i, h := range registerHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}
	if err := f.SetCellStyle(sheet, "A1", "J1", headerStyle); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}
	for col, width := range map[string]float64{"A": 14, "B": 12, "C": 32, "D": 12, "E": 9} {
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return nil, fmt.Errorf("set col width %s: %w", col, err)
		}
	}
	if err := f.SetColWidth(sheet, "F", "J", 14); err != nil {
		return nil, fmt.Errorf("set amount widths: %w", err)
	}

	var sum [5]float64
	for i, r := range rows {
		n := i + 2
		amounts := []float64{r.Totals.Subtotal, r.Totals.TotalDiscount, r.Totals.TotalTax, r.Totals.AdditionalCharges, r.Totals.GrandTotal}
		values := []any{sanitizeCell(r.ID), dateText(r.Date), sanitizeCell(r.Party), r.Status, r.Currency}
		for _, a := range amounts {
			values = append(values, a)
		}
		for j := range sum {
			sum[j] += amounts[j]
		}
		cell, _ := excelize.CoordinatesToCellName(1, n)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", n, err)
		}
		if err := f.SetCellStyle(sheet, fmt.Sprintf("F%d", n), fmt.Sprintf("J%d", n), moneyStyle); err != nil {
			return nil, fmt.Errorf("style row %d: %w", n, err)
		}
	}

	last := len(rows) + 2
	if err := f.SetCellValue(sheet, fmt.Sprintf("E%d", last), "Total"); err != nil {
		return nil, err
	}
	for j, v := range sum {
		cell, _ := excelize.CoordinatesToCellName(6+j, last)
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return nil, err
		}
	}
	if err := f.SetCellStyle(sheet, fmt.Sprintf("E%d", last), fmt.Sprintf("J%d", last), totalStyle); err != nil {
		return nil, fmt.Errorf("style totals: %w", err)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write register: %w", err)
	}
	return buf.Bytes(), nil
}

// sanitizeCell keeps spreadsheet apps from treating user text as a formula.
func sanitizeCell(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@', '\t', '\r', '|':
		return "'" + s
	}
	return s
}
