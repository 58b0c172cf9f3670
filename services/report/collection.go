package report

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/edtools/edcore/core/payment"
)

const (
	ContentType     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	collectionSheet = "Collection"
)

var collectionHeadings = []string{"Student", "Grand Total", "Paid Amount", "Outstanding Amount"}

// WriteCollection writes the fee collection report as an XLSX workbook, with a totals row.
func WriteCollection(w io.Writer, rows []payment.CollectionRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", collectionSheet); err != nil {
		return errors.Wrap(err, "naming sheet")
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "creating style")
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return errors.Wrap(err, "creating style")
	}

	// headings
	for i, h := range collectionHeadings {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err = f.SetCellValue(collectionSheet, cell, h); err != nil {
			return err
		}
	}
	_ = f.SetCellStyle(collectionSheet, "A1", "D1", bold)

	// data
	for i, row := range rows {
		r := i + 2
		values := []interface{}{row.Student, row.GrandTotal.InexactFloat64(), row.Paid.InexactFloat64(), row.Outstanding.InexactFloat64()}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, r)
			if err = f.SetCellValue(collectionSheet, cell, v); err != nil {
				return err
			}
		}
	}

	// totals
	last := len(rows) + 1
	totalRow := last + 1
	_ = f.SetCellValue(collectionSheet, fmt.Sprintf("A%d", totalRow), "Total")
	for _, col := range []string{"B", "C", "D"} {
		formula := "0"
		if len(rows) > 0 {
			formula = fmt.Sprintf("SUM(%s2:%s%d)", col, col, last)
		}
		if err = f.SetCellFormula(collectionSheet, fmt.Sprintf("%s%d", col, totalRow), formula); err != nil {
			return err
		}
	}
	_ = f.SetCellStyle(collectionSheet, fmt.Sprintf("A%d", totalRow), fmt.Sprintf("D%d", totalRow), bold)
	_ = f.SetCellStyle(collectionSheet, "B2", fmt.Sprintf("D%d", totalRow), money)
	_ = f.SetColWidth(collectionSheet, "A", "D", 20)

	return f.Write(w)
}
