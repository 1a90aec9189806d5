package reports

import (
	"io"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Sheet1"

type ExcelExporter interface {
	GetCellValues() []interface{}
}

func buildExcel(data []ExcelExporter, headings ...string) (*excelize.File, error) {
	f := excelize.NewFile()

	// Add headers
	for i, h := range headings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return nil, err
		}
	}

	// Add data
	for r, d := range data {
		for c, value := range d.GetCellValues() {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return nil, err
			}
		}
	}
	return f, nil
}

// WriteExcel writes the rows as a single-sheet workbook to w.
func WriteExcel(w io.Writer, data []ExcelExporter, headings ...string) error {
	f, err := buildExcel(data, headings...)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

// SaveExcel writes the rows as a single-sheet workbook to filename.
func SaveExcel(filename string, data []ExcelExporter, headings ...string) error {
	f, err := buildExcel(data, headings...)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.SaveAs(filename)
}
