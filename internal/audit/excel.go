// Package audit exports portal data to spreadsheets.
package audit

import (
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// maxSheetName is the Excel limit for sheet names.
const maxSheetName = 31

var errNoSheet = errors.New("no active sheet")

// SheetWriter writes rows into named sheets.
type SheetWriter interface {
	AddSheet(name string) error
	WriteHeader(columns []string) error
	WriteRow(row []any) error
	Save(w io.Writer) error
	SaveToFile(path string) error
	Close() error
}

// ExcelizeWriter implements SheetWriter with excelize.
type ExcelizeWriter struct {
	file   *excelize.File
	sheet  string
	row    int
	widths map[int]int
}

func NewExcelizeWriter() SheetWriter {
	return &ExcelizeWriter{file: excelize.NewFile()}
}

// AddSheet starts a sheet. The first call renames the default sheet.
func (w *ExcelizeWriter) AddSheet(name string) error {
	if r := []rune(name); len(r) > maxSheetName {
		name = string(r[:maxSheetName])
	}
	if w.sheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet: %w", err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	w.sheet = name
	w.row = 1
	w.widths = make(map[int]int)
	return nil
}

// WriteHeader writes a bold header row and freezes it.
func (w *ExcelizeWriter) WriteHeader(columns []string) error {
	row := make([]any, len(columns))
	for i, c := range columns {
		row[i] = c
	}
	if err := w.WriteRow(row); err != nil {
		return err
	}

	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		first, _ := excelize.CoordinatesToCellName(1, w.row-1)
		last, _ := excelize.CoordinatesToCellName(len(columns), w.row-1)
		_ = w.file.SetCellStyle(w.sheet, first, last, style)
	}
	return w.file.SetPanes(w.sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// WriteRow writes values into the next row.
func (w *ExcelizeWriter) WriteRow(row []any) error {
	if w.sheet == "" {
		return errNoSheet
	}
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(w.sheet, cell, &row); err != nil {
		return fmt.Errorf("write row %d: %w", w.row, err)
	}
	for i, v := range row {
		if n := len([]rune(fmt.Sprint(v))); n > w.widths[i] {
			w.widths[i] = n
		}
	}
	w.row++
	return nil
}

func (w *ExcelizeWriter) fitColumns() {
	for i, n := range w.widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			continue
		}
		width := float64(n) + 2
		if width > 60 {
			width = 60
		}
		_ = w.file.SetColWidth(w.sheet, col, col, width)
	}
}

func (w *ExcelizeWriter) Save(out io.Writer) error {
	w.fitColumns()
	return w.file.Write(out)
}

func (w *ExcelizeWriter) SaveToFile(path string) error {
	w.fitColumns()
	return w.file.SaveAs(path)
}

func (w *ExcelizeWriter) Close() error {
	return w.file.Close()
}
