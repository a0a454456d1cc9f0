package recorder

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"edgecounter/internal/model"
)

const sheetName = "Sheet1"

// XLSX keeps records in the first sheet of a workbook, loaded and saved on
// every append.
type XLSX struct {
	path   string
	schema Schema
}

// NewXLSX creates a spreadsheet recorder writing to path.
func NewXLSX(path string, schema Schema) *XLSX {
	return &XLSX{path: path, schema: schema}
}

func (x *XLSX) EnsureSchema() (bool, error) {
	ok, err := exists(x.path)
	if err != nil || ok {
		return false, err
	}

	f := excelize.NewFile()
	defer f.Close()

	header := toCells(x.schema.Header())
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return false, fmt.Errorf("failed to write header: %w", err)
	}
	if err := x.save(f); err != nil {
		return false, err
	}
	return true, nil
}

func (x *XLSX) Append(rec model.FusedRecord) error {
	ok, err := exists(x.path)
	if err != nil {
		return err
	}
	if !ok {
		if _, err := x.EnsureSchema(); err != nil {
			return err
		}
	}

	f, err := excelize.OpenFile(x.path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", x.path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", x.path, err)
	}

	cell, err := excelize.CoordinatesToCellName(1, len(rows)+1)
	if err != nil {
		return err
	}
	values := toCells(rec.Row())
	if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
		return fmt.Errorf("failed to append row: %w", err)
	}
	return x.save(f)
}

func (x *XLSX) Close() error { return nil }

func (x *XLSX) save(f *excelize.File) error {
	return replaceFile(x.path, ".xlsx", func(tmp string) error {
		if err := f.SaveAs(tmp); err != nil {
			return fmt.Errorf("failed to save %s: %w", tmp, err)
		}
		return nil
	})
}

func toCells(row []string) []interface{} {
	cells := make([]interface{}, len(row))
	for i, v := range row {
		cells[i] = v
	}
	return cells
}
