package recorder

import (
	"encoding/csv"
	"fmt"
	"os"

	"edgecounter/internal/model"
)

// CSV rewrites the whole file on every append.
type CSV struct {
	path   string
	schema Schema
}

// NewCSV creates a CSV recorder writing to path.
func NewCSV(path string, schema Schema) *CSV {
	return &CSV{path: path, schema: schema}
}

func (c *CSV) EnsureSchema() (bool, error) {
	ok, err := exists(c.path)
	if err != nil || ok {
		return false, err
	}
	if err := c.write([][]string{c.schema.Header()}); err != nil {
		return false, err
	}
	return true, nil
}

func (c *CSV) Append(rec model.FusedRecord) error {
	rows, err := c.read()
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		rows = append(rows, c.schema.Header())
	}
	return c.write(append(rows, rec.Row()))
}

func (c *CSV) Close() error { return nil }

func (c *CSV) read() ([][]string, error) {
	f, err := os.Open(c.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", c.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", c.path, err)
	}
	return rows, nil
}

func (c *CSV) write(rows [][]string) error {
	return replaceFile(c.path, ".csv", func(tmp string) error {
		f, err := os.Create(tmp)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", tmp, err)
		}

		w := csv.NewWriter(f)
		if err := w.WriteAll(rows); err != nil {
			f.Close()
			return fmt.Errorf("failed to write %s: %w", tmp, err)
		}
		return f.Close()
	})
}
