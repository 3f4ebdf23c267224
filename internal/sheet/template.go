package sheet

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/rosterbatch/internal/batch"
)

// Template holds the output template bytes and opens a fresh workbook from
// them for every output file.
type Template struct {
	data []byte
}

// LoadTemplate reads the template workbook at path and checks that it opens.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	return NewTemplate(data)
}

// NewTemplate wraps template bytes, validating that they form a workbook.
func NewTemplate(data []byte) (*Template, error) {
	if len(data) == 0 {
		return nil, errors.New("template is empty")
	}
	t := &Template{data: append([]byte(nil), data...)}
	doc, err := t.open()
	if err != nil {
		return nil, err
	}
	if err := doc.Close(); err != nil {
		return nil, fmt.Errorf("close template: %w", err)
	}
	return t, nil
}

// Open implements batch.TemplateSource.
func (t *Template) Open() (batch.Document, error) {
	return t.open()
}

func (t *Template) open() (*Document, error) {
	f, err := excelize.OpenReader(bytes.NewReader(t.data))
	if err != nil {
		return nil, fmt.Errorf("open template: %w", err)
	}
	// Output goes to the active sheet, as the template author left it.
	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if sheet == "" {
		f.Close()
		return nil, errors.New("open template: no active sheet")
	}
	return &Document{f: f, sheet: sheet}, nil
}

// Document is an excelize workbook implementing batch.Document.
type Document struct {
	f     *excelize.File
	sheet string
}

// CellStyle returns the style ID of a cell, 0 when unstyled.
func (d *Document) CellStyle(col, row int) (int, error) {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return 0, err
	}
	return d.f.GetCellStyle(d.sheet, cell)
}

// SetStyle applies style ID to a cell. Style IDs index the workbook's shared
// style table, so reapplying an ID carries the identical font, border,
// fill, number format, protection and alignment.
func (d *Document) SetStyle(col, row, style int) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return d.f.SetCellStyle(d.sheet, cell, cell, style)
}

// SetValue writes v into a cell. Null clears the value.
func (d *Document) SetValue(col, row int, v batch.Value) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}

	if v.IsNull() {
		return d.f.SetCellDefault(d.sheet, cell, "")
	}
	switch v.Kind {
	case batch.KindNumber:
		n, err := strconv.ParseFloat(v.Raw, 64)
		if err != nil {
			return d.f.SetCellStr(d.sheet, cell, v.Raw)
		}
		return d.f.SetCellFloat(d.sheet, cell, n, -1, 64)
	case batch.KindBool:
		return d.f.SetCellBool(d.sheet, cell, v.Raw == "TRUE")
	default:
		return d.f.SetCellStr(d.sheet, cell, v.Raw)
	}
}

// Bytes serializes the workbook.
func (d *Document) Bytes() ([]byte, error) {
	buf, err := d.f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Close releases the workbook.
func (d *Document) Close() error {
	return d.f.Close()
}
