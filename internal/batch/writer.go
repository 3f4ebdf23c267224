package batch

import "fmt"

// Document is one open output workbook derived from the template.
// Columns and rows are 1-based. A style of 0 means the cell carries no
// style information.
type Document interface {
	CellStyle(col, row int) (int, error)
	SetStyle(col, row, style int) error
	SetValue(col, row int, v Value) error
	// Bytes serializes the document.
	Bytes() ([]byte, error)
	Close() error
}

// TemplateSource opens a fresh Document from the template. Documents
// returned by successive calls never share mutations.
type TemplateSource interface {
	Open() (Document, error)
}

// TemplateWriter writes ExtractedValues into the destination columns of a
// Document row while keeping each cell's template style.
type TemplateWriter struct {
	cols []int
}

// NewTemplateWriter creates a writer for m.
func NewTemplateWriter(m *FieldMapping) *TemplateWriter {
	return &TemplateWriter{cols: m.DestColumns()}
}

// Write stores values into row of doc. values must be in canonical source
// order; the mapping guarantees it lines up with the destination order.
func (w *TemplateWriter) Write(doc Document, row int, values ExtractedValues) error {
	if len(values) != len(w.cols) {
		return fmt.Errorf("write row %d: got %d values for %d destination columns", row, len(values), len(w.cols))
	}

	for i, col := range w.cols {
		style, err := doc.CellStyle(col, row)
		if err != nil {
			return fmt.Errorf("read style %s%d: %w", ColumnName(col), row, err)
		}
		if err := doc.SetValue(col, row, values[i]); err != nil {
			return fmt.Errorf("write %s%d: %w", ColumnName(col), row, err)
		}
		// Style is per cell; neighbouring columns may differ.
		if style != 0 {
			if err := doc.SetStyle(col, row, style); err != nil {
				return fmt.Errorf("copy style %s%d: %w", ColumnName(col), row, err)
			}
		}
	}
	return nil
}
