// Package sheet adapts xlsx workbooks to the batch engine using excelize.
//
// Reader parses the first sheet of an uploaded workbook into batch.Records;
// Template opens a fresh in-memory copy of the output template for every
// output file.
package sheet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/rosterbatch/internal/batch"
)

// errNoDataRows marks a workbook with a header but nothing else.
var errNoDataRows = errors.New("no data rows")

// Reader parses uploaded workbooks. Row 1 of the first sheet is the header
// and is skipped. Empty cells read as null and fully empty rows are skipped.
type Reader struct {
	// HeaderRows is the number of leading rows to skip (default 1).
	HeaderRows int
}

// NewReader returns a Reader that skips a single header row.
func NewReader() *Reader {
	return &Reader{HeaderRows: 1}
}

// ReadRecords implements batch.RecordReader.
func (r *Reader) ReadRecords(ctx context.Context, in io.Reader) ([]batch.Record, error) {
	f, err := excelize.OpenReader(in)
	if err != nil {
		return nil, &batch.InputReadError{Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &batch.InputReadError{Err: errors.New("workbook has no sheets")}
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, &batch.InputReadError{File: sheet, Err: err}
	}

	skip := r.HeaderRows
	if skip <= 0 {
		skip = 1
	}

	var records []batch.Record
	for i, row := range rows {
		line := i + 1
		if line <= skip {
			continue
		}
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if isBlankRow(row) {
			continue
		}

		cells := make([]batch.Value, len(row))
		for j, raw := range row {
			v, err := readCell(f, sheet, j+1, line, raw)
			if err != nil {
				return nil, &batch.InputReadError{File: sheet, Err: fmt.Errorf("row %d: %w", line, err)}
			}
			cells[j] = v
		}
		records = append(records, batch.Record{Line: line, Cells: cells})
	}

	if len(records) == 0 {
		return nil, &batch.InputReadError{File: sheet, Err: errNoDataRows}
	}
	return records, nil
}

// readCell converts one raw cell to a typed value. Numbers stay numbers so
// they keep their template number format when written back.
func readCell(f *excelize.File, sheet string, col, row int, raw string) (batch.Value, error) {
	if raw == "" {
		return batch.Null(), nil
	}

	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return batch.Value{}, err
	}
	typ, err := f.GetCellType(sheet, cell)
	if err != nil {
		return batch.Value{}, err
	}

	switch typ {
	case excelize.CellTypeBool:
		return batch.BoolValue(raw == "1" || strings.EqualFold(raw, "true")), nil
	case excelize.CellTypeUnset, excelize.CellTypeNumber:
		// Cells without a type attribute are numeric in OOXML, including
		// formula cells with a numeric cached result.
		if _, err := strconv.ParseFloat(raw, 64); err == nil {
			return batch.NumberValue(raw), nil
		}
		return batch.StringValue(raw), nil
	default:
		return batch.StringValue(raw), nil
	}
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
