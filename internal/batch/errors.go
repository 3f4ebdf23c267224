package batch

import (
	"errors"
	"fmt"
)

// ErrEmptyFile is returned when a finalized output file has no accepted records.
var ErrEmptyFile = errors.New("empty file: output file has no records")

// InvalidRangeError reports a malformed column-range token.
// It indicates a configuration bug and is fatal at startup.
type InvalidRangeError struct {
	Token  string
	Reason string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range %q: %s", e.Token, e.Reason)
}

// MappingWidthMismatchError reports a mapping pair whose source and
// destination ranges resolve to a different number of columns.
type MappingWidthMismatchError struct {
	Source     string
	Dest       string
	SourceCols int
	DestCols   int
}

func (e *MappingWidthMismatchError) Error() string {
	return fmt.Sprintf("mapping width mismatch: source %s has %d columns, destination %s has %d",
		e.Source, e.SourceCols, e.Dest, e.DestCols)
}

// MappingOrderError reports a canonical source order that does not enumerate
// the mapping's source ranges in declaration order. Extraction follows the
// canonical order and writing follows the declaration order, so any
// divergence shifts values into the wrong destination columns.
type MappingOrderError struct {
	Index    int
	Declared string
	Order    string
}

func (e *MappingOrderError) Error() string {
	if e.Order == "" {
		return fmt.Sprintf("mapping order mismatch at position %d: declared source %s missing from source order", e.Index, e.Declared)
	}
	if e.Declared == "" {
		return fmt.Sprintf("mapping order mismatch at position %d: source order lists %s which no mapping declares", e.Index, e.Order)
	}
	return fmt.Sprintf("mapping order mismatch at position %d: mapping declares %s, source order lists %s",
		e.Index, e.Declared, e.Order)
}

// InputReadError reports that the input workbook could not be parsed into rows.
type InputReadError struct {
	File string
	Err  error
}

func (e *InputReadError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("input read error: %v", e.Err)
	}
	return fmt.Sprintf("input read error: %s: %v", e.File, e.Err)
}

func (e *InputReadError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is caused by an invalid mapping or range
// configuration rather than by the input data.
func IsConfigError(err error) bool {
	var rangeErr *InvalidRangeError
	var widthErr *MappingWidthMismatchError
	var orderErr *MappingOrderError
	return errors.As(err, &rangeErr) || errors.As(err, &widthErr) || errors.As(err, &orderErr)
}
