package batch

import "strings"

// ValueKind is the scalar type of a cell value.
type ValueKind int

const (
	KindString ValueKind = iota
	KindNumber
	KindBool
)

func (k ValueKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "string"
	}
}

// Value is a nullable scalar read from or written to a sheet cell.
// Raw holds the unformatted cell text; numbers keep their stored
// representation so they round-trip without precision loss.
type Value struct {
	Raw   string
	Kind  ValueKind
	Valid bool
}

// Null returns an absent value.
func Null() Value { return Value{} }

// StringValue returns a non-null string value.
func StringValue(s string) Value {
	return Value{Raw: s, Kind: KindString, Valid: true}
}

// NumberValue returns a non-null numeric value from its textual form.
func NumberValue(raw string) Value {
	return Value{Raw: raw, Kind: KindNumber, Valid: true}
}

// BoolValue returns a non-null boolean value.
func BoolValue(b bool) Value {
	if b {
		return Value{Raw: "TRUE", Kind: KindBool, Valid: true}
	}
	return Value{Raw: "FALSE", Kind: KindBool, Valid: true}
}

// IsNull reports whether the value is absent.
func (v Value) IsNull() bool { return !v.Valid }

// String returns Raw, or "" for null values.
func (v Value) String() string {
	if !v.Valid {
		return ""
	}
	return v.Raw
}

// Record is one input row, addressable by 1-based column position.
// Records are never modified after they are read.
type Record struct {
	Line  int // 1-based line in the source sheet, header included
	Cells []Value
}

// Cell returns the value at 1-based column position col.
// Positions past the end of the row read as null.
func (r Record) Cell(col int) Value {
	if col < 1 || col > len(r.Cells) {
		return Null()
	}
	return r.Cells[col-1]
}

// Key returns the trimmed text of column col for deduplication and grouping.
// A null cell yields "".
func (r Record) Key(col int) string {
	return strings.TrimSpace(r.Cell(col).String())
}

// ExtractedValues is the flat tuple produced for one record, in canonical
// source order.
type ExtractedValues []Value
