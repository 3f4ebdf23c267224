package batch

// colrange.go resolves spreadsheet column tokens ("S", "B:E", "AE:AH") into
// 1-based column positions using the bijective base-26 rule
// (A=1 ... Z=26, AA=27, ...).

import (
	"strings"
)

// MaxColumn is the last column addressable in an xlsx sheet (XFD).
const MaxColumn = 16384

// ColumnRange is a single column or a closed interval of columns.
// Start and End are 1-based and Start <= End.
type ColumnRange struct {
	Start int
	End   int
}

// ParseRange parses a token of the form "X" or "X:Y".
// Letters are case-insensitive.
func ParseRange(token string) (ColumnRange, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return ColumnRange{}, &InvalidRangeError{Token: token, Reason: "empty token"}
	}

	parts := strings.Split(trimmed, ":")
	switch len(parts) {
	case 1:
		n, err := columnNumber(token, parts[0])
		if err != nil {
			return ColumnRange{}, err
		}
		return ColumnRange{Start: n, End: n}, nil

	case 2:
		start, err := columnNumber(token, parts[0])
		if err != nil {
			return ColumnRange{}, err
		}
		end, err := columnNumber(token, parts[1])
		if err != nil {
			return ColumnRange{}, err
		}
		if start > end {
			return ColumnRange{}, &InvalidRangeError{Token: token, Reason: "start column is after end column"}
		}
		return ColumnRange{Start: start, End: end}, nil

	default:
		return ColumnRange{}, &InvalidRangeError{Token: token, Reason: "more than one ':' separator"}
	}
}

// Resolve returns the ordered column positions for token.
func Resolve(token string) ([]int, error) {
	r, err := ParseRange(token)
	if err != nil {
		return nil, err
	}
	return r.Positions(), nil
}

// Positions returns every column from Start to End inclusive, ascending.
func (r ColumnRange) Positions() []int {
	if r.Start <= 0 || r.End < r.Start {
		return nil
	}
	out := make([]int, 0, r.Width())
	for c := r.Start; c <= r.End; c++ {
		out = append(out, c)
	}
	return out
}

// Width returns the number of columns in the range.
func (r ColumnRange) Width() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// String renders the range back in letter form ("B:E" or "S").
func (r ColumnRange) String() string {
	if r.Start == r.End {
		return ColumnName(r.Start)
	}
	return ColumnName(r.Start) + ":" + ColumnName(r.End)
}

// MarshalText implements encoding.TextMarshaler.
func (r ColumnRange) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *ColumnRange) UnmarshalText(b []byte) error {
	parsed, err := ParseRange(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ColumnNumber converts column letters to a 1-based position.
func ColumnNumber(letters string) (int, error) {
	return columnNumber(letters, strings.TrimSpace(letters))
}

// columnNumber reports any byte outside A-Z, including inner whitespace
// such as "B : E", as invalid.
func columnNumber(token, letters string) (int, error) {
	if letters == "" {
		return 0, &InvalidRangeError{Token: token, Reason: "missing column letters"}
	}

	n := 0
	for _, ch := range letters {
		switch {
		case ch >= 'A' && ch <= 'Z':
			n = n*26 + int(ch-'A'+1)
		case ch >= 'a' && ch <= 'z':
			n = n*26 + int(ch-'a'+1)
		default:
			return 0, &InvalidRangeError{Token: token, Reason: "column letters must be A-Z"}
		}
		if n > MaxColumn {
			return 0, &InvalidRangeError{Token: token, Reason: "column beyond XFD"}
		}
	}
	return n, nil
}

// ColumnName converts a 1-based position to column letters.
// Returns "" for positions < 1.
func ColumnName(n int) string {
	if n < 1 {
		return ""
	}
	var b [16]byte
	i := len(b)
	for n > 0 {
		n--
		i--
		b[i] = byte('A' + n%26)
		n /= 26
	}
	return string(b[i:])
}
