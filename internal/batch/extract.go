package batch

// Extractor turns a Record into ExtractedValues following a FieldMapping.
// Columns in the normalize set pass through Normalize; every other value,
// null included, is copied unchanged.
type Extractor struct {
	cols      []int
	normalize map[int]bool
}

// NewExtractor creates an Extractor for m. normalize lists the 1-based source
// columns whose values are cleaned.
func NewExtractor(m *FieldMapping, normalize []int) *Extractor {
	set := make(map[int]bool, len(normalize))
	for _, c := range normalize {
		set[c] = true
	}
	return &Extractor{
		cols:      m.SourceColumns(),
		normalize: set,
	}
}

// Extract reads the mapped columns of rec in canonical source order.
func (e *Extractor) Extract(rec Record) ExtractedValues {
	out := make(ExtractedValues, len(e.cols))
	for i, col := range e.cols {
		v := rec.Cell(col)
		if e.normalize[col] {
			v = Normalize(v)
		}
		out[i] = v
	}
	return out
}

// Normalize strips every rune that is not an ASCII letter or digit.
// Null stays null; a non-null result is always a string.
func Normalize(v Value) Value {
	if v.IsNull() {
		return v
	}
	return StringValue(cleanString(v.Raw))
}

func cleanString(s string) string {
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b = append(b, c)
		}
	}
	return string(b)
}
