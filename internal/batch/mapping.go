package batch

import (
	"errors"
	"fmt"
)

// MappingPair maps one source column range onto one destination range of
// equal width.
type MappingPair struct {
	Source ColumnRange
	Dest   ColumnRange
}

// PairSpec is the textual form of a MappingPair, as found in configuration.
type PairSpec struct {
	Source string `yaml:"source" json:"source"`
	Dest   string `yaml:"dest" json:"dest"`
}

// FieldMapping is an immutable, validated column mapping.
//
// Values are extracted in the canonical source order and written in the
// pairs' declaration order. NewFieldMapping rejects any configuration where
// the two differ, so value i always lands in destination column i.
type FieldMapping struct {
	pairs      []MappingPair
	order      []ColumnRange
	sourceCols []int
	destCols   []int
}

// DefaultPairs is the mapping used when no mapping file is configured.
var DefaultPairs = []PairSpec{
	{Source: "B:E", Dest: "B:E"},
	{Source: "F:I", Dest: "G:J"},
	{Source: "J:R", Dest: "L:T"},
	{Source: "S", Dest: "AC"},
	{Source: "T:W", Dest: "AE:AH"},
	{Source: "AD", Dest: "AK"},
}

// DefaultSourceOrder is the canonical extraction order for DefaultPairs.
var DefaultSourceOrder = []string{"B:E", "F:I", "J:R", "S", "T:W", "AD"}

// DefaultMapping returns the built-in mapping.
func DefaultMapping() *FieldMapping {
	m, err := ParseMapping(DefaultPairs, DefaultSourceOrder)
	if err != nil {
		panic(fmt.Sprintf("default mapping: %v", err))
	}
	return m
}

// ParseMapping parses textual pairs and source order into a FieldMapping.
// An empty order defaults to the pairs' declaration order.
func ParseMapping(specs []PairSpec, order []string) (*FieldMapping, error) {
	pairs := make([]MappingPair, 0, len(specs))
	for _, spec := range specs {
		src, err := ParseRange(spec.Source)
		if err != nil {
			return nil, fmt.Errorf("mapping source: %w", err)
		}
		dst, err := ParseRange(spec.Dest)
		if err != nil {
			return nil, fmt.Errorf("mapping destination: %w", err)
		}
		pairs = append(pairs, MappingPair{Source: src, Dest: dst})
	}

	var ranges []ColumnRange
	if len(order) > 0 {
		ranges = make([]ColumnRange, 0, len(order))
		for _, tok := range order {
			r, err := ParseRange(tok)
			if err != nil {
				return nil, fmt.Errorf("source order: %w", err)
			}
			ranges = append(ranges, r)
		}
	}

	return NewFieldMapping(pairs, ranges)
}

// NewFieldMapping validates pairs against the canonical source order and
// precomputes the flat source and destination column positions.
// A nil order defaults to the pairs' declaration order.
func NewFieldMapping(pairs []MappingPair, order []ColumnRange) (*FieldMapping, error) {
	if len(pairs) == 0 {
		return nil, errors.New("mapping has no pairs")
	}

	for _, p := range pairs {
		if p.Source.Width() != p.Dest.Width() {
			return nil, &MappingWidthMismatchError{
				Source:     p.Source.String(),
				Dest:       p.Dest.String(),
				SourceCols: p.Source.Width(),
				DestCols:   p.Dest.Width(),
			}
		}
	}

	if order == nil {
		order = make([]ColumnRange, len(pairs))
		for i, p := range pairs {
			order[i] = p.Source
		}
	}
	if err := checkOrder(pairs, order); err != nil {
		return nil, err
	}

	m := &FieldMapping{
		pairs: append([]MappingPair(nil), pairs...),
		order: append([]ColumnRange(nil), order...),
	}
	for _, r := range m.order {
		m.sourceCols = append(m.sourceCols, r.Positions()...)
	}
	for _, p := range m.pairs {
		m.destCols = append(m.destCols, p.Dest.Positions()...)
	}
	return m, nil
}

func checkOrder(pairs []MappingPair, order []ColumnRange) error {
	n := len(pairs)
	if len(order) > n {
		n = len(order)
	}
	for i := 0; i < n; i++ {
		var declared, listed string
		if i < len(pairs) {
			declared = pairs[i].Source.String()
		}
		if i < len(order) {
			listed = order[i].String()
		}
		if declared != listed {
			return &MappingOrderError{Index: i, Declared: declared, Order: listed}
		}
	}
	return nil
}

// Pairs returns a copy of the mapping pairs in declaration order.
func (m *FieldMapping) Pairs() []MappingPair {
	return append([]MappingPair(nil), m.pairs...)
}

// SourceOrder returns a copy of the canonical source order.
func (m *FieldMapping) SourceOrder() []ColumnRange {
	return append([]ColumnRange(nil), m.order...)
}

// SourceColumns returns the flat source positions in extraction order.
func (m *FieldMapping) SourceColumns() []int {
	return append([]int(nil), m.sourceCols...)
}

// DestColumns returns the flat destination positions in write order.
func (m *FieldMapping) DestColumns() []int {
	return append([]int(nil), m.destCols...)
}

// Width returns the number of values produced per record.
func (m *FieldMapping) Width() int {
	return len(m.sourceCols)
}

// HasSource reports whether col is read by any source range.
func (m *FieldMapping) HasSource(col int) bool {
	for _, c := range m.sourceCols {
		if c == col {
			return true
		}
	}
	return false
}

// Specs renders the mapping back into its textual form.
func (m *FieldMapping) Specs() ([]PairSpec, []string) {
	specs := make([]PairSpec, len(m.pairs))
	for i, p := range m.pairs {
		specs[i] = PairSpec{Source: p.Source.String(), Dest: p.Dest.String()}
	}
	order := make([]string, len(m.order))
	for i, r := range m.order {
		order[i] = r.String()
	}
	return specs, order
}
