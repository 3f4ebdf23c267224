package batch

import (
	"strconv"
	"strings"
)

// DefaultChunkSize is the number of accepted records per file for FixedSize.
const DefaultChunkSize = 100

// Strategy names accepted by ParseStrategy and reported by Partitioner.Name.
const (
	StrategyFixed = "fixed"
	StrategyGroup = "group"
)

// Scope is a run of records sharing one deduplication scope.
type Scope struct {
	Key     string // group value; "" for FixedSize
	Records []Record
}

// Partitioner decides file boundaries for a run.
//
// The engine deduplicates each Scope independently, opens a file on the
// first accepted record, rotates when Rotate returns true and finalizes any
// open file when the scope ends.
type Partitioner interface {
	Name() string
	Scopes(records []Record) []Scope
	Rotate(accepted int) bool
	// FileName names the seq-th file of the run (1-based), without extension.
	FileName(scope Scope, seq int) string
}

// FixedSize returns a Partitioner that rotates every n accepted records and
// deduplicates across the whole run. n <= 0 selects DefaultChunkSize.
func FixedSize(n int) Partitioner {
	if n <= 0 {
		n = DefaultChunkSize
	}
	return fixedSize{n: n}
}

type fixedSize struct {
	n int
}

func (p fixedSize) Name() string { return StrategyFixed }

func (p fixedSize) Scopes(records []Record) []Scope {
	return []Scope{{Records: records}}
}

func (p fixedSize) Rotate(accepted int) bool {
	return accepted >= p.n
}

func (p fixedSize) FileName(_ Scope, seq int) string {
	return "output_" + strconv.Itoa(seq)
}

// GroupBy returns a Partitioner that writes one file per distinct value of
// column col and deduplicates within each group only. Records whose group
// value is blank are dropped.
func GroupBy(col int) Partitioner {
	return groupBy{col: col}
}

type groupBy struct {
	col int
}

func (p groupBy) Name() string { return StrategyGroup }

// Scopes returns one scope per distinct group value, in order of first
// appearance, each holding its records in input order.
func (p groupBy) Scopes(records []Record) []Scope {
	index := make(map[string]int)
	var scopes []Scope
	for _, rec := range records {
		key := rec.Key(p.col)
		if key == "" {
			continue
		}
		i, ok := index[key]
		if !ok {
			i = len(scopes)
			index[key] = i
			scopes = append(scopes, Scope{Key: key})
		}
		scopes[i].Records = append(scopes[i].Records, rec)
	}
	return scopes
}

func (p groupBy) Rotate(int) bool { return false }

func (p groupBy) FileName(scope Scope, _ int) string {
	return SanitizeFileName(scope.Key)
}

// ParseStrategy builds a Partitioner from a strategy name.
func ParseStrategy(name string, chunkSize, groupCol int) (Partitioner, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", StrategyFixed:
		return FixedSize(chunkSize), true
	case StrategyGroup:
		if groupCol <= 0 {
			return nil, false
		}
		return GroupBy(groupCol), true
	default:
		return nil, false
	}
}

// SanitizeFileName replaces characters that are unsafe in archive entry and
// workbook names.
func SanitizeFileName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r < 0x20, strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	out := strings.Trim(b.String(), ". ")
	if out == "" {
		return "_"
	}
	return out
}
