package batch

// Deduplicator tracks identifiers seen within one scope.
// Not safe for concurrent use; a run owns its Deduplicator.
type Deduplicator struct {
	seen map[string]struct{}
}

// NewDeduplicator returns an empty Deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{seen: make(map[string]struct{})}
}

// Accept reports whether key is new in the current scope and records it.
// Every later call with the same key returns false.
func (d *Deduplicator) Accept(key string) bool {
	if _, ok := d.seen[key]; ok {
		return false
	}
	d.seen[key] = struct{}{}
	return true
}

// Reset starts a new scope.
func (d *Deduplicator) Reset() {
	clear(d.seen)
}

// Len returns the number of distinct keys accepted in the current scope.
func (d *Deduplicator) Len() int {
	return len(d.seen)
}
