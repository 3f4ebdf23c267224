package history

import (
	"context"
	"fmt"
	"sync"

	"github.com/JonMunkholm/rosterbatch/internal/batch"
)

// DefaultListLimit is the number of runs returned when no limit is given.
const DefaultListLimit = 50

// DefaultMemoryCapacity bounds MemoryStore.
const DefaultMemoryCapacity = 500

// MemoryStore implements batch.RunRecorder in process memory. The oldest
// runs are evicted once capacity is reached.
type MemoryStore struct {
	mu       sync.RWMutex
	runs     []batch.RunRecord // oldest first
	capacity int
}

// NewMemoryStore returns a store holding at most capacity runs.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{capacity: capacity}
}

// Record appends run, evicting the oldest entry when full.
func (s *MemoryStore) Record(_ context.Context, run batch.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.runs) >= s.capacity {
		s.runs = append(s.runs[:0], s.runs[len(s.runs)-s.capacity+1:]...)
	}
	s.runs = append(s.runs, run)
	return nil
}

// List returns up to limit runs, newest first.
func (s *MemoryStore) List(_ context.Context, limit int) ([]batch.RunRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]batch.RunRecord, 0, min(limit, len(s.runs)))
	for i := len(s.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.runs[i])
	}
	return out, nil
}

// Get returns one run by ID.
func (s *MemoryStore) Get(_ context.Context, id string) (batch.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.runs) - 1; i >= 0; i-- {
		if s.runs[i].ID == id {
			return s.runs[i], nil
		}
	}
	return batch.RunRecord{}, fmt.Errorf("%w: %s", batch.ErrRunNotFound, id)
}
