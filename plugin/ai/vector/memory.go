package vector

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// MemoryIndex is an in-process brute-force cosine index. Contents are lost on
// restart; the embedding runner rebuilds them from the conversation log.
type MemoryIndex struct {
	mu      sync.RWMutex
	dims    int
	entries map[string]*memoryEntry
	nextSeq uint64
	closed  bool
}

type memoryEntry struct {
	rec Record
	vec []float32
	seq uint64
}

// NewMemoryIndex creates an empty index. With dims <= 0 the dimension is fixed by the first upsert.
func NewMemoryIndex(dims int) *MemoryIndex {
	return &MemoryIndex{
		dims:    dims,
		entries: make(map[string]*memoryEntry),
	}
}

func (m *MemoryIndex) Upsert(_ context.Context, vec []float32, rec Record) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", fmt.Errorf("vector: index is closed")
	}
	if len(vec) == 0 {
		return "", fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}
	if m.dims <= 0 {
		m.dims = len(vec)
	}
	if len(vec) != m.dims {
		return "", fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), m.dims)
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	stored := slices.Clone(vec)

	if e, ok := m.entries[rec.ID]; ok {
		e.rec = rec
		e.vec = stored
		return rec.ID, nil
	}

	m.nextSeq++
	m.entries[rec.ID] = &memoryEntry{rec: rec, vec: stored, seq: m.nextSeq}
	return rec.ID, nil
}

func (m *MemoryIndex) Query(_ context.Context, vec []float32, k int, filter Filter) ([]Result, error) {
	if filter.UserID == nil {
		return nil, ErrUserFilterRequired
	}
	k = normalizeK(k)

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.dims > 0 && len(vec) != m.dims {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), m.dims)
	}

	type scored struct {
		Result
		seq uint64
	}
	hits := make([]scored, 0)
	for _, e := range m.entries {
		if !filter.Matches(&e.rec) {
			continue
		}
		hits = append(hits, scored{
			Result: Result{Record: e.rec, Score: CosineSimilarity(vec, e.vec)},
			seq:    e.seq,
		})
	}

	slices.SortFunc(hits, func(a, b scored) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = h.Result
	}
	return results, nil
}

func (m *MemoryIndex) DeleteByFilter(_ context.Context, filter Filter) (int, error) {
	if filter.IsEmpty() {
		return 0, ErrEmptyFilter
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, e := range m.entries {
		if filter.Matches(&e.rec) {
			delete(m.entries, id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored records.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.entries = make(map[string]*memoryEntry)
	return nil
}

var _ Index = (*MemoryIndex)(nil)
