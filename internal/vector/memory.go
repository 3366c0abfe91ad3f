package vector

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/hyperjump/logsentry/internal/models"
)

// MemoryIndex is an in-memory index using brute-force cosine similarity.
// Filters and exclusion are applied to the candidate set before ranking.
type MemoryIndex struct {
	dimensions int
	entries    map[string]*memoryEntry
	mu         sync.RWMutex
}

type memoryEntry struct {
	entry *models.BaselineEntry
	norm  float64
}

// NewMemoryIndex creates an in-memory index for vectors of the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		entries:    make(map[string]*memoryEntry),
	}, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Add inserts entries, replacing any entry with the same ID.
func (m *MemoryIndex) Add(ctx context.Context, entries []*models.BaselineEntry) error {
	for _, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("entry id cannot be empty")
		}
		if len(e.Vector) != m.dimensions {
			return fmt.Errorf("vector dimension mismatch for %s: got %d, expected %d", e.ID, len(e.Vector), m.dimensions)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		cp := *e
		cp.Vector = make([]float32, m.dimensions)
		copy(cp.Vector, e.Vector)
		m.entries[e.ID] = &memoryEntry{entry: &cp, norm: L2Norm(cp.Vector)}
	}
	return nil
}

// Search returns up to q.Size hits by descending cosine similarity. Ties are ordered by ID.
func (m *MemoryIndex) Search(ctx context.Context, q Query) ([]*models.NeighborHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(q.Vector) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(q.Vector), m.dimensions)
	}
	size := q.resultSize()
	if size <= 0 {
		return nil, nil
	}
	qnorm := L2Norm(q.Vector)

	m.mu.RLock()
	hits := make([]*models.NeighborHit, 0, len(m.entries))
	for _, me := range m.entries {
		if !q.Matches(me.entry) {
			continue
		}
		sim := 0.0
		if qnorm > 0 && me.norm > 0 {
			sim = InnerProduct(q.Vector, me.entry.Vector) / (qnorm * me.norm)
		}
		hits = append(hits, &models.NeighborHit{
			ID:         me.entry.ID,
			Similarity: sim,
			Text:       me.entry.Text,
			Category:   me.entry.Category,
		})
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ID < hits[j].ID
	})
	if size < len(hits) {
		hits = hits[:size]
	}
	return hits, nil
}

// Sample shuffles the ID-ordered matching population with a source seeded by seed and
// returns the first n. The same seed and contents always give the same sample.
func (m *MemoryIndex) Sample(ctx context.Context, n int, filters map[string]string, seed int64) ([]*models.BaselineEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	pool := make([]*models.BaselineEntry, 0, len(m.entries))
	for _, me := range m.entries {
		if MatchFilters(me.entry, filters) {
			cp := *me.entry
			pool = append(pool, &cp)
		}
	}
	m.mu.RUnlock()

	sort.Slice(pool, func(i, j int) bool { return pool[i].ID < pool[j].ID })
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if n < len(pool) {
		pool = pool[:n]
	}
	return pool, nil
}

// Remove deletes entries by ID. Unknown IDs are ignored.
func (m *MemoryIndex) Remove(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.entries, id)
	}
	return nil
}

// Count returns the number of entries in the index.
func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	return m.Size(), nil
}

// Size returns the number of entries in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
