package detector

import (
	"context"
	"errors"
	"sync"

	"github.com/hyperjump/logsentry/internal/models"
	"github.com/hyperjump/logsentry/internal/vector"
)

// recordingIndex wraps a MemoryIndex, records queries and can fail on demand.
type recordingIndex struct {
	*vector.MemoryIndex

	mu         sync.Mutex
	queries    []vector.Query
	results    map[string][]*models.NeighborHit
	sampleErr  error
	failSearch func(q vector.Query) bool
	leakSelf   bool
}

func newRecordingIndex(dims int) *recordingIndex {
	idx, err := vector.NewMemoryIndex(dims)
	if err != nil {
		panic(err)
	}
	return &recordingIndex{MemoryIndex: idx, results: map[string][]*models.NeighborHit{}}
}

func (r *recordingIndex) Search(ctx context.Context, q vector.Query) ([]*models.NeighborHit, error) {
	r.mu.Lock()
	r.queries = append(r.queries, q)
	fail := r.failSearch != nil && r.failSearch(q)
	r.mu.Unlock()
	if fail {
		return nil, errors.New("index unavailable")
	}
	hits, err := r.MemoryIndex.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	if r.leakSelf && q.ExcludeID != "" {
		hits = append([]*models.NeighborHit{{ID: q.ExcludeID, Similarity: 1}}, hits...)
	}
	r.mu.Lock()
	r.results[q.ExcludeID] = hits
	r.mu.Unlock()
	return hits, nil
}

func (r *recordingIndex) Sample(ctx context.Context, n int, filters map[string]string, seed int64) ([]*models.BaselineEntry, error) {
	if r.sampleErr != nil {
		return nil, r.sampleErr
	}
	return r.MemoryIndex.Sample(ctx, n, filters, seed)
}

func (r *recordingIndex) recorded() []vector.Query {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]vector.Query, len(r.queries))
	copy(out, r.queries)
	return out
}

// staticEmbedder returns fixed vectors per text, or err.
type staticEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (s *staticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	v, ok := s.vectors[text]
	if !ok {
		return nil, errors.New("no vector for text")
	}
	return v, nil
}

func hitsOf(sims ...float64) []*models.NeighborHit {
	hits := make([]*models.NeighborHit, len(sims))
	for i, s := range sims {
		hits[i] = &models.NeighborHit{ID: string(rune('a' + i)), Similarity: s}
	}
	return hits
}
