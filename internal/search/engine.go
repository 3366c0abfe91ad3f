package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/logsentry/internal/embedding"
	"github.com/hyperjump/logsentry/internal/keyword"
	"github.com/hyperjump/logsentry/internal/models"
	"github.com/hyperjump/logsentry/internal/vector"
)

// Search modes.
const (
	ModeKeyword  = "keyword"
	ModeSemantic = "semantic"
	ModeHybrid   = "hybrid"
)

const (
	defaultLimit      = 10
	defaultCandidates = 50
)

// ErrInvalidQuery is returned for an empty query, an unknown mode or non-positive weights.
var ErrInvalidQuery = errors.New("invalid search query")

// EntryLoader loads stored baseline entries by ID.
type EntryLoader interface {
	GetEntries(ctx context.Context, ids []string) ([]*models.BaselineEntry, error)
}

// Request is a baseline search.
type Request struct {
	Query string
	// Mode is keyword, semantic or hybrid. Empty means keyword.
	Mode  string
	Limit int
	// Weights apply in hybrid mode. Both zero means 0.5 each.
	KeywordWeight  float64
	SemanticWeight float64
	Filters        map[string]string
	Fuzzy          bool
}

// Result is one baseline entry with its fused score.
type Result struct {
	ID            string  `json:"id"`
	Score         float64 `json:"score"`
	KeywordScore  float64 `json:"keyword_score,omitempty"`
	SemanticScore float64 `json:"semantic_score,omitempty"`
	Rank          int     `json:"rank"`
	Text          string  `json:"text"`
	Category      string  `json:"category,omitempty"`
	Source        string  `json:"source,omitempty"`
}

// Response holds search results. Total counts fused candidates before the limit.
type Response struct {
	Results     []*Result `json:"results"`
	Total       int       `json:"total"`
	Mode        string    `json:"mode"`
	QueryTimeMs int64     `json:"query_time_ms"`
}

// Engine runs keyword, semantic and hybrid search over the baseline.
type Engine struct {
	entries      EntryLoader
	embedder     embedding.Embedder
	vectorIndex  vector.Index
	keywordIndex keyword.KeywordIndex
	candidates   int
}

// NewEngine creates a search engine. keywordIndex may be nil, which disables keyword and hybrid modes.
func NewEngine(entries EntryLoader, embedder embedding.Embedder, vectorIndex vector.Index, keywordIndex keyword.KeywordIndex) *Engine {
	return &Engine{
		entries:      entries,
		embedder:     embedder,
		vectorIndex:  vectorIndex,
		keywordIndex: keywordIndex,
		candidates:   defaultCandidates,
	}
}

func (e *Engine) weights(req *Request) (mode string, kw, sem float64, err error) {
	mode = strings.ToLower(strings.TrimSpace(req.Mode))
	switch mode {
	case "", ModeKeyword:
		mode, kw, sem = ModeKeyword, 1, 0
	case ModeSemantic:
		kw, sem = 0, 1
	case ModeHybrid:
		kw, sem = req.KeywordWeight, req.SemanticWeight
		if kw < 0 || sem < 0 {
			return "", 0, 0, fmt.Errorf("%w: weights must not be negative", ErrInvalidQuery)
		}
		if kw == 0 && sem == 0 {
			kw, sem = 0.5, 0.5
		}
	default:
		return "", 0, 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidQuery, req.Mode)
	}
	if kw > 0 && e.keywordIndex == nil {
		return "", 0, 0, fmt.Errorf("%w: keyword index unavailable", ErrInvalidQuery)
	}
	return mode, kw, sem, nil
}

// Search runs the request and returns entries ordered by fused score.
func (e *Engine) Search(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidQuery)
	}
	mode, kwWeight, semWeight, err := e.weights(req)
	if err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	candidates := e.candidates
	if limit > candidates {
		candidates = limit
	}

	var (
		keywordResults []*keyword.KeywordResult
		semanticHits   []*models.NeighborHit
	)
	g, gctx := errgroup.WithContext(ctx)
	if kwWeight > 0 {
		g.Go(func() error {
			results, err := e.keywordIndex.Search(gctx, req.Query, candidates,
				&keyword.SearchOptions{Filters: req.Filters, FuzzyEnabled: req.Fuzzy})
			if err != nil {
				return fmt.Errorf("keyword search failed: %w", err)
			}
			keywordResults = results
			return nil
		})
	}
	if semWeight > 0 {
		g.Go(func() error {
			vec, err := e.embedder.Embed(gctx, req.Query)
			if err != nil {
				return fmt.Errorf("embedding failed: %w", err)
			}
			hits, err := e.vectorIndex.Search(gctx, vector.BuildQuery(vec, candidates, req.Filters, ""))
			if err != nil {
				return fmt.Errorf("vector search failed: %w", err)
			}
			semanticHits = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := Fuse(NormalizeKeywordScores(keywordResults), NormalizeSemanticScores(semanticHits), kwWeight, semWeight)
	page := fused
	if len(page) > limit {
		page = page[:limit]
	}
	ids := make([]string, len(page))
	for i, r := range page {
		ids[i] = r.EntryID
	}
	entries, err := e.entries.GetEntries(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}
	byID := make(map[string]*models.BaselineEntry, len(entries))
	for _, en := range entries {
		byID[en.ID] = en
	}

	resp := &Response{Results: make([]*Result, 0, len(page)), Total: len(fused), Mode: mode}
	for _, r := range page {
		en, ok := byID[r.EntryID]
		if !ok {
			continue
		}
		resp.Results = append(resp.Results, &Result{
			ID:            en.ID,
			Score:         r.Score,
			KeywordScore:  r.KeywordScore,
			SemanticScore: r.SemanticScore,
			Rank:          len(resp.Results) + 1,
			Text:          en.Text,
			Category:      en.Category,
			Source:        en.Source,
		})
	}
	resp.QueryTimeMs = time.Since(start).Milliseconds()
	return resp, nil
}
