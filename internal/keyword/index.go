// Package keyword provides full-text indexing of baseline log lines.
package keyword

import (
	"context"

	"github.com/hyperjump/logsentry/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// Filters restricts hits to entries whose keyword fields (category, source) equal the given values.
	Filters map[string]string
	// FuzzyEnabled enables fuzzy matching for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum Levenshtein edit distance for fuzzy matching (1 or 2).
	// Default is 1 when FuzzyEnabled is true.
	Fuzziness int
}

// KeywordIndex defines keyword search operations over baseline entries.
type KeywordIndex interface {
	Index(ctx context.Context, entries []*models.BaselineEntry) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	// SearchPhrase returns entries containing the analyzed phrase with terms in order.
	SearchPhrase(ctx context.Context, phrase string, limit int) ([]*KeywordResult, error)
	Delete(ctx context.Context, id string) error
	// DocCount returns the total number of entries in the index.
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit.
type KeywordResult struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}
