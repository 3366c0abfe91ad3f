package vector

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/logsentry/internal/config"
)

// IndexType represents the type of similarity index to use.
type IndexType string

const (
	// IndexTypeMemory uses in-memory brute-force search. Good for small baselines (<100k entries).
	IndexTypeMemory IndexType = "memory"
	// IndexTypeOpenSearch uses an OpenSearch k-NN index.
	IndexTypeOpenSearch IndexType = "opensearch"
)

// NewIndex creates an index of the configured type.
// Supported types: "memory" (default), "opensearch".
func NewIndex(cfg config.IndexConfig, dimensions int, logger *zap.Logger) (Index, error) {
	switch IndexType(cfg.Type) {
	case IndexTypeMemory, "":
		return NewMemoryIndex(dimensions)
	case IndexTypeOpenSearch:
		return NewOpenSearchIndex(cfg.OpenSearch, dimensions, logger)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, opensearch)", cfg.Type)
	}
}
