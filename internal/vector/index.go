// Package vector provides the similarity index used for baseline nearest-neighbor queries.
package vector

import (
	"context"

	"github.com/hyperjump/logsentry/internal/models"
)

// Index stores baseline entries and answers nearest-neighbor queries over them.
// Hits are ordered by descending similarity; Similarity is cosine-like for every backend.
type Index interface {
	Add(ctx context.Context, entries []*models.BaselineEntry) error
	Search(ctx context.Context, q Query) ([]*models.NeighborHit, error)
	// Sample returns up to n entries matching filters, chosen pseudo-randomly from seed.
	// Returned entries carry their vectors.
	Sample(ctx context.Context, n int, filters map[string]string, seed int64) ([]*models.BaselineEntry, error)
	Remove(ctx context.Context, ids []string) error
	Count(ctx context.Context) (int, error)
	Type() string
	Close() error
}

// Metric names how a backend's raw relevance score maps to a cosine-like similarity.
type Metric string

const (
	// MetricCosine means the raw score already is cosine similarity.
	MetricCosine Metric = "cosine"
	// MetricOpenSearchCosine is OpenSearch cosinesimil scoring: score = (1 + cos) / 2.
	MetricOpenSearchCosine Metric = "opensearch_cosinesimil"
	// MetricOpenSearchL2 is OpenSearch l2 scoring: score = 1 / (1 + d²). Vectors must be unit length.
	MetricOpenSearchL2 Metric = "opensearch_l2"
	// MetricOpenSearchInnerProduct is OpenSearch innerproduct scoring.
	MetricOpenSearchInnerProduct Metric = "opensearch_innerproduct"
	// MetricRaw passes scores through unchanged.
	MetricRaw Metric = "raw"
)

// Similarity converts a raw backend score to a cosine-like similarity.
func (m Metric) Similarity(score float64) float64 {
	switch m {
	case MetricOpenSearchCosine:
		return 2*score - 1
	case MetricOpenSearchL2:
		if score <= 0 {
			return -1
		}
		d2 := 1/score - 1
		return 1 - d2/2
	case MetricOpenSearchInnerProduct:
		if score >= 1 {
			return score - 1
		}
		if score <= 0 {
			return -1
		}
		return 1 - 1/score
	default:
		return score
	}
}

// MetricForSpace returns the Metric matching an OpenSearch space_type.
func MetricForSpace(spaceType string) Metric {
	switch spaceType {
	case "cosinesimil":
		return MetricOpenSearchCosine
	case "innerproduct":
		return MetricOpenSearchInnerProduct
	case "l2":
		return MetricOpenSearchL2
	default:
		return MetricRaw
	}
}
