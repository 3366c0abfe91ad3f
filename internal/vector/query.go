package vector

import (
	"sort"

	"github.com/hyperjump/logsentry/internal/models"
)

// Query is a nearest-neighbor request against an Index.
type Query struct {
	Vector []float32
	// K is the number of neighbors requested.
	K int
	// Size is the number of hits returned; equals K unless widened for display.
	Size int
	// Filters restrict candidates to entries matching every field (AND) before ranking.
	Filters map[string]string
	// ExcludeID drops one entry from the candidates before ranking.
	ExcludeID string
}

// BuildQuery constructs a query for the k nearest neighbors of vector.
// Empty filters and an empty excludeID mean no restriction.
func BuildQuery(vector []float32, k int, filters map[string]string, excludeID string) Query {
	q := Query{Vector: vector, K: k, Size: k, ExcludeID: excludeID}
	if len(filters) > 0 {
		q.Filters = make(map[string]string, len(filters))
		for f, v := range filters {
			q.Filters[f] = v
		}
	}
	return q
}

// Matches reports whether e is a candidate for q: not excluded and matching all filters.
func (q Query) Matches(e *models.BaselineEntry) bool {
	if q.ExcludeID != "" && e.ID == q.ExcludeID {
		return false
	}
	return MatchFilters(e, q.Filters)
}

// MatchFilters reports whether e has every field=value pair in filters.
func MatchFilters(e *models.BaselineEntry, filters map[string]string) bool {
	for f, v := range filters {
		if e.Field(f) != v {
			return false
		}
	}
	return true
}

// resultSize is the number of hits to return; never below K.
func (q Query) resultSize() int {
	if q.Size > q.K {
		return q.Size
	}
	return q.K
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
