package detector

import "errors"

var (
	// ErrInvalidRequest is returned for requests that fail validation.
	ErrInvalidRequest = errors.New("invalid detection request")
	// ErrEmbedding is returned when the embedding provider fails for the incoming text.
	ErrEmbedding = errors.New("embedding failed")
	// ErrSearch is returned when the similarity index query fails.
	ErrSearch = errors.New("similarity search failed")
	// ErrNoComparableData is returned when the index yields no neighbors for the query,
	// because the baseline is empty or the filters exclude everything. No score exists.
	ErrNoComparableData = errors.New("no comparable data")
)
