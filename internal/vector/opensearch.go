package vector

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"go.uber.org/zap"

	"github.com/hyperjump/logsentry/internal/config"
	"github.com/hyperjump/logsentry/internal/models"
)

// OpenSearchIndex is an Index backed by an OpenSearch k-NN index.
type OpenSearchIndex struct {
	client     *opensearch.Client
	cfg        config.OpenSearchConfig
	dimensions int
	metric     Metric
	logger     *zap.Logger
}

// NewOpenSearchIndex creates a client for the configured cluster. It does not contact the cluster;
// call EnsureIndex before first use.
func NewOpenSearchIndex(cfg config.OpenSearchConfig, dimensions int, logger *zap.Logger) (*OpenSearchIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	osCfg := opensearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
	}
	if cfg.PasswordEnv != "" {
		osCfg.Password = os.Getenv(cfg.PasswordEnv)
	}
	if cfg.InsecureTLS {
		osCfg.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // opt-in for self-signed dev clusters
		}
	}
	client, err := opensearch.NewClient(osCfg)
	if err != nil {
		return nil, fmt.Errorf("create opensearch client: %w", err)
	}
	return &OpenSearchIndex{
		client:     client,
		cfg:        cfg,
		dimensions: dimensions,
		metric:     MetricForSpace(cfg.SpaceType),
		logger:     logger,
	}, nil
}

// Type returns the index type identifier.
func (o *OpenSearchIndex) Type() string {
	return string(IndexTypeOpenSearch)
}

// Metric returns the score conversion used for hits.
func (o *OpenSearchIndex) Metric() Metric {
	return o.metric
}

// EnsureIndex creates the k-NN index with its mapping if it does not exist.
func (o *OpenSearchIndex) EnsureIndex(ctx context.Context) error {
	res, err := opensearchapi.IndicesExistsRequest{Index: []string{o.cfg.IndexName}}.Do(ctx, o.client)
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	body, err := json.Marshal(o.mapping())
	if err != nil {
		return err
	}
	res, err = opensearchapi.IndicesCreateRequest{Index: o.cfg.IndexName, Body: bytes.NewReader(body)}.Do(ctx, o.client)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("create index: %s", res.String())
	}
	o.logger.Info("Created OpenSearch k-NN index",
		zap.String("index", o.cfg.IndexName),
		zap.Int("dimensions", o.dimensions),
		zap.String("space_type", o.cfg.SpaceType))
	return nil
}

func (o *OpenSearchIndex) mapping() map[string]any {
	return map[string]any{
		"settings": map[string]any{
			"index": map[string]any{
				"knn":                      true,
				"knn.algo_param.ef_search": o.cfg.EFSearch,
			},
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				"timestamp":         map[string]any{"type": "date"},
				o.cfg.TextField:     map[string]any{"type": "text"},
				o.cfg.CategoryField: map[string]any{"type": "keyword"},
				"source":            map[string]any{"type": "keyword"},
				o.cfg.VectorField: map[string]any{
					"type":      "knn_vector",
					"dimension": o.dimensions,
					"method": map[string]any{
						"name":       "hnsw",
						"space_type": o.cfg.SpaceType,
						"engine":     o.cfg.Engine,
					},
				},
			},
		},
	}
}

// field maps a filter name to the document field it is stored under.
func (o *OpenSearchIndex) field(name string) string {
	switch name {
	case "category":
		return o.cfg.CategoryField
	case "text":
		return o.cfg.TextField
	}
	return name
}

// SearchBody renders q as an OpenSearch k-NN query. Filters and the excluded ID go in the
// knn clause's own filter, so the engine restricts candidates while it ranks and still
// returns k hits when enough documents match.
func (o *OpenSearchIndex) SearchBody(q Query) map[string]any {
	size := q.resultSize()
	field := map[string]any{"vector": q.Vector, "k": size}
	if len(q.Filters) > 0 || q.ExcludeID != "" {
		boolQuery := map[string]any{}
		if len(q.Filters) > 0 {
			terms := make([]any, 0, len(q.Filters))
			for _, f := range sortedKeys(q.Filters) {
				terms = append(terms, map[string]any{"term": map[string]any{o.field(f): q.Filters[f]}})
			}
			boolQuery["filter"] = terms
		}
		if q.ExcludeID != "" {
			boolQuery["must_not"] = []any{map[string]any{"ids": map[string]any{"values": []string{q.ExcludeID}}}}
		}
		field["filter"] = map[string]any{"bool": boolQuery}
	}
	return map[string]any{
		"size":    size,
		"_source": map[string]any{"excludes": []string{o.cfg.VectorField}},
		"query": map[string]any{
			"knn": map[string]any{o.cfg.VectorField: field},
		},
	}
}

// SampleBody renders a seeded random draw of n documents matching filters.
func (o *OpenSearchIndex) SampleBody(n int, filters map[string]string, seed int64) map[string]any {
	var inner map[string]any
	if len(filters) == 0 {
		inner = map[string]any{"match_all": map[string]any{}}
	} else {
		terms := make([]any, 0, len(filters))
		for _, f := range sortedKeys(filters) {
			terms = append(terms, map[string]any{"term": map[string]any{o.field(f): filters[f]}})
		}
		inner = map[string]any{"bool": map[string]any{"filter": terms}}
	}
	return map[string]any{
		"size":    n,
		"_source": []string{o.cfg.VectorField, o.cfg.TextField, o.cfg.CategoryField, "source"},
		"query": map[string]any{
			"function_score": map[string]any{
				"query":        inner,
				"random_score": map[string]any{"seed": seed, "field": "_seq_no"},
				"boost_mode":   "replace",
			},
		},
	}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string                     `json:"_id"`
			Score  float64                    `json:"_score"`
			Source map[string]json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (o *OpenSearchIndex) search(ctx context.Context, body map[string]any) (*searchResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	res, err := opensearchapi.SearchRequest{
		Index: []string{o.cfg.IndexName},
		Body:  bytes.NewReader(data),
	}.Do(ctx, o.client)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search failed: %s", res.String())
	}
	var out searchResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return &out, nil
}

func sourceString(src map[string]json.RawMessage, field string) string {
	raw, ok := src[field]
	if !ok {
		return ""
	}
	var s string
	_ = json.Unmarshal(raw, &s)
	return s
}

// Search executes q and converts scores to cosine-like similarity.
func (o *OpenSearchIndex) Search(ctx context.Context, q Query) ([]*models.NeighborHit, error) {
	if len(q.Vector) != o.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(q.Vector), o.dimensions)
	}
	res, err := o.search(ctx, o.SearchBody(q))
	if err != nil {
		return nil, err
	}
	hits := make([]*models.NeighborHit, 0, len(res.Hits.Hits))
	for _, h := range res.Hits.Hits {
		if q.ExcludeID != "" && h.ID == q.ExcludeID {
			continue
		}
		hits = append(hits, &models.NeighborHit{
			ID:         h.ID,
			Similarity: o.metric.Similarity(h.Score),
			Text:       sourceString(h.Source, o.cfg.TextField),
			Category:   sourceString(h.Source, o.cfg.CategoryField),
		})
	}
	return hits, nil
}

// Sample draws up to n documents with function_score random_score seeded by seed.
// Documents without a decodable vector are returned with a nil Vector.
func (o *OpenSearchIndex) Sample(ctx context.Context, n int, filters map[string]string, seed int64) ([]*models.BaselineEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	res, err := o.search(ctx, o.SampleBody(n, filters, seed))
	if err != nil {
		return nil, err
	}
	entries := make([]*models.BaselineEntry, 0, len(res.Hits.Hits))
	for _, h := range res.Hits.Hits {
		e := &models.BaselineEntry{
			ID:       h.ID,
			Text:     sourceString(h.Source, o.cfg.TextField),
			Category: sourceString(h.Source, o.cfg.CategoryField),
			Source:   sourceString(h.Source, "source"),
		}
		if raw, ok := h.Source[o.cfg.VectorField]; ok {
			var vec []float32
			if err := json.Unmarshal(raw, &vec); err == nil {
				e.Vector = vec
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Add indexes entries with a single bulk request and refreshes the index.
func (o *OpenSearchIndex) Add(ctx context.Context, entries []*models.BaselineEntry) error {
	if len(entries) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		if len(e.Vector) != o.dimensions {
			return fmt.Errorf("vector dimension mismatch for %s: got %d, expected %d", e.ID, len(e.Vector), o.dimensions)
		}
		ts := e.CreatedAt
		if ts.IsZero() {
			ts = time.Now()
		}
		meta := map[string]any{"index": map[string]any{"_index": o.cfg.IndexName, "_id": e.ID}}
		doc := map[string]any{
			"timestamp":         ts.UTC().Format(time.RFC3339),
			o.cfg.TextField:     e.Text,
			o.cfg.CategoryField: e.Category,
			"source":            e.Source,
			o.cfg.VectorField:   e.Vector,
		}
		if err := enc.Encode(meta); err != nil {
			return err
		}
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}
	res, err := opensearchapi.BulkRequest{Body: &buf, Refresh: "true"}.Do(ctx, o.client)
	if err != nil {
		return fmt.Errorf("bulk index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk index failed: %s", res.String())
	}
	var out struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if out.Errors {
		return fmt.Errorf("bulk index reported item errors")
	}
	return nil
}

// Remove deletes documents by ID. Missing documents are ignored.
func (o *OpenSearchIndex) Remove(ctx context.Context, ids []string) error {
	for _, id := range ids {
		res, err := opensearchapi.DeleteRequest{Index: o.cfg.IndexName, DocumentID: id, Refresh: "true"}.Do(ctx, o.client)
		if err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
		_, _ = io.Copy(io.Discard, res.Body)
		res.Body.Close()
		if res.IsError() && res.StatusCode != http.StatusNotFound {
			return fmt.Errorf("delete %s: %s", id, res.Status())
		}
	}
	return nil
}

// Count returns the number of documents in the index.
func (o *OpenSearchIndex) Count(ctx context.Context) (int, error) {
	res, err := opensearchapi.CountRequest{Index: []string{o.cfg.IndexName}}.Do(ctx, o.client)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("count failed: %s", res.String())
	}
	var out struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}
	return out.Count, nil
}

// Close is a no-op; the HTTP client holds no resources that need release.
func (o *OpenSearchIndex) Close() error {
	return nil
}
