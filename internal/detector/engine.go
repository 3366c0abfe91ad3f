package detector

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/logsentry/internal/ingest"
	"github.com/hyperjump/logsentry/internal/metrics"
	"github.com/hyperjump/logsentry/internal/models"
	"github.com/hyperjump/logsentry/internal/vector"
)

// Embedder maps text to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Defaults fill unset detection request fields.
type Defaults struct {
	K           int
	ScoreMethod string
	PrintTop    int
	Filters     map[string]string
}

// Engine renders verdicts for incoming log lines against the baseline.
type Engine struct {
	embedder   Embedder
	index      vector.Index
	thresholds *ThresholdStore
	defaults   Defaults
	logger     *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineLogger sets the logger.
func WithEngineLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithDefaults sets request defaults.
func WithDefaults(d Defaults) EngineOption {
	return func(e *Engine) {
		e.defaults = d
	}
}

// NewEngine creates a detection engine. thresholds supplies the threshold when a request
// does not override it.
func NewEngine(embedder Embedder, index vector.Index, thresholds *ThresholdStore, opts ...EngineOption) *Engine {
	e := &Engine{
		embedder:   embedder,
		index:      index,
		thresholds: thresholds,
		defaults:   Defaults{K: 5, ScoreMethod: string(MethodKth), PrintTop: 5},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) applyDefaults(req *models.DetectRequest) {
	if req.K == 0 {
		req.K = e.defaults.K
	}
	if req.ScoreMethod == "" {
		req.ScoreMethod = e.defaults.ScoreMethod
	}
	if req.PrintTop == 0 {
		req.PrintTop = e.defaults.PrintTop
	}
	if req.Filters == nil && len(e.defaults.Filters) > 0 {
		req.Filters = e.defaults.Filters
	}
}

// Detect normalizes req.Text the way ingestion does, embeds it, queries its nearest baseline
// neighbors, scores them and compares the score to the threshold. A line is anomalous only when
// its score is strictly greater than the threshold.
//
// Errors wrap ErrInvalidRequest, ErrEmbedding or ErrSearch. ErrNoComparableData is returned when
// the index has no neighbors for the query; no verdict is produced in that case.
func (e *Engine) Detect(ctx context.Context, req *models.DetectRequest) (*models.DetectionVerdict, error) {
	start := time.Now()
	req.Text = ingest.Preprocess(req.Text)
	e.applyDefaults(req)
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	method, err := ParseMethod(req.ScoreMethod)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	threshold := e.thresholds.Get()
	if req.Threshold != nil {
		threshold = models.Threshold{Value: *req.Threshold, Source: models.ThresholdOverride}
	}

	vec, err := e.embedder.Embed(ctx, req.Text)
	if err != nil {
		metrics.DetectionsTotal.WithLabelValues("embed_error").Inc()
		e.logger.Warn("Embedding failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}

	q := vector.BuildQuery(vec, req.K, req.Filters, "")
	if req.PrintTop > q.Size {
		q.Size = req.PrintTop
	}
	hits, err := e.index.Search(ctx, q)
	if err != nil {
		metrics.DetectionsTotal.WithLabelValues("search_error").Inc()
		e.logger.Warn("Similarity search failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrSearch, err)
	}

	scoreHits := hits
	if len(scoreHits) > req.K {
		scoreHits = scoreHits[:req.K]
	}
	score, ok := Score(scoreHits, req.K, method)
	if !ok {
		metrics.DetectionsTotal.WithLabelValues(models.StatusNoComparableData).Inc()
		e.logger.Info("No comparable data for detection", zap.Any("filters", req.Filters))
		return nil, ErrNoComparableData
	}

	neighbors := hits
	if len(neighbors) > req.PrintTop {
		neighbors = neighbors[:req.PrintTop]
	}
	anomalous := score > threshold.Value
	verdict := &models.DetectionVerdict{
		Text:            req.Text,
		Status:          models.StatusNormal,
		Score:           score,
		Threshold:       threshold.Value,
		ThresholdSource: threshold.Source,
		IsAnomalous:     anomalous,
		Method:          string(method),
		K:               req.K,
		Neighbors:       neighbors,
		QueryTimeMs:     time.Since(start).Milliseconds(),
		DetectedAt:      time.Now(),
	}
	if anomalous {
		verdict.Status = models.StatusAnomalous
	}

	metrics.DetectionsTotal.WithLabelValues(verdict.Status).Inc()
	metrics.AnomalyScore.Observe(score)
	metrics.DetectionDuration.Observe(time.Since(start).Seconds())
	e.logger.Info("Detection verdict",
		zap.String("status", verdict.Status),
		zap.Float64("score", score),
		zap.Float64("threshold", threshold.Value),
		zap.String("threshold_source", threshold.Source),
		zap.String("method", verdict.Method),
		zap.Int("k", req.K))
	return verdict, nil
}
