package detector

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hyperjump/logsentry/internal/metrics"
	"github.com/hyperjump/logsentry/internal/models"
	"github.com/hyperjump/logsentry/internal/vector"
)

// CalibrationParams configures one calibration run.
type CalibrationParams struct {
	SampleSize int
	K          int
	Quantile   float64
	Filters    map[string]string
	Method     Method
	Seed       int64
}

// minSample is the smallest sample that supports a k-th neighbor estimate.
func minSample(k int) int {
	if k+1 > 5 {
		return k + 1
	}
	return 5
}

// Calibrator derives an anomaly threshold from leave-one-out scores of sampled baseline entries.
type Calibrator struct {
	index        vector.Index
	workers      int
	limiter      *rate.Limiter
	queryTimeout time.Duration
	logger       *zap.Logger
}

// CalibratorOption configures a Calibrator.
type CalibratorOption func(*Calibrator)

// WithCalibratorLogger sets the logger.
func WithCalibratorLogger(l *zap.Logger) CalibratorOption {
	return func(c *Calibrator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithWorkers bounds the number of concurrent per-sample queries.
func WithWorkers(n int) CalibratorOption {
	return func(c *Calibrator) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithQueriesPerSecond paces per-sample queries against the index. Zero disables pacing.
func WithQueriesPerSecond(qps float64) CalibratorOption {
	return func(c *Calibrator) {
		if qps > 0 {
			burst := int(qps)
			if burst < 1 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(qps), burst)
		}
	}
}

// WithQueryTimeout bounds each per-sample query.
func WithQueryTimeout(d time.Duration) CalibratorOption {
	return func(c *Calibrator) {
		if d > 0 {
			c.queryTimeout = d
		}
	}
}

// NewCalibrator creates a calibrator over index.
func NewCalibrator(index vector.Index, opts ...CalibratorOption) *Calibrator {
	c := &Calibrator{
		index:        index,
		workers:      1,
		queryTimeout: 10 * time.Second,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Calibrate samples up to p.SampleSize baseline entries, scores each against its k nearest
// neighbors excluding itself, and returns the p.Quantile-th quantile of those scores.
//
// The second result is false when no threshold can be derived: the sample could not be drawn,
// it is smaller than max(5, k+1), or no sampled entry produced a score. Per-entry failures are
// skipped. Calibrate never returns an error; callers fall back to a fixed threshold.
func (c *Calibrator) Calibrate(ctx context.Context, p CalibrationParams) (*models.Calibration, bool) {
	start := time.Now()
	log := c.logger.With(
		zap.String("method", string(p.Method)),
		zap.Int("k", p.K),
		zap.Float64("quantile", p.Quantile),
		zap.Int("sample_size", p.SampleSize),
		zap.Int64("seed", p.Seed))

	sample, err := c.index.Sample(ctx, p.SampleSize, p.Filters, p.Seed)
	if err != nil {
		log.Warn("Calibration unavailable: sample failed", zap.Error(err))
		metrics.CalibrationsTotal.WithLabelValues("unavailable").Inc()
		return nil, false
	}
	if len(sample) < minSample(p.K) {
		log.Warn("Calibration unavailable: sample too small",
			zap.Int("sampled", len(sample)),
			zap.Int("required", minSample(p.K)))
		metrics.CalibrationsTotal.WithLabelValues("unavailable").Inc()
		return nil, false
	}

	scores := make([]float64, len(sample))
	scored := make([]bool, len(sample))

	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, entry := range sample {
		if len(entry.Vector) == 0 {
			log.Debug("Skipping sample without vector", zap.String("id", entry.ID))
			continue
		}
		i, entry := i, entry
		g.Go(func() error {
			if c.limiter != nil {
				if err := c.limiter.Wait(ctx); err != nil {
					return nil
				}
			}
			s, ok := c.scoreEntry(ctx, entry, p)
			if !ok {
				return nil
			}
			scores[i] = s
			scored[i] = true
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		log.Warn("Calibration unavailable: cancelled", zap.Error(ctx.Err()))
		metrics.CalibrationsTotal.WithLabelValues("unavailable").Inc()
		return nil, false
	}

	collected := make([]float64, 0, len(sample))
	for i, ok := range scored {
		if ok {
			collected = append(collected, scores[i])
		}
	}
	threshold, ok := Quantile(collected, p.Quantile)
	if !ok {
		log.Warn("Calibration unavailable: no sample could be scored", zap.Int("sampled", len(sample)))
		metrics.CalibrationsTotal.WithLabelValues("unavailable").Inc()
		return nil, false
	}

	cal := &models.Calibration{
		Threshold:  threshold,
		Quantile:   p.Quantile,
		Method:     string(p.Method),
		K:          p.K,
		SampleSize: p.SampleSize,
		Sampled:    len(sample),
		Scored:     len(collected),
		Skipped:    len(sample) - len(collected),
		Seed:       p.Seed,
		Filters:    p.Filters,
		Scores:     collected,
		DurationMs: time.Since(start).Milliseconds(),
		CreatedAt:  time.Now(),
	}
	metrics.CalibrationsTotal.WithLabelValues("success").Inc()
	metrics.CalibrationSamples.WithLabelValues("sampled").Set(float64(cal.Sampled))
	metrics.CalibrationSamples.WithLabelValues("scored").Set(float64(cal.Scored))
	metrics.CalibrationSamples.WithLabelValues("skipped").Set(float64(cal.Skipped))
	log.Info("Calibration complete",
		zap.Float64("threshold", threshold),
		zap.Int("sampled", cal.Sampled),
		zap.Int("scored", cal.Scored),
		zap.Int("skipped", cal.Skipped),
		zap.Int64("duration_ms", cal.DurationMs))
	return cal, true
}

// scoreEntry runs the leave-one-out query for one sampled entry.
func (c *Calibrator) scoreEntry(ctx context.Context, entry *models.BaselineEntry, p CalibrationParams) (float64, bool) {
	qctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	hits, err := c.index.Search(qctx, vector.BuildQuery(entry.Vector, p.K, p.Filters, entry.ID))
	if err != nil {
		c.logger.Debug("Skipping sample: search failed", zap.String("id", entry.ID), zap.Error(err))
		return 0, false
	}
	// Self-hits leaked by a backend are dropped.
	kept := make([]*models.NeighborHit, 0, len(hits))
	for _, h := range hits {
		if h.ID != entry.ID {
			kept = append(kept, h)
		}
	}
	if len(kept) > p.K {
		kept = kept[:p.K]
	}
	return Score(kept, p.K, p.Method)
}

// Run calibrates every interval until ctx is done, applying each successful result to store.
// onSuccess, if set, is called after the store is updated. Failed runs keep the previous threshold.
func (c *Calibrator) Run(ctx context.Context, interval time.Duration, p CalibrationParams, store *ThresholdStore, onSuccess func(*models.Calibration)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cal, ok := c.Calibrate(ctx, p)
			if !ok {
				continue
			}
			store.Apply(cal)
			if onSuccess != nil {
				onSuccess(cal)
			}
		}
	}
}
