// Package app wires storage, embedding, indexes and the detector into one set of components
// shared by the HTTP server and the direct CLI mode.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/logsentry/internal/config"
	"github.com/hyperjump/logsentry/internal/detector"
	"github.com/hyperjump/logsentry/internal/embedding"
	"github.com/hyperjump/logsentry/internal/ingest"
	"github.com/hyperjump/logsentry/internal/keyword"
	"github.com/hyperjump/logsentry/internal/models"
	"github.com/hyperjump/logsentry/internal/rules"
	"github.com/hyperjump/logsentry/internal/search"
	"github.com/hyperjump/logsentry/internal/storage"
	"github.com/hyperjump/logsentry/internal/vector"
	"github.com/hyperjump/logsentry/internal/watcher"
)

var (
	// ErrCalibrationUnavailable is returned when a calibration run cannot derive a threshold.
	ErrCalibrationUnavailable = errors.New("calibration unavailable")
	// ErrNoRules is returned by rule operations when no IOC bundle is configured.
	ErrNoRules = errors.New("no ioc bundle configured")
)

// Components holds every long-lived dependency of a logsentry process.
type Components struct {
	Config       *config.Config
	Storage      storage.Storage
	Embedder     embedding.Embedder
	VectorIndex  vector.Index
	KeywordIndex keyword.KeywordIndex
	Thresholds   *detector.ThresholdStore
	Engine       *detector.Engine
	Calibrator   *detector.Calibrator
	Ingester     *ingest.Ingester
	Search       *search.Engine
	// Matcher is nil when rules.bundle_path is empty.
	Matcher *rules.Matcher

	logger *zap.Logger
	calMu  sync.Mutex
}

// New opens storage and indexes and builds the embedding provider from cfg.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	embedder, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	vectorIndex, err := vector.NewIndex(cfg.Index, embedder.Dimensions(), logger)
	if err != nil {
		_ = store.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	if osIndex, ok := vectorIndex.(*vector.OpenSearchIndex); ok {
		if err := osIndex.EnsureIndex(ctx); err != nil {
			logger.Warn("opensearch index check failed", zap.Error(err))
		}
	}

	keywordIndex, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		_ = store.Close()
		_ = embedder.Close()
		_ = vectorIndex.Close()
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	var matcher *rules.Matcher
	if cfg.Rules.BundlePath != "" {
		matcher, err = rules.NewMatcherFromFile(cfg.Rules.BundlePath, logger)
		if err != nil {
			// Detection does not depend on the rule layer.
			logger.Warn("ioc bundle not loaded", zap.String("path", cfg.Rules.BundlePath), zap.Error(err))
			matcher = nil
		}
	}

	return Assemble(cfg, store, embedder, vectorIndex, keywordIndex, matcher, logger), nil
}

// Assemble builds the detector, calibrator and ingester over already opened dependencies.
// keywordIndex and matcher may be nil.
func Assemble(
	cfg *config.Config,
	store storage.Storage,
	embedder embedding.Embedder,
	vectorIndex vector.Index,
	keywordIndex keyword.KeywordIndex,
	matcher *rules.Matcher,
	logger *zap.Logger,
) *Components {
	if logger == nil {
		logger = zap.NewNop()
	}
	thresholds := detector.NewThresholdStore(cfg.Detection.FallbackThreshold)
	engine := detector.NewEngine(embedder, vectorIndex, thresholds,
		detector.WithEngineLogger(logger),
		detector.WithDefaults(detector.Defaults{
			K:           cfg.Detection.K,
			ScoreMethod: cfg.Detection.ScoreMethod,
			PrintTop:    cfg.Detection.PrintTop,
			Filters:     cfg.Detection.Filters,
		}),
	)
	calibrator := detector.NewCalibrator(vectorIndex,
		detector.WithCalibratorLogger(logger),
		detector.WithWorkers(cfg.Calibration.Workers),
		detector.WithQueriesPerSecond(cfg.Calibration.QueriesPerSecond),
		detector.WithQueryTimeout(cfg.Calibration.QueryTimeout),
	)
	ingester := ingest.NewIngester(store, embedder, vectorIndex, keywordIndex, nil,
		ingest.WithLogger(logger),
		ingest.WithCategory(cfg.Watch.Category),
	)
	return &Components{
		Config:       cfg,
		Storage:      store,
		Embedder:     embedder,
		VectorIndex:  vectorIndex,
		KeywordIndex: keywordIndex,
		Thresholds:   thresholds,
		Engine:       engine,
		Calibrator:   calibrator,
		Search:       search.NewEngine(store, embedder, vectorIndex, keywordIndex),
		Ingester:     ingester,
		Matcher:      matcher,
		logger:       logger,
	}
}

// Close releases every dependency.
func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.VectorIndex != nil {
		_ = c.VectorIndex.Close()
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
}

// Start loads the stored baseline into an in-memory index and selects the initial threshold:
// a fresh calibration when calibrateNow is set, else the latest stored run, else the fallback.
func (c *Components) Start(ctx context.Context, calibrateNow bool) error {
	if c.VectorIndex.Type() == string(vector.IndexTypeMemory) {
		if _, err := c.Ingester.Restore(ctx); err != nil {
			return fmt.Errorf("failed to restore baseline: %w", err)
		}
	}
	c.initThreshold(ctx, calibrateNow)
	return nil
}

func (c *Components) initThreshold(ctx context.Context, calibrateNow bool) {
	if calibrateNow {
		if _, err := c.Calibrate(ctx, nil); err == nil {
			return
		}
	}
	latest, err := c.Storage.LatestCalibration(ctx)
	if err == nil {
		c.Thresholds.Restore(latest)
		c.logger.Info("Using stored calibration",
			zap.Int64("run", latest.ID),
			zap.Float64("threshold", latest.Threshold))
		return
	}
	if !errors.Is(err, storage.ErrNotFound) {
		c.logger.Warn("Loading stored calibration failed", zap.Error(err))
	}
	c.logger.Info("Using fallback threshold",
		zap.Float64("threshold", c.Thresholds.Get().Value))
}

// Detect scores one log line against the baseline.
func (c *Components) Detect(ctx context.Context, req *models.DetectRequest) (*models.DetectionVerdict, error) {
	return c.Engine.Detect(ctx, req)
}

// CalibrationParams merges req over the configured calibration defaults. req may be nil.
func (c *Components) CalibrationParams(req *models.CalibrationRequest) (detector.CalibrationParams, error) {
	cfg := c.Config
	p := detector.CalibrationParams{
		SampleSize: cfg.Calibration.SampleSize,
		K:          cfg.Detection.K,
		Quantile:   cfg.Calibration.Quantile,
		Filters:    cfg.Detection.Filters,
		Seed:       cfg.Calibration.Seed,
	}
	methodName := cfg.Detection.ScoreMethod
	if req != nil {
		if req.SampleSize < 0 || req.K < 0 {
			return p, fmt.Errorf("%w: sample_size and k must be positive", detector.ErrInvalidRequest)
		}
		if req.SampleSize > 0 {
			p.SampleSize = req.SampleSize
		}
		if req.K > 0 {
			p.K = req.K
		}
		if req.Quantile != nil {
			if *req.Quantile < 0 || *req.Quantile > 1 {
				return p, fmt.Errorf("%w: quantile must be within [0, 1], got %v", detector.ErrInvalidRequest, *req.Quantile)
			}
			p.Quantile = *req.Quantile
		}
		if req.ScoreMethod != "" {
			methodName = req.ScoreMethod
		}
		if req.Filters != nil {
			p.Filters = req.Filters
		}
		if req.Seed != nil {
			p.Seed = *req.Seed
		}
	}
	method, err := detector.ParseMethod(methodName)
	if err != nil {
		return p, fmt.Errorf("%w: %w", detector.ErrInvalidRequest, err)
	}
	p.Method = method
	if p.K > models.MaxK {
		p.K = models.MaxK
	}
	return p, nil
}

// Calibrate runs one calibration, records it and, unless req.Apply is false, makes it the
// active threshold. Runs are serialized. ErrCalibrationUnavailable leaves the threshold as is.
func (c *Components) Calibrate(ctx context.Context, req *models.CalibrationRequest) (*models.Calibration, error) {
	p, err := c.CalibrationParams(req)
	if err != nil {
		return nil, err
	}
	c.calMu.Lock()
	defer c.calMu.Unlock()

	cal, ok := c.Calibrator.Calibrate(ctx, p)
	if !ok {
		return nil, ErrCalibrationUnavailable
	}
	c.record(ctx, cal)
	if req == nil || req.Apply == nil || *req.Apply {
		c.Thresholds.Apply(cal)
	}
	return cal, nil
}

func (c *Components) record(ctx context.Context, cal *models.Calibration) {
	if err := c.Storage.SaveCalibration(ctx, cal); err != nil {
		c.logger.Warn("Saving calibration failed", zap.Error(err))
	}
}

// RunCalibrationLoop recalibrates every calibration.interval until ctx is done.
// It returns immediately when the interval is zero.
func (c *Components) RunCalibrationLoop(ctx context.Context) {
	p, err := c.CalibrationParams(nil)
	if err != nil {
		c.logger.Error("Calibration loop disabled", zap.Error(err))
		return
	}
	c.Calibrator.Run(ctx, c.Config.Calibration.Interval, p, c.Thresholds, func(cal *models.Calibration) {
		c.record(ctx, cal)
	})
}

// Status reports baseline and threshold state.
func (c *Components) Status(ctx context.Context) (*models.Status, error) {
	entries, err := c.Storage.CountEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("count entries: %w", err)
	}
	indexCount, err := c.VectorIndex.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count index: %w", err)
	}
	recent, err := c.Storage.ListCalibrations(ctx, 5)
	if err != nil {
		return nil, fmt.Errorf("list calibrations: %w", err)
	}
	st := &models.Status{
		Entries:       entries,
		IndexType:     c.VectorIndex.Type(),
		IndexCount:    indexCount,
		Threshold:     c.Thresholds.Get(),
		Calibrations:  recent,
		EmbeddingDims: c.Embedder.Dimensions(),
		WatchDirs:     c.Config.Watch.Directories,
	}
	if c.KeywordIndex != nil {
		if n, err := c.KeywordIndex.DocCount(); err == nil {
			st.KeywordDocs = n
		}
	}
	if du, err := storage.DiskUsageBytes(c.Config.Storage.DatabasePath, c.Config.Storage.BleveIndexPath); err == nil {
		st.DiskUsage = du
	}
	if c.Matcher != nil {
		st.Rules = c.Matcher.Len()
		st.RulesPath = c.Matcher.Path()
	}
	return st, nil
}

// CheckRules returns the IOCs found in text.
func (c *Components) CheckRules(text string) ([]rules.Match, error) {
	if c.Matcher == nil {
		return nil, ErrNoRules
	}
	return c.Matcher.Check(text), nil
}

// HuntRules searches the stored baseline for entries containing an active IOC.
func (c *Components) HuntRules(ctx context.Context, perIOC int) ([]rules.HuntHit, error) {
	if c.Matcher == nil {
		return nil, ErrNoRules
	}
	if c.KeywordIndex == nil {
		return nil, fmt.Errorf("keyword index unavailable")
	}
	return c.Matcher.Hunt(ctx, c.KeywordIndex, c.Storage, perIOC)
}

// ReloadRules re-reads the IOC bundle. The previous set stays active on failure.
func (c *Components) ReloadRules() (int, error) {
	if c.Matcher == nil {
		return 0, ErrNoRules
	}
	return c.Matcher.Reload()
}

// WatchBaseline starts watching watch.directories and ingests new or changed files.
// It returns nil when no directories are configured.
func (c *Components) WatchBaseline(ctx context.Context) (*watcher.Watcher, error) {
	cfg := c.Config.Watch
	if len(cfg.Directories) == 0 {
		return nil, nil
	}
	w := watcher.NewWatcher(cfg.Directories, cfg.Extensions, cfg.RecursiveOrDefault(),
		func(path string) {
			if _, err := c.Ingester.IngestFile(ctx, path, cfg.Extensions); err != nil {
				c.logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
			}
		},
		watcher.WithLogger(c.logger),
	)
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	w.SyncExistingFiles()
	return w, nil
}

// WatchRules reloads the IOC bundle whenever its file changes. It returns nil when rule
// watching is disabled or no bundle is loaded.
func (c *Components) WatchRules(ctx context.Context) (*watcher.Watcher, error) {
	if c.Matcher == nil || !c.Config.Rules.Watch {
		return nil, nil
	}
	w, err := watcher.NewFileWatcher(c.Matcher.Path(), func(string) {
		if _, err := c.Matcher.Reload(); err != nil {
			c.logger.Warn("ioc bundle reload failed", zap.Error(err))
		}
	}, watcher.WithLogger(c.logger))
	if err != nil {
		return nil, err
	}
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}
