// Package embedding provides text embedding providers, caching and resilience wrappers.
package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/logsentry/internal/config"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// New builds the configured provider. Remote providers are wrapped with retries and a
// circuit breaker; every provider is wrapped with an LRU cache when cfg.CacheSize > 0.
func New(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		base Embedder
		err  error
	)
	switch cfg.Provider {
	case "openai", "":
		base, err = NewOpenAIEmbedder(cfg)
	case "azure":
		base, err = NewAzureEmbedder(cfg)
	case "onnx":
		base, err = NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
	case "hashing":
		base = NewHashingEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: openai, azure, onnx, hashing)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Provider == "openai" || cfg.Provider == "azure" || cfg.Provider == "" {
		base = NewResilientEmbedder(base, ResilienceSettings{
			Name:                cfg.Provider,
			MaxRetries:          cfg.Retry.MaxRetries,
			InitialInterval:     cfg.Retry.InitialInterval,
			MaxInterval:         cfg.Retry.MaxInterval,
			ConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
			OpenTimeout:         cfg.Breaker.OpenTimeout,
		}, logger)
	}
	if cfg.CacheSize > 0 {
		cached, err := NewCachedEmbedder(base, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		base = cached
	}
	logger.Info("Embedding provider ready",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Int("dimensions", base.Dimensions()))
	return base, nil
}

// embedEach calls embed for every text in order.
func embedEach(ctx context.Context, texts []string, embed func(context.Context, string) ([]float32, error)) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}
