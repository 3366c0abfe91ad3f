package embedding

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ResilienceSettings configures retries and the circuit breaker of a ResilientEmbedder.
type ResilienceSettings struct {
	Name                string
	MaxRetries          uint64
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// ResilientEmbedder retries transient provider failures with exponential backoff and stops
// calling the provider while its circuit breaker is open.
type ResilientEmbedder struct {
	inner    Embedder
	breaker  *gobreaker.CircuitBreaker
	settings ResilienceSettings
	logger   *zap.Logger
}

// NewResilientEmbedder wraps inner.
func NewResilientEmbedder(inner Embedder, s ResilienceSettings, logger *zap.Logger) *ResilientEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = 30 * time.Second
	}
	if s.InitialInterval == 0 {
		s.InitialInterval = 500 * time.Millisecond
	}
	if s.MaxInterval == 0 {
		s.MaxInterval = 10 * time.Second
	}
	r := &ResilientEmbedder{inner: inner, settings: s, logger: logger}
	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "embedding-" + s.Name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Embedding circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isRetryable(err)
		},
	})
	return r
}

// isRetryable reports whether err is a transient provider failure.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return true
}

func (r *ResilientEmbedder) do(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.settings.InitialInterval
	b.MaxInterval = r.settings.MaxInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, r.settings.MaxRetries), ctx)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		_, err := r.breaker.Execute(func() (interface{}, error) {
			return nil, op()
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) || !isRetryable(err) {
			return backoff.Permanent(err)
		}
		r.logger.Debug("Embedding request failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		return err
	}, policy)
}

// Embed embeds text with retries.
func (r *ResilientEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := r.do(ctx, func() error {
		v, err := r.inner.Embed(ctx, text)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// EmbedBatch embeds texts with retries; a retry repeats the whole batch.
func (r *ResilientEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := r.do(ctx, func() error {
		v, err := r.inner.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// State returns the circuit breaker state name.
func (r *ResilientEmbedder) State() string {
	return r.breaker.State().String()
}

// Dimensions returns the inner embedder's dimension.
func (r *ResilientEmbedder) Dimensions() int {
	return r.inner.Dimensions()
}

// Close closes the inner embedder.
func (r *ResilientEmbedder) Close() error {
	return r.inner.Close()
}
