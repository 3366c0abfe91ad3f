package embedding

import (
	"context"
	"sync"
)

// countingEmbedder fails the first failN calls with failErr, then delegates to a HashingEmbedder.
type countingEmbedder struct {
	mu      sync.Mutex
	calls   int
	batches int
	failN   int
	failErr error
	inner   *HashingEmbedder
}

func newCountingEmbedder(failN int, failErr error) *countingEmbedder {
	return &countingEmbedder{failN: failN, failErr: failErr, inner: NewHashingEmbedder(16)}
}

func (c *countingEmbedder) fail() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.calls <= c.failN {
		return c.failErr
	}
	return nil
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := c.fail(); err != nil {
		return nil, err
	}
	return c.inner.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.batches++
	c.mu.Unlock()
	if err := c.fail(); err != nil {
		return nil, err
	}
	return c.inner.EmbedBatch(ctx, texts)
}

func (c *countingEmbedder) Dimensions() int { return c.inner.Dimensions() }
func (c *countingEmbedder) Close() error    { return nil }

func (c *countingEmbedder) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
