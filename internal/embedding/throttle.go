package embedding

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// ThrottledEmbedder paces requests to the wrapped embedder with a token bucket. It
// waits for capacity instead of failing, bounded by the caller's context.
type ThrottledEmbedder struct {
	inner   Embedder
	limiter *rate.Limiter
}

// NewThrottledEmbedder allows requestsPerSecond calls with the given burst.
func NewThrottledEmbedder(inner Embedder, requestsPerSecond float64, burst int) *ThrottledEmbedder {
	if burst < 1 {
		burst = 1
	}
	return &ThrottledEmbedder{inner: inner, limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

func (e *ThrottledEmbedder) wait(ctx context.Context) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: waiting for request capacity: %w", ErrEmbeddingService, err)
	}
	return nil
}

// Embed waits for capacity, then delegates.
func (e *ThrottledEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	return e.inner.Embed(ctx, text)
}

// EmbedBatch waits for capacity, then delegates.
func (e *ThrottledEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	return e.inner.EmbedBatch(ctx, texts)
}

// Dimensions returns the wrapped embedder's dimension.
func (e *ThrottledEmbedder) Dimensions() int { return e.inner.Dimensions() }

// Close closes the wrapped embedder.
func (e *ThrottledEmbedder) Close() error { return e.inner.Close() }
