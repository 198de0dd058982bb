// Package embedding provides text embedding providers, caching and client-side pacing.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Embedder produces vector embeddings for text. EmbedBatch returns one vector per
// input, in input order, all of the same length.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the vector length, or 0 if it is not known until the first call.
	Dimensions() int
	Close() error
}

var (
	// ErrEmbeddingService is a transport, auth or provider failure. Retryable with backoff.
	ErrEmbeddingService = errors.New("embedding service error")
	// ErrRateLimited is a throttling signal from the provider. Retryable after a delay.
	ErrRateLimited = errors.New("embedding rate limited")
)

// RateLimitError is returned when a provider throttles a request. It matches
// ErrRateLimited with errors.Is and carries the provider's retry hint, if any.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Provider, ErrRateLimited)
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RateLimitError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRateLimited}
	}
	return []error{ErrRateLimited, e.Err}
}

// serviceError wraps err as ErrEmbeddingService, keeping err (for example a context
// deadline) reachable through errors.Is.
func serviceError(provider string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrEmbeddingService, provider, err)
}

// checkVectors verifies that a provider returned want non-empty vectors of one length.
func checkVectors(provider string, want int, vecs [][]float32) error {
	if len(vecs) != want {
		return fmt.Errorf("%w: %s: got %d vectors for %d inputs", ErrEmbeddingService, provider, len(vecs), want)
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return fmt.Errorf("%w: %s: empty vector at index %d", ErrEmbeddingService, provider, i)
		}
		if len(v) != len(vecs[0]) {
			return fmt.Errorf("%w: %s: vector %d has length %d, want %d", ErrEmbeddingService, provider, i, len(v), len(vecs[0]))
		}
	}
	return nil
}

// batches splits texts into consecutive slices of at most size elements.
func batches(texts []string, size int) [][]string {
	if size <= 0 || len(texts) <= size {
		return [][]string{texts}
	}
	var out [][]string
	for start := 0; start < len(texts); start += size {
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		out = append(out, texts[start:end])
	}
	return out
}
