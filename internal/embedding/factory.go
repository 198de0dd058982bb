package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/docrag/internal/config"
)

// NewFromConfig builds the configured provider, wrapped with client-side pacing when
// requests_per_second is set and with an LRU cache when cache_size is positive.
func NewFromConfig(ctx context.Context, cfg config.EmbeddingConfig) (Embedder, error) {
	var e Embedder
	switch cfg.Provider {
	case config.ProviderMock, "":
		e = NewMockEmbedder(cfg.Dimensions)
	case config.ProviderOpenAI:
		oe, err := NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			MaxBatch:   cfg.MaxBatch,
			Timeout:    cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		e = oe
	case config.ProviderGemini:
		ge, err := NewGeminiEmbedder(ctx, GeminiConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			MaxBatch:   cfg.MaxBatch,
			Timeout:    cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		e = ge
	case config.ProviderONNX:
		oe, err := NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		e = oe
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
	if cfg.RequestsPerSecond > 0 {
		e = NewThrottledEmbedder(e, cfg.RequestsPerSecond, 1)
	}
	if cfg.CacheSize > 0 {
		e = NewCachedEmbedder(e, cfg.CacheSize)
	}
	return e, nil
}
