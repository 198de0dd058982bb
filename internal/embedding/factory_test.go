package embedding

import (
	"context"
	"testing"

	"github.com/hyperjump/docrag/internal/config"
)

func TestNewFromConfig(t *testing.T) {
	ctx := context.Background()
	e, err := NewFromConfig(ctx, config.EmbeddingConfig{Provider: config.ProviderMock, Dimensions: 32, CacheSize: 10})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.(*CachedEmbedder); !ok {
		t.Errorf("expected cache wrapper, got %T", e)
	}
	if e.Dimensions() != 32 {
		t.Errorf("Dimensions() = %d", e.Dimensions())
	}

	e, err = NewFromConfig(ctx, config.EmbeddingConfig{Provider: config.ProviderMock, RequestsPerSecond: 5})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.(*ThrottledEmbedder); !ok {
		t.Errorf("expected throttle wrapper, got %T", e)
	}

	if _, err := NewFromConfig(ctx, config.EmbeddingConfig{Provider: "bogus"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}
