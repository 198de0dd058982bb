package indexer

import (
	"context"
	"strings"
	"testing"

	"github.com/hyperjump/docrag/internal/embedding"
	"github.com/hyperjump/docrag/internal/vector"
)

func BenchmarkChunk(b *testing.B) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 2000)
	c := NewChunker(512, 50)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Chunk(text)
	}
}

func BenchmarkIngest(b *testing.B) {
	embedder := embedding.NewMockEmbedder(384)
	defer embedder.Close()
	idx := NewIndexer(embedder, vector.NewMemoryIndex(), nil)
	content := []byte(strings.Repeat("Benchmark document text for ingestion. ", 200))
	meta := map[string]any{MetaMimeType: "text/plain"}
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := idx.Ingest(ctx, "doc", "owner", content, meta); err != nil {
			b.Fatal(err)
		}
	}
}
