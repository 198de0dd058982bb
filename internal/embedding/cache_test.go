package embedding

import (
	"context"
	"testing"
)

func TestEmbeddingCache_GetSet(t *testing.T) {
	c := NewEmbeddingCache(2)
	if v, ok := c.Get("a"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.Set("a", []float32{1, 2, 3})
	v, ok := c.Get("a")
	if !ok || len(v) != 3 || v[0] != 1 {
		t.Errorf("Get: got %v, %v", v, ok)
	}
	c.Set("b", []float32{4, 5})
	c.Set("c", []float32{6}) // evicts a
	if _, ok := c.Get("a"); ok {
		t.Error("expected a to be evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("expected b to remain")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("expected c to be present")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

// countingEmbedder records the batches it receives.
type countingEmbedder struct {
	*MockEmbedder
	batches [][]string
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batches = append(c.batches, append([]string(nil), texts...))
	return c.MockEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder_EmbedBatch(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(16)}
	e := NewCachedEmbedder(inner, 10)

	first, err := e.EmbedBatch(ctx, []string{"alpha", "beta"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.EmbedBatch(ctx, []string{"beta", "gamma", "alpha"})
	if err != nil {
		t.Fatal(err)
	}
	if len(inner.batches) != 2 {
		t.Fatalf("expected 2 inner calls, got %d", len(inner.batches))
	}
	if got := inner.batches[1]; len(got) != 1 || got[0] != "gamma" {
		t.Errorf("second inner call should embed only the miss, got %v", got)
	}
	if &second[0][0] != &first[1][0] || &second[2][0] != &first[0][0] {
		t.Error("cached vectors should be reused in input order")
	}
	if _, err := e.EmbedBatch(ctx, []string{"gamma"}); err != nil {
		t.Fatal(err)
	}
	if len(inner.batches) != 2 {
		t.Errorf("all-hit batch should not call the inner embedder")
	}
	if e.Dimensions() != 16 {
		t.Errorf("Dimensions() = %d", e.Dimensions())
	}
}

// taskEmbedder embeds queries and documents into different vectors, like providers
// with separate retrieval task types.
type taskEmbedder struct {
	*MockEmbedder
	queries int
}

func (e *taskEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.queries++
	return []float32{1, 0}, nil
}

func (e *taskEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0, 1}
	}
	return out, nil
}

func TestCachedEmbedder_SeparatesQueryAndDocument(t *testing.T) {
	ctx := context.Background()
	inner := &taskEmbedder{MockEmbedder: NewMockEmbedder(2)}
	e := NewCachedEmbedder(inner, 10)

	if _, err := e.EmbedBatch(ctx, []string{"paris"}); err != nil {
		t.Fatal(err)
	}
	q, err := e.Embed(ctx, "paris")
	if err != nil {
		t.Fatal(err)
	}
	if q[0] != 1 || inner.queries != 1 {
		t.Errorf("query served from document cache: %v (inner calls %d)", q, inner.queries)
	}
	if _, err := e.Embed(ctx, "paris"); err != nil {
		t.Fatal(err)
	}
	if inner.queries != 1 {
		t.Errorf("repeated query not cached: %d inner calls", inner.queries)
	}
	docs, err := e.EmbedBatch(ctx, []string{"paris"})
	if err != nil {
		t.Fatal(err)
	}
	if docs[0][1] != 1 {
		t.Errorf("document served from query cache: %v", docs[0])
	}
}
