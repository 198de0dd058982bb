package embedding

import (
	"context"
	"errors"
	"math"
	"testing"
)

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestMockEmbedder_Embed(t *testing.T) {
	ctx := context.Background()
	e := NewMockEmbedder(64)
	a, err := e.Embed(ctx, "Vacation policy for employees")
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 64 {
		t.Fatalf("len = %d, want 64", len(a))
	}
	if n := dot(a, a); math.Abs(n-1) > 1e-5 {
		t.Errorf("embedding should be unit length, |v|^2 = %f", n)
	}
	again, _ := e.Embed(ctx, "Vacation policy for employees")
	for i := range a {
		if a[i] != again[i] {
			t.Fatal("embedding should be deterministic")
		}
	}
	related, _ := e.Embed(ctx, "employees vacation")
	unrelated, _ := e.Embed(ctx, "quarterly revenue spreadsheet")
	if dot(a, related) <= dot(a, unrelated) {
		t.Errorf("texts sharing words should be more similar: related=%f unrelated=%f", dot(a, related), dot(a, unrelated))
	}
	empty, _ := e.Embed(ctx, "  ... ")
	if n := dot(empty, empty); math.Abs(n-1) > 1e-5 {
		t.Errorf("text without words should still map to a unit vector")
	}
}

func TestMockEmbedder_EmbedBatch(t *testing.T) {
	e := NewMockEmbedder(0)
	if e.Dimensions() != 384 {
		t.Errorf("default dimensions = %d", e.Dimensions())
	}
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil || len(vecs) != 3 {
		t.Fatalf("EmbedBatch: %v, %d vectors", err, len(vecs))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.EmbedBatch(ctx, []string{"a"}); !errors.Is(err, context.Canceled) || !errors.Is(err, ErrEmbeddingService) {
		t.Errorf("canceled context: got %v", err)
	}
}
