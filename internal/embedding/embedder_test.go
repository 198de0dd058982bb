package embedding

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRateLimitError(t *testing.T) {
	cause := errors.New("429 Too Many Requests")
	var err error = &RateLimitError{Provider: "openai", RetryAfter: 3 * time.Second, Err: cause}
	wrapped := fmt.Errorf("failed to generate embeddings: %w", err)

	if !errors.Is(wrapped, ErrRateLimited) {
		t.Error("should match ErrRateLimited")
	}
	if errors.Is(wrapped, ErrEmbeddingService) {
		t.Error("rate limiting must be distinct from ErrEmbeddingService")
	}
	if !errors.Is(wrapped, cause) {
		t.Error("should keep the cause")
	}
	var rle *RateLimitError
	if !errors.As(wrapped, &rle) || rle.RetryAfter != 3*time.Second {
		t.Errorf("errors.As: %+v", rle)
	}
	if got := err.Error(); got != "openai: embedding rate limited (retry after 3s): 429 Too Many Requests" {
		t.Errorf("Error() = %q", got)
	}
}

func TestCheckVectors(t *testing.T) {
	tests := []struct {
		name    string
		want    int
		vecs    [][]float32
		wantErr bool
	}{
		{"ok", 2, [][]float32{{1, 2}, {3, 4}}, false},
		{"count mismatch", 3, [][]float32{{1, 2}, {3, 4}}, true},
		{"empty vector", 2, [][]float32{{1, 2}, {}}, true},
		{"length mismatch", 2, [][]float32{{1, 2}, {3}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkVectors("test", tt.want, tt.vecs)
			if (err != nil) != tt.wantErr {
				t.Fatalf("checkVectors() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrEmbeddingService) {
				t.Errorf("expected ErrEmbeddingService, got %v", err)
			}
		})
	}
}

func TestBatches(t *testing.T) {
	texts := []string{"a", "b", "c", "d", "e"}
	got := batches(texts, 2)
	if len(got) != 3 || len(got[0]) != 2 || len(got[2]) != 1 || got[2][0] != "e" {
		t.Errorf("batches(5, 2) = %v", got)
	}
	if got := batches(texts, 0); len(got) != 1 || len(got[0]) != 5 {
		t.Errorf("batches(5, 0) = %v", got)
	}
}
