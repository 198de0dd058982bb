package vector

import (
	"context"
	"errors"
	"testing"
)

func chunkRecord(id, source, owner string, vec ...float32) Record {
	return Record{
		ID:     id,
		Vector: vec,
		Metadata: map[string]any{
			"source_id": source,
			"owner_id":  owner,
			"content":   "text of " + id,
		},
	}
}

func sourceFilter(source, owner string) Filter {
	return Filter{Match("source_id", source), Match("owner_id", owner)}
}

// runIndexContract exercises the behavior every Index implementation shares.
func runIndexContract(t *testing.T, newIndex func(t *testing.T) Index) {
	ctx := context.Background()

	t.Run("ensure is idempotent and checks dimension", func(t *testing.T) {
		idx := newIndex(t)
		if err := idx.EnsureIndex(ctx, "docs", 3); err != nil {
			t.Fatal(err)
		}
		if err := idx.EnsureIndex(ctx, "docs", 3); err != nil {
			t.Fatalf("second EnsureIndex: %v", err)
		}
		if err := idx.EnsureIndex(ctx, "docs", 4); !errors.Is(err, ErrDimensionMismatch) {
			t.Fatalf("expected ErrDimensionMismatch, got %v", err)
		}
		if err := idx.EnsureIndex(ctx, "other", 4); err != nil {
			t.Fatalf("independent index: %v", err)
		}
	})

	t.Run("missing index", func(t *testing.T) {
		idx := newIndex(t)
		if _, err := idx.Query(ctx, "nope", []float32{1, 0}, 5, nil); !errors.Is(err, ErrIndexNotFound) {
			t.Errorf("Query: expected ErrIndexNotFound, got %v", err)
		}
		if err := idx.Upsert(ctx, "nope", nil, nil); !errors.Is(err, ErrIndexNotFound) {
			t.Errorf("Upsert: expected ErrIndexNotFound, got %v", err)
		}
		if _, err := idx.Count(ctx, "nope", nil); !errors.Is(err, ErrIndexNotFound) {
			t.Errorf("Count: expected ErrIndexNotFound, got %v", err)
		}
	})

	t.Run("query ranks by cosine", func(t *testing.T) {
		idx := newIndex(t)
		if err := idx.EnsureIndex(ctx, "docs", 3); err != nil {
			t.Fatal(err)
		}
		records := []Record{
			chunkRecord("a", "s1", "o", 1, 0, 0),
			chunkRecord("b", "s1", "o", 0.9, 0.1, 0),
			chunkRecord("c", "s2", "o", 0, 1, 0),
			chunkRecord("d", "s2", "o", -1, 0, 0),
		}
		if err := idx.Upsert(ctx, "docs", records, nil); err != nil {
			t.Fatal(err)
		}
		results, err := idx.Query(ctx, "docs", []float32{1, 0, 0}, 3, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 3 {
			t.Fatalf("expected 3 results, got %d", len(results))
		}
		want := []string{"a", "b", "c"}
		for i, r := range results {
			if r.ID != want[i] {
				t.Errorf("results[%d].ID = %s, want %s", i, r.ID, want[i])
			}
			if r.Score < -1 || r.Score > 1 {
				t.Errorf("score %f outside [-1, 1]", r.Score)
			}
			if i > 0 && r.Score > results[i-1].Score {
				t.Errorf("results not in descending order at %d", i)
			}
		}
		if results[0].Metadata["content"] != "text of a" {
			t.Errorf("metadata not returned: %v", results[0].Metadata)
		}
		if _, err := idx.Query(ctx, "docs", []float32{1, 0}, 3, nil); !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("expected ErrDimensionMismatch for short query, got %v", err)
		}
	})

	t.Run("query filter", func(t *testing.T) {
		idx := newIndex(t)
		if err := idx.EnsureIndex(ctx, "docs", 2); err != nil {
			t.Fatal(err)
		}
		records := []Record{
			chunkRecord("a", "s1", "o", 1, 0),
			chunkRecord("b", "s2", "o", 1, 0.1),
			chunkRecord("c", "s3", "o", 1, 0.2),
		}
		if err := idx.Upsert(ctx, "docs", records, nil); err != nil {
			t.Fatal(err)
		}
		results, err := idx.Query(ctx, "docs", []float32{1, 0}, 10, Filter{MatchAny("source_id", "s2", "s3")})
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 2 {
			t.Fatalf("expected 2 results, got %d", len(results))
		}
		for _, r := range results {
			if r.Metadata["source_id"] == "s1" {
				t.Errorf("filtered source returned: %s", r.ID)
			}
		}
		results, err = idx.Query(ctx, "docs", []float32{1, 0}, 10, Filter{MatchAny("source_id")})
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 0 {
			t.Errorf("empty allow-list should match nothing, got %d", len(results))
		}
	})

	t.Run("upsert replaces by filter", func(t *testing.T) {
		idx := newIndex(t)
		if err := idx.EnsureIndex(ctx, "docs", 2); err != nil {
			t.Fatal(err)
		}
		first := []Record{
			chunkRecord("s1-0", "s1", "o1", 1, 0),
			chunkRecord("s1-1", "s1", "o1", 0, 1),
			chunkRecord("s1-2", "s1", "o1", 1, 1),
		}
		if err := idx.Upsert(ctx, "docs", first, sourceFilter("s1", "o1")); err != nil {
			t.Fatal(err)
		}
		others := []Record{
			chunkRecord("s1-other", "s1", "o2", 1, 0),
			chunkRecord("s2-0", "s2", "o1", 1, 0),
		}
		if err := idx.Upsert(ctx, "docs", others, nil); err != nil {
			t.Fatal(err)
		}
		second := []Record{chunkRecord("s1-new", "s1", "o1", 1, 0)}
		if err := idx.Upsert(ctx, "docs", second, sourceFilter("s1", "o1")); err != nil {
			t.Fatal(err)
		}
		if n, _ := idx.Count(ctx, "docs", sourceFilter("s1", "o1")); n != 1 {
			t.Errorf("expected 1 record for s1/o1, got %d", n)
		}
		if n, _ := idx.Count(ctx, "docs", nil); n != 3 {
			t.Errorf("expected 3 records in total, got %d", n)
		}
	})

	t.Run("upsert overwrites same id", func(t *testing.T) {
		idx := newIndex(t)
		if err := idx.EnsureIndex(ctx, "docs", 2); err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 2; i++ {
			if err := idx.Upsert(ctx, "docs", []Record{chunkRecord("a", "s1", "o", 1, 0)}, nil); err != nil {
				t.Fatal(err)
			}
		}
		if n, _ := idx.Count(ctx, "docs", nil); n != 1 {
			t.Errorf("expected 1 record, got %d", n)
		}
	})

	t.Run("upsert rejects wrong dimension without writing", func(t *testing.T) {
		idx := newIndex(t)
		if err := idx.EnsureIndex(ctx, "docs", 2); err != nil {
			t.Fatal(err)
		}
		if err := idx.Upsert(ctx, "docs", []Record{chunkRecord("a", "s1", "o", 1, 0)}, nil); err != nil {
			t.Fatal(err)
		}
		bad := []Record{
			chunkRecord("b", "s1", "o", 1, 0),
			chunkRecord("c", "s1", "o", 1, 0, 0),
		}
		err := idx.Upsert(ctx, "docs", bad, sourceFilter("s1", "o"))
		if !errors.Is(err, ErrDimensionMismatch) {
			t.Fatalf("expected ErrDimensionMismatch, got %v", err)
		}
		n, _ := idx.Count(ctx, "docs", nil)
		if n != 1 {
			t.Errorf("failed upsert changed the index: %d records", n)
		}
	})

	t.Run("delete by filter", func(t *testing.T) {
		idx := newIndex(t)
		if err := idx.EnsureIndex(ctx, "docs", 2); err != nil {
			t.Fatal(err)
		}
		records := []Record{
			chunkRecord("a", "s1", "o1", 1, 0),
			chunkRecord("b", "s1", "o2", 1, 0),
			chunkRecord("c", "s2", "o1", 1, 0),
		}
		if err := idx.Upsert(ctx, "docs", records, nil); err != nil {
			t.Fatal(err)
		}
		if err := idx.DeleteByFilter(ctx, "docs", nil); !errors.Is(err, ErrEmptyFilter) {
			t.Errorf("expected ErrEmptyFilter, got %v", err)
		}
		if err := idx.DeleteByFilter(ctx, "docs", sourceFilter("s1", "o1")); err != nil {
			t.Fatal(err)
		}
		if n, _ := idx.Count(ctx, "docs", nil); n != 2 {
			t.Errorf("expected 2 records left, got %d", n)
		}
		if n, _ := idx.Count(ctx, "docs", Filter{Match("source_id", "s1")}); n != 1 {
			t.Errorf("expected s1/o2 to survive, got %d", n)
		}
	})

	t.Run("numeric metadata filters as text", func(t *testing.T) {
		idx := newIndex(t)
		if err := idx.EnsureIndex(ctx, "docs", 2); err != nil {
			t.Fatal(err)
		}
		r := chunkRecord("a", "s1", "o", 1, 0)
		r.Metadata["chunk_index"] = 3
		if err := idx.Upsert(ctx, "docs", []Record{r}, nil); err != nil {
			t.Fatal(err)
		}
		if n, _ := idx.Count(ctx, "docs", Filter{Match("chunk_index", "3")}); n != 1 {
			t.Errorf("expected numeric match, got %d", n)
		}
	})

	t.Run("boolean metadata filters as true and false", func(t *testing.T) {
		idx := newIndex(t)
		if err := idx.EnsureIndex(ctx, "docs", 2); err != nil {
			t.Fatal(err)
		}
		a := chunkRecord("a", "s1", "o", 1, 0)
		a.Metadata["reviewed"] = true
		b := chunkRecord("b", "s2", "o", 0, 1)
		b.Metadata["reviewed"] = false
		if err := idx.Upsert(ctx, "docs", []Record{a, b}, nil); err != nil {
			t.Fatal(err)
		}
		for _, tc := range []struct {
			value string
			want  int
		}{{"true", 1}, {"false", 1}, {"1", 0}, {"0", 0}} {
			if n, _ := idx.Count(ctx, "docs", Filter{Match("reviewed", tc.value)}); n != tc.want {
				t.Errorf("reviewed=%s: got %d records, want %d", tc.value, n, tc.want)
			}
		}
		hits, err := idx.Query(ctx, "docs", []float32{1, 0}, 5, Filter{Match("reviewed", "true")})
		if err != nil {
			t.Fatal(err)
		}
		if len(hits) != 1 || hits[0].ID != "a" {
			t.Errorf("query with boolean filter returned %v", hits)
		}
	})
}

func TestFilter_Matches(t *testing.T) {
	meta := map[string]any{"source_id": "s1", "owner_id": "o1", "page": float64(2), "draft": false}
	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", nil, true},
		{"single", Filter{Match("source_id", "s1")}, true},
		{"any", Filter{MatchAny("source_id", "s0", "s1")}, true},
		{"conjunction", Filter{Match("source_id", "s1"), Match("owner_id", "o2")}, false},
		{"missing key", Filter{Match("tenant", "t")}, false},
		{"number", Filter{Match("page", "2")}, true},
		{"bool", Filter{Match("draft", "false")}, true},
		{"no values", Filter{MatchAny("source_id")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(meta); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}
