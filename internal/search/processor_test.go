package search

import (
	"errors"
	"testing"

	"github.com/hyperjump/docrag/internal/indexer"
	"github.com/hyperjump/docrag/internal/models"
)

func TestProcessQuery_AllowList(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		want    []string
		wantNil bool
	}{
		{name: "nil", allowed: nil, wantNil: true},
		{name: "empty", allowed: []string{}, wantNil: true},
		{name: "trimmed", allowed: []string{" doc1 ", "doc2"}, want: []string{"doc1", "doc2"}},
		{name: "all blank", allowed: []string{"", "  "}, want: []string{}},
		{name: "some blank", allowed: []string{"doc1", " "}, want: []string{"doc1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &models.RetrievalQuery{Query: "  paris  ", AllowedSourceIDs: tt.allowed}
			if err := ProcessQuery(q, 5, 50); err != nil {
				t.Fatal(err)
			}
			if q.Query != "paris" {
				t.Errorf("query = %q", q.Query)
			}
			if tt.wantNil {
				if q.AllowedSourceIDs != nil {
					t.Errorf("allowed = %q, want nil", q.AllowedSourceIDs)
				}
				return
			}
			if q.AllowedSourceIDs == nil {
				t.Fatal("non-empty allow-list became nil")
			}
			if len(q.AllowedSourceIDs) != len(tt.want) {
				t.Fatalf("allowed = %q, want %q", q.AllowedSourceIDs, tt.want)
			}
			for i := range tt.want {
				if q.AllowedSourceIDs[i] != tt.want[i] {
					t.Errorf("allowed[%d] = %q, want %q", i, q.AllowedSourceIDs[i], tt.want[i])
				}
			}
		})
	}
}

func TestProcessQuery_TopK(t *testing.T) {
	q := &models.RetrievalQuery{Query: "x", TopK: 500}
	if err := ProcessQuery(q, 5, 50); err != nil {
		t.Fatal(err)
	}
	if q.TopK != 50 {
		t.Errorf("topK = %d, want 50", q.TopK)
	}
	q = &models.RetrievalQuery{Query: " "}
	if err := ProcessQuery(q, 5, 50); !errors.Is(err, indexer.ErrInvalidInput) {
		t.Errorf("blank query: got %v", err)
	}
}
