package models

import (
	"fmt"
	"strings"
)

// RetrievalQuery represents a retrieval request restricted to an optional allow-list of sources.
type RetrievalQuery struct {
	Query            string   `json:"query"`
	AllowedSourceIDs []string `json:"allowed_source_ids,omitempty"`
	TopK             int      `json:"top_k,omitempty"`
}

// Validate ensures the query is non-empty and normalizes TopK into [1, maxTopK].
// A zero or negative TopK becomes defaultTopK.
func (q *RetrievalQuery) Validate(defaultTopK, maxTopK int) error {
	if strings.TrimSpace(q.Query) == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.TopK <= 0 {
		q.TopK = defaultTopK
	}
	if maxTopK > 0 && q.TopK > maxTopK {
		q.TopK = maxTopK
	}
	return nil
}
