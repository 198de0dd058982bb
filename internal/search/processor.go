package search

import (
	"fmt"
	"strings"

	"github.com/hyperjump/docrag/internal/indexer"
	"github.com/hyperjump/docrag/internal/models"
)

// ProcessQuery validates the query, trims it and applies the top-k defaults. Blank
// entries are dropped from the allow-list. A non-empty allow-list stays non-nil even
// when every entry was blank, so the query still restricts to it and matches nothing;
// an empty one becomes nil.
func ProcessQuery(q *models.RetrievalQuery, defaultTopK, maxTopK int) error {
	if err := q.Validate(defaultTopK, maxTopK); err != nil {
		return fmt.Errorf("%w: %v", indexer.ErrInvalidInput, err)
	}
	q.Query = strings.TrimSpace(q.Query)
	if len(q.AllowedSourceIDs) == 0 {
		q.AllowedSourceIDs = nil
	} else {
		allowed := make([]string, 0, len(q.AllowedSourceIDs))
		for _, id := range q.AllowedSourceIDs {
			if id = strings.TrimSpace(id); id != "" {
				allowed = append(allowed, id)
			}
		}
		q.AllowedSourceIDs = allowed
	}
	return nil
}
