package search

import (
	"github.com/hyperjump/docrag/internal/indexer"
	"github.com/hyperjump/docrag/internal/vector"
	"github.com/hyperjump/docrag/pkg/utils"
)

// FilterAllowed drops results whose source is not in allowed. A nil allowed list
// keeps everything; an empty non-nil one keeps nothing.
func FilterAllowed(results []vector.Result, allowed []string) []vector.Result {
	if allowed == nil {
		return results
	}
	set := make(map[string]bool, len(allowed))
	for _, id := range allowed {
		set[id] = true
	}
	kept := results[:0]
	for _, r := range results {
		if set[vector.ValueString(r.Metadata[indexer.MetaSourceID])] {
			kept = append(kept, r)
		}
	}
	return kept
}

// Deduplicate removes results repeating an earlier result's ID or content, keeping the
// higher-scored one. Content is compared with whitespace collapsed. Results must be
// sorted by descending score; the order is preserved.
func Deduplicate(results []vector.Result) []vector.Result {
	seenIDs := make(map[string]bool, len(results))
	seenContent := make(map[string]bool, len(results))
	out := make([]vector.Result, 0, len(results))
	for _, r := range results {
		if seenIDs[r.ID] {
			continue
		}
		content, _ := r.Metadata[indexer.MetaContent].(string)
		key := utils.CollapseWhitespace(content)
		if key != "" && seenContent[key] {
			continue
		}
		seenIDs[r.ID] = true
		if key != "" {
			seenContent[key] = true
		}
		out = append(out, r)
	}
	return out
}
