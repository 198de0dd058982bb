package search

import "github.com/hyperjump/docrag/pkg/utils"

// Excerpt returns content on one line, truncated to maxLen runes.
func Excerpt(content string, maxLen int) string {
	return utils.Truncate(utils.CollapseWhitespace(content), maxLen)
}
