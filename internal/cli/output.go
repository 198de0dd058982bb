// Package cli formats docrag command output.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/docrag/internal/models"
	"github.com/hyperjump/docrag/pkg/utils"
)

// OutputFormat selects how results are printed.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is indented JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" or "json" (case-insensitive).
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (use text or json)", s)
	}
}

// WriteRetrieval writes a retrieval response to w in the given format.
func WriteRetrieval(w io.Writer, resp *models.RetrievalResponse, format OutputFormat, excerptLen int) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	if resp.NoResults || len(resp.Results) == 0 {
		msg := resp.Message
		if msg == "" {
			msg = models.NoResultsMessage
		}
		fmt.Fprintln(w, msg)
		return nil
	}
	fmt.Fprintf(w, "%d results in %dms\n", len(resp.Results), resp.QueryTime)
	for _, r := range resp.Results {
		fmt.Fprintf(w, "\n#%d  %s  chunk %d  relevance %.4f\n", r.Rank, r.Source, r.ChunkIndex, r.Relevance)
		fmt.Fprintln(w, utils.Truncate(utils.CollapseWhitespace(r.Content), excerptLen))
	}
	return nil
}

// WriteIngest writes one ingestion outcome. label is the file path or source ID.
func WriteIngest(w io.Writer, label string, res *models.IngestResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	if res.Skipped {
		fmt.Fprintf(w, "%s: no text, nothing indexed\n", label)
		return nil
	}
	fmt.Fprintf(w, "%s: %d chunks indexed as %s (%s)\n", label, res.Chunks, res.SourceID, res.MimeType)
	return nil
}

// WriteStatus writes a status map as sorted "key: value" lines, or JSON.
func WriteStatus(w io.Writer, status map[string]any, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	writeMap(w, status, "")
	return nil
}

func writeMap(w io.Writer, m map[string]any, indent string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if sub, ok := m[k].(map[string]any); ok {
			fmt.Fprintf(w, "%s%s:\n", indent, k)
			writeMap(w, sub, indent+"  ")
			continue
		}
		fmt.Fprintf(w, "%s%s: %v\n", indent, k, m[k])
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
