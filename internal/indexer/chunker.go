// Package indexer provides document chunking and the ingestion pipeline.
package indexer

import (
	"github.com/hyperjump/docrag/internal/models"
)

const (
	// DefaultChunkSize is the default maximum chunk length in runes.
	DefaultChunkSize = 512
	// DefaultChunkOverlap is the default number of runes shared by consecutive chunks.
	DefaultChunkOverlap = 50
)

// separators in priority order. A chunk is cut after the last occurrence of the first
// separator that yields an acceptable cut point.
var separators = [][]rune{
	[]rune("\n\n"),
	[]rune("\n"),
	[]rune(". "),
	[]rune("! "),
	[]rune("? "),
	[]rune("; "),
	[]rune(", "),
	[]rune(" "),
}

// Chunker splits text into overlapping chunks of at most maxSize runes, preferring
// paragraph, line, sentence and word boundaries over hard cuts.
type Chunker struct {
	maxSize int
	overlap int
}

// NewChunker creates a chunker with the given size and overlap (in runes).
// A non-positive maxSize selects DefaultChunkSize. An overlap that is negative is
// treated as zero; one that is not smaller than maxSize becomes maxSize/4.
func NewChunker(maxSize, overlap int) *Chunker {
	if maxSize <= 0 {
		maxSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxSize {
		overlap = maxSize / 4
	}
	return &Chunker{maxSize: maxSize, overlap: overlap}
}

// MaxSize returns the maximum chunk length in runes.
func (c *Chunker) MaxSize() int { return c.maxSize }

// Overlap returns the number of runes shared by consecutive chunks.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits text into chunks. Empty text yields no chunks; text no longer than
// maxSize yields exactly one.
func (c *Chunker) Chunk(text string) []models.Chunk {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	n := len(runes)
	var chunks []models.Chunk
	start := 0
	for {
		end := start + c.maxSize
		if end >= n {
			end = n
		} else {
			end = c.cutPoint(runes, start, end)
		}
		chunks = append(chunks, models.Chunk{
			Index:  len(chunks),
			Offset: start,
			Text:   string(runes[start:end]),
		})
		if end == n {
			return chunks
		}
		start = end - c.overlap
	}
}

// cutPoint returns the end of the chunk starting at start whose window ends at end.
// The cut must land in the back half of the window and past the overlap, so every
// step advances.
func (c *Chunker) cutPoint(runes []rune, start, end int) int {
	minCut := start + c.maxSize/2
	if floor := start + c.overlap + 1; floor > minCut {
		minCut = floor
	}
	for _, sep := range separators {
		for i := end - len(sep); i+len(sep) >= minCut && i >= start; i-- {
			if hasRunes(runes[i:], sep) {
				return i + len(sep)
			}
		}
	}
	return end
}

func hasRunes(s, prefix []rune) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i, r := range prefix {
		if s[i] != r {
			return false
		}
	}
	return true
}

// Reassemble rebuilds the source text from chunks produced by Chunk, dropping the
// part of each chunk that overlaps its predecessor.
func Reassemble(chunks []models.Chunk) string {
	var out []rune
	for _, ch := range chunks {
		r := []rune(ch.Text)
		if skip := len(out) - ch.Offset; skip > 0 {
			if skip > len(r) {
				skip = len(r)
			}
			r = r[skip:]
		}
		out = append(out, r...)
	}
	return string(out)
}
