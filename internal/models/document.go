// Package models defines core data structures for chunks, ingestion, and retrieval results.
package models

import "time"

// Chunk is a contiguous text segment of one source document.
type Chunk struct {
	Index  int    `json:"index"`
	Offset int    `json:"offset"` // rune offset of Text in the source text
	Text   string `json:"text"`
}

// IngestRequest is the input for ingesting one source document.
// Content carries the raw file bytes (base64 in JSON).
type IngestRequest struct {
	OwnerID  string                 `json:"owner_id"`
	MimeType string                 `json:"mime_type,omitempty"`
	Content  []byte                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// IngestResult describes the outcome of a successful ingestion.
type IngestResult struct {
	SourceID   string `json:"source_id"`
	OwnerID    string `json:"owner_id"`
	MimeType   string `json:"mime_type"`
	Chunks     int    `json:"chunks"`
	Dimensions int    `json:"dimensions,omitempty"`
	Generation int64  `json:"generation,omitempty"`
	// Skipped is true when the document had no extractable text; nothing was indexed.
	Skipped bool `json:"skipped,omitempty"`
}

// SourceRecord is a ledger entry for an ingested source document.
type SourceRecord struct {
	SourceID   string    `json:"source_id" db:"source_id"`
	OwnerID    string    `json:"owner_id" db:"owner_id"`
	MimeType   string    `json:"mime_type" db:"mime_type"`
	Chunks     int       `json:"chunks" db:"chunks"`
	Generation int64     `json:"generation" db:"generation"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}
