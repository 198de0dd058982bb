// Package storage persists the ledger of ingested sources.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/docrag/internal/models"
)

// ErrNotFound means no ledger entry exists for the source and owner.
var ErrNotFound = errors.New("source not found")

// Ledger records which sources are indexed, for status reporting and deletes.
type Ledger interface {
	// Put inserts or replaces the entry for rec.SourceID and rec.OwnerID.
	Put(ctx context.Context, rec *models.SourceRecord) error
	Get(ctx context.Context, sourceID, ownerID string) (*models.SourceRecord, error)
	// Delete removes the entry. Deleting a missing entry is not an error.
	Delete(ctx context.Context, sourceID, ownerID string) error
	// List returns entries ordered by most recent update. An empty ownerID lists all owners.
	List(ctx context.Context, ownerID string, offset, limit int) ([]*models.SourceRecord, error)
	Count(ctx context.Context) (sources int64, chunks int64, err error)
	Close() error
}
