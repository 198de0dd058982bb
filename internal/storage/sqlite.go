package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/docrag/internal/models"
)

// SQLiteLedger implements Ledger using SQLite.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteLedger{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sources (
		source_id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		chunks INTEGER NOT NULL,
		generation INTEGER NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (source_id, owner_id)
	);

	CREATE INDEX IF NOT EXISTS idx_sources_owner ON sources(owner_id);
	CREATE INDEX IF NOT EXISTS idx_sources_updated_at ON sources(updated_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Put inserts or replaces a ledger entry. A zero UpdatedAt is set to the current time.
func (s *SQLiteLedger) Put(ctx context.Context, rec *models.SourceRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (source_id, owner_id, mime_type, chunks, generation, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source_id, owner_id) DO UPDATE SET
		   mime_type = excluded.mime_type,
		   chunks = excluded.chunks,
		   generation = excluded.generation,
		   updated_at = excluded.updated_at`,
		rec.SourceID, rec.OwnerID, rec.MimeType, rec.Chunks, rec.Generation, rec.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to put source %s: %w", rec.SourceID, err)
	}
	return nil
}

// Get returns the entry for a source and owner, or ErrNotFound.
func (s *SQLiteLedger) Get(ctx context.Context, sourceID, ownerID string) (*models.SourceRecord, error) {
	var rec models.SourceRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT source_id, owner_id, mime_type, chunks, generation, updated_at
		 FROM sources WHERE source_id = ? AND owner_id = ?`, sourceID, ownerID,
	).Scan(&rec.SourceID, &rec.OwnerID, &rec.MimeType, &rec.Chunks, &rec.Generation, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sourceID)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Delete removes the entry for a source and owner.
func (s *SQLiteLedger) Delete(ctx context.Context, sourceID, ownerID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE source_id = ? AND owner_id = ?`, sourceID, ownerID)
	return err
}

// List returns entries, most recently updated first.
func (s *SQLiteLedger) List(ctx context.Context, ownerID string, offset, limit int) ([]*models.SourceRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT source_id, owner_id, mime_type, chunks, generation, updated_at FROM sources`
	var args []any
	if ownerID != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY updated_at DESC, source_id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.SourceRecord
	for rows.Next() {
		var rec models.SourceRecord
		if err := rows.Scan(&rec.SourceID, &rec.OwnerID, &rec.MimeType, &rec.Chunks, &rec.Generation, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// Count returns the number of entries and the sum of their chunk counts.
func (s *SQLiteLedger) Count(ctx context.Context) (int64, int64, error) {
	var sources, chunks int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(chunks), 0) FROM sources`).Scan(&sources, &chunks)
	return sources, chunks, err
}

// Close closes the database.
func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}
