package vector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// metadataKeyRe restricts filter keys to names that are safe in a JSON path.
var metadataKeyRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// SQLiteIndex stores records in SQLite with metadata as JSON. Filters are evaluated by
// SQLite's JSON functions; similarity is computed in process over the filtered rows.
// Upsert runs in one transaction and is atomic and durable.
type SQLiteIndex struct {
	db *sql.DB
}

// NewSQLiteIndex opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteIndex(dbPath string) (*SQLiteIndex, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initVectorSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteIndex{db: db}, nil
}

func initVectorSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS vector_indexes (
		name TEXT PRIMARY KEY,
		dimension INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS vector_records (
		index_name TEXT NOT NULL,
		id TEXT NOT NULL,
		vector BLOB NOT NULL,
		metadata TEXT NOT NULL,
		PRIMARY KEY (index_name, id),
		FOREIGN KEY (index_name) REFERENCES vector_indexes(name) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_vector_records_source
		ON vector_records(index_name, json_extract(metadata, '$.source_id'));
	`
	_, err := db.Exec(schema)
	return err
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteIndex) dimension(ctx context.Context, q querier, name string) (int, error) {
	var dim int
	err := q.QueryRowContext(ctx, `SELECT dimension FROM vector_indexes WHERE name = ?`, name).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, notFound(name)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read index %q: %w", name, err)
	}
	return dim, nil
}

// EnsureIndex creates the index row if needed.
func (s *SQLiteIndex) EnsureIndex(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("dimensions must be positive")
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO vector_indexes (name, dimension) VALUES (?, ?)`, name, dimension); err != nil {
		return fmt.Errorf("failed to create index %q: %w", name, err)
	}
	dim, err := s.dimension(ctx, s.db, name)
	if err != nil {
		return err
	}
	if dim != dimension {
		return fmt.Errorf("%w: index %q has dimension %d, requested %d", ErrDimensionMismatch, name, dim, dimension)
	}
	return nil
}

// filterSQL renders f as a SQL condition over the metadata column.
func filterSQL(f Filter) (string, []any, error) {
	if len(f) == 0 {
		return "1=1", nil, nil
	}
	parts := make([]string, 0, len(f))
	var args []any
	for _, c := range f {
		if !metadataKeyRe.MatchString(c.Key) {
			return "", nil, fmt.Errorf("invalid filter key %q", c.Key)
		}
		if len(c.Values) == 0 {
			parts = append(parts, "0=1")
			continue
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(c.Values)), ",")
		// json_extract yields 1/0 for booleans; render them the way ValueString does.
		parts = append(parts, fmt.Sprintf(`(CASE json_type(metadata, ?) WHEN 'true' THEN 'true' WHEN 'false' THEN 'false'
			ELSE CAST(json_extract(metadata, ?) AS TEXT) END) IN (%s)`, placeholders))
		args = append(args, "$."+c.Key, "$."+c.Key)
		for _, v := range c.Values {
			args = append(args, v)
		}
	}
	return strings.Join(parts, " AND "), args, nil
}

// Upsert deletes records matching deleteFilter and inserts records in one transaction.
func (s *SQLiteIndex) Upsert(ctx context.Context, name string, records []Record, deleteFilter Filter) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	dim, err := s.dimension(ctx, tx, name)
	if err != nil {
		return err
	}
	for _, r := range records {
		if err := checkDimension(name, dim, r.Vector); err != nil {
			return err
		}
		if !finite(r.Vector) {
			return fmt.Errorf("record %s: vector has non-finite components", r.ID)
		}
	}
	if len(deleteFilter) > 0 {
		cond, args, err := filterSQL(deleteFilter)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM vector_records WHERE index_name = ? AND `+cond, append([]any{name}, args...)...); err != nil {
			return fmt.Errorf("failed to delete records: %w", err)
		}
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO vector_records (index_name, id, vector, metadata) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, name, r.ID, float32SliceToBytes(r.Vector), string(meta)); err != nil {
			return fmt.Errorf("failed to insert record %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Query scans the records matching filter and returns the topK most similar.
func (s *SQLiteIndex) Query(ctx context.Context, name string, vector []float32, topKCount int, filter Filter) ([]Result, error) {
	dim, err := s.dimension(ctx, s.db, name)
	if err != nil {
		return nil, err
	}
	if err := checkDimension(name, dim, vector); err != nil {
		return nil, err
	}
	if topKCount <= 0 {
		return nil, nil
	}
	cond, args, err := filterSQL(filter)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, vector, metadata FROM vector_records WHERE index_name = ? AND `+cond,
		append([]any{name}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()
	var results []Result
	for rows.Next() {
		var (
			id       string
			vecBytes []byte
			metaJSON string
		)
		if err := rows.Scan(&id, &vecBytes, &metaJSON); err != nil {
			return nil, err
		}
		var meta map[string]any
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata of %s: %w", id, err)
		}
		results = append(results, Result{
			ID:       id,
			Score:    CosineSimilarity(vector, bytesToFloat32Slice(vecBytes)),
			Metadata: meta,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return topK(results, topKCount), nil
}

// DeleteByFilter removes records matching filter.
func (s *SQLiteIndex) DeleteByFilter(ctx context.Context, name string, filter Filter) error {
	if len(filter) == 0 {
		return ErrEmptyFilter
	}
	if _, err := s.dimension(ctx, s.db, name); err != nil {
		return err
	}
	cond, args, err := filterSQL(filter)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM vector_records WHERE index_name = ? AND `+cond, append([]any{name}, args...)...); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	return nil
}

// Count returns the number of records matching filter.
func (s *SQLiteIndex) Count(ctx context.Context, name string, filter Filter) (int, error) {
	if _, err := s.dimension(ctx, s.db, name); err != nil {
		return 0, err
	}
	cond, args, err := filterSQL(filter)
	if err != nil {
		return 0, err
	}
	var n int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vector_records WHERE index_name = ? AND `+cond,
		append([]any{name}, args...)...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}
