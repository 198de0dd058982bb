package vector

import (
	"fmt"

	"github.com/hyperjump/docrag/internal/config"
)

// NewFromConfig creates the index backend named by cfg.Backend.
// The memory backend loads cfg.SnapshotPath when set and saves it again on Close.
func NewFromConfig(cfg config.IndexConfig) (Index, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		idx := NewMemoryIndex()
		if cfg.SnapshotPath == "" {
			return idx, nil
		}
		if err := idx.Load(cfg.SnapshotPath); err != nil {
			return nil, fmt.Errorf("load index snapshot: %w", err)
		}
		return &snapshotIndex{MemoryIndex: idx, path: cfg.SnapshotPath}, nil
	case config.BackendSQLite:
		return NewSQLiteIndex(cfg.SQLitePath)
	case config.BackendQdrant:
		return NewQdrantIndex(QdrantConfig{
			Host:   cfg.Qdrant.Host,
			Port:   cfg.Qdrant.Port,
			APIKey: cfg.Qdrant.APIKey,
			UseTLS: cfg.Qdrant.UseTLS,
		})
	default:
		return nil, fmt.Errorf("unknown index backend: %s (supported: memory, sqlite, qdrant)", cfg.Backend)
	}
}

// snapshotIndex is a MemoryIndex persisted to a file on Close.
type snapshotIndex struct {
	*MemoryIndex
	path string
}

func (s *snapshotIndex) Close() error {
	return s.Save(s.path)
}
