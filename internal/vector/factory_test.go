package vector

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperjump/docrag/internal/config"
)

func TestNewFromConfig(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		cfg     config.IndexConfig
		wantErr bool
	}{
		{"default", config.IndexConfig{}, false},
		{"memory", config.IndexConfig{Backend: config.BackendMemory}, false},
		{"sqlite", config.IndexConfig{Backend: config.BackendSQLite, SQLitePath: filepath.Join(dir, "index.db")}, false},
		{"unknown", config.IndexConfig{Backend: "faiss"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, err := NewFromConfig(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			defer idx.Close()
			if err := idx.EnsureIndex(context.Background(), "docs", 3); err != nil {
				t.Fatalf("EnsureIndex: %v", err)
			}
		})
	}
}

func TestNewFromConfig_MemorySnapshot(t *testing.T) {
	ctx := context.Background()
	cfg := config.IndexConfig{Backend: config.BackendMemory, SnapshotPath: filepath.Join(t.TempDir(), "index.bin")}

	idx, err := NewFromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.EnsureIndex(ctx, "docs", 2); err != nil {
		t.Fatal(err)
	}
	if err := idx.Upsert(ctx, "docs", []Record{chunkRecord("a", "s1", "o", 1, 0)}, nil); err != nil {
		t.Fatal(err)
	}
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}

	idx, err = NewFromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	if n, err := idx.Count(ctx, "docs", nil); err != nil || n != 1 {
		t.Fatalf("Count after reopen = %d, %v", n, err)
	}
}
