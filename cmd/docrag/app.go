package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/docrag/internal/config"
	"github.com/hyperjump/docrag/internal/embedding"
	"github.com/hyperjump/docrag/internal/indexer"
	"github.com/hyperjump/docrag/internal/lock"
	"github.com/hyperjump/docrag/internal/observability"
	"github.com/hyperjump/docrag/internal/search"
	"github.com/hyperjump/docrag/internal/storage"
	"github.com/hyperjump/docrag/internal/vector"
)

// loadConfig loads the config at path. With no path it uses ./config.yaml when present,
// so commands run from a project directory pick up the project's settings.
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		path = os.Getenv("DOCRAG_CONFIG")
	}
	if path == "" {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				path = fallback
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// components holds everything a command needs, built from one config.
type components struct {
	Config    *config.Config
	Logger    *zap.Logger
	Embedder  embedding.Embedder
	Index     vector.Index
	Locker    lock.Locker
	Ledger    *storage.SQLiteLedger
	Tracer    *observability.TracerProvider
	Indexer   *indexer.Indexer
	Retriever *search.Retriever
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *components, err error) {
	c := &components{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	c.Tracer, err = observability.InitTracing(ctx, cfg.Tracing, version)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	c.Embedder, err = embedding.NewFromConfig(ctx, cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Index, err = vector.NewFromConfig(cfg.Index)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	c.Locker, err = lock.New(ctx, cfg.Lock)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize lock: %w", err)
	}
	c.Ledger, err = storage.NewSQLiteLedger(cfg.Ledger.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ledger: %w", err)
	}

	c.Indexer = indexer.NewIndexer(c.Embedder, c.Index,
		indexer.NewChunker(cfg.Chunking.MaxSize, cfg.Chunking.Overlap),
		indexer.WithIndexName(cfg.Index.Name),
		indexer.WithLocker(c.Locker),
		indexer.WithLedger(c.Ledger),
		indexer.WithLogger(logger),
	)
	c.Retriever = search.NewRetriever(c.Embedder, c.Index,
		search.WithIndexName(cfg.Index.Name),
		search.WithTopK(cfg.Retrieval.DefaultTopK, cfg.Retrieval.MaxTopK),
		search.WithLogger(logger),
	)
	logger.Debug("components initialized",
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("index_backend", cfg.Index.Backend),
		zap.String("index_name", cfg.Index.Name),
		zap.Bool("redis_lock", cfg.Lock.RedisAddr != ""))
	return c, nil
}

// Close releases every component that was created, logging failures.
func (c *components) Close() {
	closeWith := func(name string, fn func() error) {
		if err := fn(); err != nil && c.Logger != nil {
			c.Logger.Warn("close failed", zap.String("component", name), zap.Error(err))
		}
	}
	if c.Ledger != nil {
		closeWith("ledger", c.Ledger.Close)
	}
	if c.Locker != nil {
		closeWith("lock", c.Locker.Close)
	}
	if c.Index != nil {
		closeWith("vector index", c.Index.Close)
	}
	if c.Embedder != nil {
		closeWith("embedder", c.Embedder.Close)
	}
	if c.Tracer != nil {
		closeWith("tracing", func() error { return c.Tracer.Shutdown(context.Background()) })
	}
}
