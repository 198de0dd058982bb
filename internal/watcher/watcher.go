// Package watcher keeps the index in sync with a spool directory: files written there
// are ingested and files removed from it are deleted from the index.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/docrag/internal/config"
	"github.com/hyperjump/docrag/internal/indexer"
	"github.com/hyperjump/docrag/internal/models"
)

const defaultDebounce = 400 * time.Millisecond

// Sink receives the files the watcher settles on. *indexer.Indexer implements it.
type Sink interface {
	IngestFile(ctx context.Context, path, ownerID string, metadata map[string]any) (*models.IngestResult, error)
	DeleteFile(ctx context.Context, path, ownerID string) error
}

// Watcher watches one spool directory tree for a single owner.
type Watcher struct {
	root       string
	ownerID    string
	extensions []string
	debounce   time.Duration
	sink       Sink
	logger     *zap.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	pending map[string]*time.Timer
	work    sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger for ingestion outcomes and watch errors.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// New creates a watcher for cfg.Directory that forwards settled files to sink.
func New(cfg config.WatchConfig, sink Sink, opts ...Option) (*Watcher, error) {
	if cfg.Directory == "" {
		return nil, errors.New("watch directory is required")
	}
	if cfg.OwnerID == "" {
		return nil, errors.New("watch owner id is required")
	}
	root, err := filepath.Abs(cfg.Directory)
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:       filepath.Clean(root),
		ownerID:    cfg.OwnerID,
		extensions: cfg.Extensions,
		debounce:   cfg.Debounce,
		sink:       sink,
		logger:     zap.NewNop(),
		pending:    make(map[string]*time.Timer),
	}
	if w.debounce <= 0 {
		w.debounce = defaultDebounce
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Root returns the absolute spool directory.
func (w *Watcher) Root() string { return w.root }

// Run creates the spool directory if missing, ingests the files already in it and then
// follows changes until ctx is cancelled. Pending work is finished before Run returns.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.root, 0755); err != nil {
		return err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.fsw = fsw
	w.mu.Unlock()
	defer w.shutdown()

	if err := w.addTree(w.root); err != nil {
		return err
	}
	w.logger.Info("watching spool directory",
		zap.String("root", w.root),
		zap.String("owner_id", w.ownerID),
		zap.Strings("extensions", w.extensions))
	w.sync(ctx, w.root)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) shutdown() {
	w.mu.Lock()
	for path, t := range w.pending {
		if t.Stop() {
			w.work.Done()
		}
		delete(w.pending, path)
	}
	fsw := w.fsw
	w.fsw = nil
	w.mu.Unlock()
	w.work.Wait()
	if fsw != nil {
		_ = fsw.Close()
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			if err := w.addTree(path); err != nil {
				w.logger.Warn("watch directory failed", zap.String("path", path), zap.Error(err))
			}
			w.sync(ctx, path)
			return
		}
		if w.accepts(path) {
			w.schedule(ctx, path)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.cancel(path)
		if w.accepts(path) {
			w.remove(ctx, path)
		}
	}
}

func (w *Watcher) accepts(path string) bool {
	return indexer.ExtensionAllowed(filepath.Ext(path), w.extensions)
}

// addTree watches dir and every directory below it.
func (w *Watcher) addTree(dir string) error {
	w.mu.Lock()
	fsw := w.fsw
	w.mu.Unlock()
	if fsw == nil {
		return nil
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
}

// sync ingests every accepted file under dir.
func (w *Watcher) sync(ctx context.Context, dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !w.accepts(path) {
			return nil
		}
		w.schedule(ctx, path)
		return nil
	})
}

// schedule ingests path once it has been quiet for the debounce interval.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil {
		return
	}
	if t, ok := w.pending[path]; ok && t.Stop() {
		w.work.Done()
	}
	w.work.Add(1)
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		defer w.work.Done()
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.ingest(ctx, path)
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		if t.Stop() {
			w.work.Done()
		}
		delete(w.pending, path)
	}
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	res, err := w.sink.IngestFile(ctx, path, w.ownerID, nil)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		w.logger.Error("spool ingest failed",
			zap.String("path", path),
			zap.String("kind", indexer.ErrorKind(err)),
			zap.Error(err))
		return
	}
	w.logger.Info("spool file ingested",
		zap.String("path", path),
		zap.String("source_id", res.SourceID),
		zap.Int("chunks", res.Chunks),
		zap.Bool("skipped", res.Skipped))
}

func (w *Watcher) remove(ctx context.Context, path string) {
	if err := w.sink.DeleteFile(ctx, path, w.ownerID); err != nil {
		w.logger.Error("spool delete failed", zap.String("path", path), zap.Error(err))
		return
	}
	w.logger.Info("spool file removed", zap.String("path", path))
}
