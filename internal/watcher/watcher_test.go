package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/docrag/internal/config"
	"github.com/hyperjump/docrag/internal/embedding"
	"github.com/hyperjump/docrag/internal/indexer"
	"github.com/hyperjump/docrag/internal/models"
	"github.com/hyperjump/docrag/internal/vector"
)

type recordingSink struct {
	mu       sync.Mutex
	ingested []string
	deleted  []string
	owners   map[string]bool
}

func (s *recordingSink) IngestFile(ctx context.Context, path, ownerID string, _ map[string]any) (*models.IngestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ingested = append(s.ingested, path)
	if s.owners == nil {
		s.owners = map[string]bool{}
	}
	s.owners[ownerID] = true
	return &models.IngestResult{SourceID: path, OwnerID: ownerID, Chunks: 1}, nil
}

func (s *recordingSink) DeleteFile(ctx context.Context, path, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, path)
	return nil
}

func (s *recordingSink) has(list *[]string, suffix string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range *list {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startWatcher(t *testing.T, dir string, sink Sink) {
	t.Helper()
	w, err := New(config.WatchConfig{
		Directory:  dir,
		OwnerID:    "alice",
		Extensions: []string{".txt", ".md"},
		Debounce:   50 * time.Millisecond,
	}, sink)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run: %v", err)
		}
	})
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(config.WatchConfig{OwnerID: "alice"}, &recordingSink{}); err == nil {
		t.Error("expected error without directory")
	}
	if _, err := New(config.WatchConfig{Directory: t.TempDir()}, &recordingSink{}); err == nil {
		t.Error("expected error without owner")
	}
	w, err := New(config.WatchConfig{Directory: t.TempDir(), OwnerID: "alice"}, &recordingSink{})
	if err != nil {
		t.Fatal(err)
	}
	if w.debounce != defaultDebounce {
		t.Errorf("debounce: got %v", w.debounce)
	}
}

func TestWatcher_SyncsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "hello")
	writeFile(t, filepath.Join(dir, "nested", "b.md"), "world")
	writeFile(t, filepath.Join(dir, "ignore.xyz"), "skip")

	sink := &recordingSink{}
	startWatcher(t, dir, sink)

	waitFor(t, "existing files", func() bool {
		return sink.has(&sink.ingested, "a.txt") && sink.has(&sink.ingested, "b.md")
	})
	if sink.has(&sink.ingested, "ignore.xyz") {
		t.Error("ignore.xyz should not be ingested")
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if !sink.owners["alice"] || len(sink.owners) != 1 {
		t.Errorf("owners: %v", sink.owners)
	}
}

func TestWatcher_CreateAndRemove(t *testing.T) {
	dir := t.TempDir()
	sink := &recordingSink{}
	startWatcher(t, dir, sink)
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "note.txt")
	writeFile(t, path, "first draft")
	waitFor(t, "ingest", func() bool { return sink.has(&sink.ingested, "note.txt") })

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "delete", func() bool { return sink.has(&sink.deleted, "note.txt") })
}

func TestWatcher_NewDirectory(t *testing.T) {
	dir := t.TempDir()
	sink := &recordingSink{}
	startWatcher(t, dir, sink)
	time.Sleep(100 * time.Millisecond)

	writeFile(t, filepath.Join(dir, "level1", "level2", "deep.txt"), "deep content")
	waitFor(t, "nested file", func() bool { return sink.has(&sink.ingested, "deep.txt") })
}

func TestWatcher_Debounce(t *testing.T) {
	dir := t.TempDir()
	sink := &recordingSink{}
	startWatcher(t, dir, sink)
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "burst.txt")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if _, err := f.WriteString("line\n"); err != nil {
			t.Fatal(err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	f.Close()

	waitFor(t, "ingest", func() bool { return sink.has(&sink.ingested, "burst.txt") })
	time.Sleep(200 * time.Millisecond)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	n := 0
	for _, p := range sink.ingested {
		if strings.HasSuffix(p, "burst.txt") {
			n++
		}
	}
	if n > 2 {
		t.Errorf("expected writes to be debounced, got %d ingestions", n)
	}
}

func TestWatcher_IndexerSink(t *testing.T) {
	dir := t.TempDir()
	embedder := embedding.NewMockEmbedder(16)
	defer embedder.Close()
	index := vector.NewMemoryIndex()
	idx := indexer.NewIndexer(embedder, index, nil)
	startWatcher(t, dir, idx)
	time.Sleep(100 * time.Millisecond)

	writeFile(t, filepath.Join(dir, "doc.md"), "# Title\n\nSpooled documents are indexed automatically.")
	count := func() int {
		n, err := index.Count(context.Background(), idx.IndexName(), nil)
		if err != nil {
			return -1
		}
		return n
	}
	waitFor(t, "records indexed", func() bool { return count() > 0 })

	if err := os.Remove(filepath.Join(dir, "doc.md")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "records deleted", func() bool { return count() == 0 })
}
