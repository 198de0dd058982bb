// Package indexer turns source documents into chunked, embedded vector records.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/docrag/internal/embedding"
	"github.com/hyperjump/docrag/internal/extract"
	"github.com/hyperjump/docrag/internal/fileid"
	"github.com/hyperjump/docrag/internal/lock"
	"github.com/hyperjump/docrag/internal/metrics"
	"github.com/hyperjump/docrag/internal/models"
	"github.com/hyperjump/docrag/internal/observability"
	"github.com/hyperjump/docrag/internal/storage"
	"github.com/hyperjump/docrag/internal/vector"
	"github.com/hyperjump/docrag/pkg/utils"
)

// ErrInvalidInput means a required argument was missing or malformed.
var ErrInvalidInput = errors.New("invalid input")

// Metadata keys set by the pipeline on every record. Caller metadata with the same
// keys is overwritten.
const (
	MetaSourceID   = "source_id"
	MetaOwnerID    = "owner_id"
	MetaChunkIndex = "chunk_index"
	MetaContent    = "content"
	MetaGeneration = "generation"
	MetaMimeType   = "mime_type"
	MetaSourcePath = "source_path"
)

// DefaultIndexName is the collection used when none is configured.
const DefaultIndexName = "documents"

// chunkNamespace scopes chunk record IDs.
var chunkNamespace = uuid.MustParse("a3c1f0f2-9d1b-5c4e-8f7a-2b6d0e9c4a17")

// Indexer runs extract, chunk, embed and upsert for one source at a time.
type Indexer struct {
	embedder  embedding.Embedder
	index     vector.Index
	indexName string
	chunker   *Chunker
	extractor *extract.Extractor
	locker    lock.Locker
	ledger    storage.Ledger // optional
	clock     func() time.Time
	logger    *zap.Logger // optional; when set, logs debug events
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithClock sets the clock that supplies ingestion generations.
func WithClock(clock func() time.Time) IndexerOption {
	return func(idx *Indexer) { idx.clock = clock }
}

// WithLocker replaces the default in-process locker.
func WithLocker(l lock.Locker) IndexerOption {
	return func(idx *Indexer) { idx.locker = l }
}

// WithLedger records successful ingestions and deletions in l.
func WithLedger(l storage.Ledger) IndexerOption {
	return func(idx *Indexer) { idx.ledger = l }
}

// WithIndexName sets the vector index collection name.
func WithIndexName(name string) IndexerOption {
	return func(idx *Indexer) {
		if name != "" {
			idx.indexName = name
		}
	}
}

// WithExtractor replaces the default extractor.
func WithExtractor(e *extract.Extractor) IndexerOption {
	return func(idx *Indexer) { idx.extractor = e }
}

// NewIndexer creates an indexer with the given dependencies. A nil chunker uses the
// default chunk size and overlap.
func NewIndexer(embedder embedding.Embedder, index vector.Index, chunker *Chunker, opts ...IndexerOption) *Indexer {
	if chunker == nil {
		chunker = NewChunker(DefaultChunkSize, DefaultChunkOverlap)
	}
	idx := &Indexer{
		embedder:  embedder,
		index:     index,
		indexName: DefaultIndexName,
		chunker:   chunker,
		extractor: extract.NewExtractor(),
		locker:    lock.NewLocalLocker(),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IndexName returns the vector index collection name.
func (idx *Indexer) IndexName() string { return idx.indexName }

// ChunkID returns the deterministic record ID of one chunk of one ingestion.
func ChunkID(sourceID string, generation int64, index int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s/%d/%d", sourceID, generation, index))).String()
}

// MimeTypeFromMetadata returns the declared MIME type under "mime_type", "mimeType" or
// "content_type", or extract.MimeUnknown.
func MimeTypeFromMetadata(metadata map[string]any) string {
	for _, key := range []string{MetaMimeType, "mimeType", "content_type"} {
		if s, ok := metadata[key].(string); ok && strings.TrimSpace(s) != "" {
			return extract.NormalizeMimeType(s)
		}
	}
	return extract.MimeUnknown
}

func lockKey(sourceID, ownerID string) string {
	return ownerID + "\x00" + sourceID
}

func ownerFilter(sourceID, ownerID string) vector.Filter {
	return vector.Filter{vector.Match(MetaSourceID, sourceID), vector.Match(MetaOwnerID, ownerID)}
}

// Ingest indexes content as the source sourceID owned by ownerID, replacing every
// record from an earlier ingestion of the same source and owner. Text that is empty
// after extraction succeeds as skipped and leaves no records for the source. Nothing is written unless every step before
// the upsert succeeds.
func (idx *Indexer) Ingest(ctx context.Context, sourceID, ownerID string, content []byte, metadata map[string]any) (res *models.IngestResult, err error) {
	if strings.TrimSpace(sourceID) == "" || strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: source id and owner id are required", ErrInvalidInput)
	}
	mimeType := MimeTypeFromMetadata(metadata)

	start := time.Now()
	ctx, span := observability.StartIngestSpan(ctx, sourceID, ownerID, mimeType)
	defer func() {
		observability.RecordError(span, err)
		span.End()
		outcome, chunks := "indexed", 0
		switch {
		case err != nil:
			outcome = ErrorKind(err)
		case res.Skipped:
			outcome = "skipped"
		default:
			chunks = res.Chunks
		}
		metrics.RecordIngestion(outcome, chunks, time.Since(start))
	}()

	unlock, err := idx.locker.Lock(ctx, lockKey(sourceID, ownerID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock source %s: %w", sourceID, err)
	}
	defer unlock()

	text, err := idx.extractor.ExtractText(content, mimeType)
	if err != nil {
		return nil, fmt.Errorf("failed to extract text: %w", err)
	}
	res = &models.IngestResult{SourceID: sourceID, OwnerID: ownerID, MimeType: mimeType}
	if utils.CollapseWhitespace(text) == "" {
		// An earlier generation of the source must not outlive an empty re-ingestion.
		if err := idx.index.DeleteByFilter(ctx, idx.indexName, ownerFilter(sourceID, ownerID)); err != nil && !errors.Is(err, vector.ErrIndexNotFound) {
			return nil, fmt.Errorf("failed to clear previous records: %w", err)
		}
		if idx.ledger != nil {
			if lerr := idx.ledger.Delete(ctx, sourceID, ownerID); lerr != nil && idx.logger != nil {
				idx.logger.Warn("indexer ledger update failed", zap.String("source_id", sourceID), zap.Error(lerr))
			}
		}
		res.Skipped = true
		if idx.logger != nil {
			idx.logger.Debug("indexer skipping empty document", zap.String("source_id", sourceID))
		}
		return res, nil
	}

	chunks := idx.chunker.Chunk(text)
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := idx.embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	dim := len(vectors[0])

	if err := idx.index.EnsureIndex(ctx, idx.indexName, dim); err != nil {
		return nil, fmt.Errorf("failed to ensure index: %w", err)
	}

	generation := idx.clock().UnixNano()
	records := make([]vector.Record, len(chunks))
	for i, ch := range chunks {
		meta := make(map[string]any, len(metadata)+6)
		for k, v := range metadata {
			meta[k] = v
		}
		meta[MetaSourceID] = sourceID
		meta[MetaOwnerID] = ownerID
		meta[MetaChunkIndex] = ch.Index
		meta[MetaContent] = ch.Text
		// Stored as a string: UnixNano exceeds the 53 bits a JSON number keeps.
		meta[MetaGeneration] = strconv.FormatInt(generation, 10)
		meta[MetaMimeType] = mimeType
		records[i] = vector.Record{
			ID:       ChunkID(sourceID, generation, ch.Index),
			Vector:   vectors[i],
			Metadata: meta,
		}
	}

	upsertStart := time.Now()
	uctx, uspan := observability.StartClientSpan(ctx, "vector", "upsert")
	err = idx.index.Upsert(uctx, idx.indexName, records, ownerFilter(sourceID, ownerID))
	observability.RecordError(uspan, err)
	uspan.End()
	metrics.CaptureDependencyLatency("vector_upsert", time.Since(upsertStart))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert records: %w", err)
	}

	res.Chunks = len(records)
	res.Dimensions = dim
	res.Generation = generation
	if idx.ledger != nil {
		rec := &models.SourceRecord{
			SourceID:   sourceID,
			OwnerID:    ownerID,
			MimeType:   mimeType,
			Chunks:     res.Chunks,
			Generation: generation,
		}
		if lerr := idx.ledger.Put(ctx, rec); lerr != nil && idx.logger != nil {
			idx.logger.Warn("indexer ledger update failed", zap.String("source_id", sourceID), zap.Error(lerr))
		}
	}
	if idx.logger != nil {
		idx.logger.Debug("indexer source indexed",
			zap.String("source_id", sourceID),
			zap.String("owner_id", ownerID),
			zap.Int("chunks", res.Chunks),
			zap.Int("dimensions", dim))
	}
	return res, nil
}

// embed calls EmbedBatch once for all chunk texts and checks the shape of the reply.
func (idx *Indexer) embed(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	ctx, span := observability.StartClientSpan(ctx, "embedding", "embed_batch")
	defer span.End()
	vectors, err := idx.embedder.EmbedBatch(ctx, texts)
	metrics.CaptureDependencyLatency("embedding", time.Since(start))
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(vectors) != len(texts) {
		err = fmt.Errorf("%w: got %d vectors for %d chunks", embedding.ErrEmbeddingService, len(vectors), len(texts))
		observability.RecordError(span, err)
		return nil, err
	}
	for i, v := range vectors {
		if len(v) == 0 || len(v) != len(vectors[0]) {
			err = fmt.Errorf("%w: vector %d has length %d", embedding.ErrEmbeddingService, i, len(v))
			observability.RecordError(span, err)
			return nil, err
		}
	}
	return vectors, nil
}

// Delete removes every record of the source owned by ownerID. Deleting a source that
// was never indexed succeeds.
func (idx *Indexer) Delete(ctx context.Context, sourceID, ownerID string) error {
	if strings.TrimSpace(sourceID) == "" || strings.TrimSpace(ownerID) == "" {
		return fmt.Errorf("%w: source id and owner id are required", ErrInvalidInput)
	}
	if idx.logger != nil {
		idx.logger.Debug("indexer deleting source", zap.String("source_id", sourceID), zap.String("owner_id", ownerID))
	}
	unlock, err := idx.locker.Lock(ctx, lockKey(sourceID, ownerID))
	if err != nil {
		return fmt.Errorf("failed to lock source %s: %w", sourceID, err)
	}
	defer unlock()

	err = idx.index.DeleteByFilter(ctx, idx.indexName, ownerFilter(sourceID, ownerID))
	if err != nil && !errors.Is(err, vector.ErrIndexNotFound) {
		return fmt.Errorf("failed to delete from vector index: %w", err)
	}
	if idx.ledger != nil {
		if err := idx.ledger.Delete(ctx, sourceID, ownerID); err != nil {
			return fmt.Errorf("failed to delete ledger entry: %w", err)
		}
	}
	return nil
}

// IngestFile reads a regular file and ingests it under a source ID derived from its
// absolute path. The MIME type comes from metadata when declared, otherwise from the
// file extension.
func (idx *Indexer) IngestFile(ctx context.Context, path, ownerID string, metadata map[string]any) (*models.IngestResult, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: not a regular file: %s", ErrInvalidInput, absPath)
	}
	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	meta := make(map[string]any, len(metadata)+2)
	for k, v := range metadata {
		meta[k] = v
	}
	if MimeTypeFromMetadata(meta) == extract.MimeUnknown {
		meta[MetaMimeType] = extract.MimeTypeForPath(absPath)
	}
	meta[MetaSourcePath] = absPath
	return idx.Ingest(ctx, fileid.SourceID(absPath), ownerID, content, meta)
}

// DeleteFile removes the records ingested from path by IngestFile.
func (idx *Indexer) DeleteFile(ctx context.Context, path, ownerID string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	return idx.Delete(ctx, fileid.SourceID(absPath), ownerID)
}

// IngestDirectory walks dir recursively and ingests each regular file whose extension
// is in allowedExts (if non-empty; otherwise all files). Returns the number of files
// ingested and the first error encountered, if any.
func (idx *Indexer) IngestDirectory(ctx context.Context, dir, ownerID string, allowedExts []string) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("%w: not a directory: %s", ErrInvalidInput, absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if !ExtensionAllowed(filepath.Ext(path), allowedExts) {
			return nil
		}
		// Resolve symlinks so only regular files are ingested.
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		if _, ingestErr := idx.IngestFile(ctx, path, ownerID, nil); ingestErr != nil {
			return fmt.Errorf("%s: %w", path, ingestErr)
		}
		n++
		return nil
	})
	return n, err
}

// ExtensionAllowed reports whether ext is in allowed, ignoring case and leading dots.
// An empty allowed list admits every extension.
func ExtensionAllowed(ext string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

// ErrorKind names the failure class of err for logs, metrics and HTTP mapping.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, extract.ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, extract.ErrCorruptInput):
		return "corrupt_input"
	case errors.Is(err, embedding.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, embedding.ErrEmbeddingService):
		return "embedding_service"
	case errors.Is(err, vector.ErrDimensionMismatch):
		return "dimension_mismatch"
	case errors.Is(err, vector.ErrIndexNotFound):
		return "index_not_found"
	case errors.Is(err, lock.ErrLockTimeout):
		return "lock_timeout"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
