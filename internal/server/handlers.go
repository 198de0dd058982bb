package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/docrag/internal/config"
	"github.com/hyperjump/docrag/internal/embedding"
	"github.com/hyperjump/docrag/internal/extract"
	"github.com/hyperjump/docrag/internal/indexer"
	"github.com/hyperjump/docrag/internal/lock"
	"github.com/hyperjump/docrag/internal/models"
	"github.com/hyperjump/docrag/internal/storage"
	"github.com/hyperjump/docrag/internal/vector"
)

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceID")
	if s.config.Server.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadBytes)
	}
	var req models.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	meta := make(map[string]any, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		meta[k] = v
	}
	if req.MimeType != "" {
		meta[indexer.MetaMimeType] = req.MimeType
	}
	s.logger.Debug("ingest request",
		zap.String("source_id", sourceID),
		zap.String("owner_id", req.OwnerID),
		zap.Int("bytes", len(req.Content)))

	res, err := s.indexer.Ingest(r.Context(), sourceID, req.OwnerID, req.Content, meta)
	if err != nil {
		s.logger.Error("ingestion failed",
			zap.String("source_id", sourceID),
			zap.String("kind", indexer.ErrorKind(err)),
			zap.Error(err))
		s.respondFailure(w, err)
		return
	}
	status := http.StatusCreated
	if res.Skipped {
		status = http.StatusOK
	}
	s.respondJSON(w, status, res)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceID")
	ownerID := r.URL.Query().Get("owner_id")
	s.logger.Debug("delete request", zap.String("source_id", sourceID), zap.String("owner_id", ownerID))
	if err := s.indexer.Delete(r.Context(), sourceID, ownerID); err != nil {
		s.logger.Error("deletion failed", zap.String("source_id", sourceID), zap.Error(err))
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"source_id": sourceID, "status": "deleted"})
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var query models.RetrievalQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("retrieve request", zap.Int("top_k", query.TopK), zap.Int("allowed_sources", len(query.AllowedSourceIDs)))
	resp, err := s.retriever.Retrieve(r.Context(), query.Query, query.AllowedSourceIDs, query.TopK)
	if errors.Is(err, vector.ErrIndexNotFound) {
		s.logger.Warn("retrieval found no index", zap.String("reason", "index_not_found"), zap.Error(err))
		resp, err = &models.RetrievalResponse{
			Query:     query.Query,
			Results:   []*models.RetrievalResult{},
			NoResults: true,
			Message:   models.NoResultsMessage,
		}, nil
	}
	if err != nil {
		s.logger.Error("retrieval failed", zap.String("kind", indexer.ErrorKind(err)), zap.Error(err))
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.respondError(w, http.StatusNotImplemented, "ledger not enabled")
		return
	}
	q := r.URL.Query()
	offset, _ := strconv.Atoi(q.Get("offset"))
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		limit = 100
	}
	sources, err := s.ledger.List(r.Context(), q.Get("owner_id"), offset, limit)
	if err != nil {
		s.logger.Error("list sources failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sources == nil {
		sources = []*models.SourceRecord{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := Status(r.Context(), s.index, s.indexer.IndexName(), s.ledger, s.config)
	if err != nil {
		s.logger.Error("status failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, status)
}

// Status reports record and source counts, the effective configuration and the disk
// usage of local state. ledger may be nil.
func Status(ctx context.Context, index vector.Index, indexName string, ledger storage.Ledger, cfg *config.Config) (map[string]any, error) {
	status := map[string]any{}

	records, err := index.Count(ctx, indexName, nil)
	switch {
	case errors.Is(err, vector.ErrIndexNotFound):
		records = 0
	case err != nil:
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	status["records"] = records

	if ledger != nil {
		sources, chunks, err := ledger.Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to count sources: %w", err)
		}
		status["sources"] = sources
		status["chunks"] = chunks
	}

	status["config"] = map[string]any{
		"embedding_provider": cfg.Embedding.Provider,
		"embedding_model":    cfg.Embedding.Model,
		"index_backend":      cfg.Index.Backend,
		"index_name":         indexName,
		"chunk_size":         cfg.Chunking.MaxSize,
		"chunk_overlap":      cfg.Chunking.Overlap,
		"default_top_k":      cfg.Retrieval.DefaultTopK,
	}

	paths := storage.SQLiteFiles(cfg.Ledger.Path)
	if cfg.Index.Backend == config.BackendSQLite {
		paths = append(paths, storage.SQLiteFiles(cfg.Index.SQLitePath)...)
	}
	if cfg.Index.SnapshotPath != "" {
		paths = append(paths, cfg.Index.SnapshotPath)
	}
	if diskBytes, err := storage.DiskUsageBytes(paths...); err == nil {
		status["disk_usage_bytes"] = diskBytes
	}
	return status, nil
}

// statusForError maps the error taxonomy onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, indexer.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, extract.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, extract.ErrCorruptInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, embedding.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, embedding.ErrEmbeddingService):
		return http.StatusBadGateway
	case errors.Is(err, vector.ErrDimensionMismatch), errors.Is(err, lock.ErrLockTimeout):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondFailure(w http.ResponseWriter, err error) {
	status := statusForError(err)
	var rl *embedding.RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(math.Ceil(rl.RetryAfter.Seconds()))))
	}
	s.respondJSON(w, status, map[string]string{"error": err.Error(), "kind": indexer.ErrorKind(err)})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
