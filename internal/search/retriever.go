// Package search answers natural-language queries with ranked passages from the vector index.
package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/docrag/internal/embedding"
	"github.com/hyperjump/docrag/internal/indexer"
	"github.com/hyperjump/docrag/internal/metrics"
	"github.com/hyperjump/docrag/internal/models"
	"github.com/hyperjump/docrag/internal/observability"
	"github.com/hyperjump/docrag/internal/vector"
)

// Defaults for result counts.
const (
	DefaultTopK = 5
	MaxTopK     = 50
)

// Retriever embeds a query and returns the most similar chunks from the allowed sources.
type Retriever struct {
	embedder    embedding.Embedder
	index       vector.Index
	indexName   string
	defaultTopK int
	maxTopK     int
	logger      *zap.Logger // optional
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) RetrieverOption {
	return func(r *Retriever) { r.logger = l }
}

// WithIndexName sets the vector index collection name.
func WithIndexName(name string) RetrieverOption {
	return func(r *Retriever) {
		if name != "" {
			r.indexName = name
		}
	}
}

// WithTopK sets the result count used when a request asks for none, and the upper bound.
func WithTopK(defaultTopK, maxTopK int) RetrieverOption {
	return func(r *Retriever) {
		if defaultTopK > 0 {
			r.defaultTopK = defaultTopK
		}
		if maxTopK > 0 {
			r.maxTopK = maxTopK
		}
	}
}

// NewRetriever creates a retriever over index using embedder for queries.
func NewRetriever(embedder embedding.Embedder, index vector.Index, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		embedder:    embedder,
		index:       index,
		indexName:   indexer.DefaultIndexName,
		defaultTopK: DefaultTopK,
		maxTopK:     MaxTopK,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns up to topK passages for query, drawn only from allowedSourceIDs when
// that list is non-empty. Finding nothing is reported in the response, not as an
// error. A missing index is returned as an error wrapping vector.ErrIndexNotFound.
func (r *Retriever) Retrieve(ctx context.Context, query string, allowedSourceIDs []string, topK int) (resp *models.RetrievalResponse, err error) {
	start := time.Now()
	q := &models.RetrievalQuery{Query: query, AllowedSourceIDs: allowedSourceIDs, TopK: topK}
	if err := ProcessQuery(q, r.defaultTopK, r.maxTopK); err != nil {
		return nil, err
	}

	ctx, span := observability.StartRetrieveSpan(ctx, q.TopK, len(q.AllowedSourceIDs))
	defer func() {
		observability.RecordError(span, err)
		span.End()
		outcome := "results"
		switch {
		case err != nil:
			outcome = "error"
		case resp.NoResults:
			outcome = "no_results"
		}
		metrics.RecordRetrieval(outcome, time.Since(start))
	}()

	embedStart := time.Now()
	vec, err := r.embedder.Embed(ctx, q.Query)
	metrics.CaptureDependencyLatency("embedding", time.Since(embedStart))
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	var filter vector.Filter
	if q.AllowedSourceIDs != nil {
		filter = vector.Filter{vector.MatchAny(indexer.MetaSourceID, q.AllowedSourceIDs...)}
	}
	queryStart := time.Now()
	hits, err := r.index.Query(ctx, r.indexName, vec, 2*q.TopK, filter)
	metrics.CaptureDependencyLatency("vector_query", time.Since(queryStart))
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}

	hits = Deduplicate(FilterAllowed(hits, q.AllowedSourceIDs))
	if len(hits) > q.TopK {
		hits = hits[:q.TopK]
	}

	resp = &models.RetrievalResponse{
		Query:   q.Query,
		Results: make([]*models.RetrievalResult, 0, len(hits)),
	}
	for i, h := range hits {
		content, _ := h.Metadata[indexer.MetaContent].(string)
		resp.Results = append(resp.Results, &models.RetrievalResult{
			Rank:       i + 1,
			Content:    content,
			Source:     vector.ValueString(h.Metadata[indexer.MetaSourceID]),
			Relevance:  h.Score,
			ChunkIndex: metadataInt(h.Metadata, indexer.MetaChunkIndex),
		})
	}
	if len(resp.Results) == 0 {
		resp.NoResults = true
		resp.Message = models.NoResultsMessage
	}
	resp.QueryTime = time.Since(start).Milliseconds()
	if r.logger != nil {
		r.logger.Debug("retrieval done",
			zap.Int("results", len(resp.Results)),
			zap.Int("top_k", q.TopK),
			zap.Int("allowed_sources", len(q.AllowedSourceIDs)))
	}
	return resp, nil
}

func metadataInt(m map[string]any, key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(vector.ValueString(m[key])))
	if err != nil {
		return 0
	}
	return n
}
