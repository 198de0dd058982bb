package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Gemini task types.
const (
	geminiTaskDocument = "RETRIEVAL_DOCUMENT"
	geminiTaskQuery    = "RETRIEVAL_QUERY"
)

// GeminiConfig configures the Gemini embeddings API.
type GeminiConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	MaxBatch   int
	Timeout    time.Duration
}

// GeminiEmbedder embeds text with the Gemini API. Documents and queries are embedded
// with the matching retrieval task type.
type GeminiEmbedder struct {
	client     *genai.Client
	model      string
	dimensions int
	maxBatch   int
}

// NewGeminiEmbedder creates a Gemini embedder.
func NewGeminiEmbedder(ctx context.Context, cfg GeminiConfig) (*GeminiEmbedder, error) {
	if cfg.Model == "" {
		cfg.Model = "gemini-embedding-001"
	}
	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		cc.HTTPOptions.Timeout = &cfg.Timeout
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiEmbedder{client: client, model: cfg.Model, dimensions: cfg.Dimensions, maxBatch: cfg.MaxBatch}, nil
}

// Embed embeds a retrieval query.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text}, geminiTaskQuery)
	if err != nil {
		return nil, err
	}
	if err := checkVectors("gemini", 1, vecs); err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds documents, splitting them into requests of at most MaxBatch inputs.
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for _, batch := range batches(texts, e.maxBatch) {
		vecs, err := e.embed(ctx, batch, geminiTaskDocument)
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	if err := checkVectors("gemini", len(texts), out); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *GeminiEmbedder) embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}
	conf := &genai.EmbedContentConfig{TaskType: taskType}
	if e.dimensions > 0 {
		dims := int32(e.dimensions)
		conf.OutputDimensionality = &dims
	}
	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, conf)
	if err != nil {
		return nil, classifyGeminiError(err)
	}
	vecs := make([][]float32, 0, len(resp.Embeddings))
	for _, emb := range resp.Embeddings {
		if emb == nil {
			vecs = append(vecs, nil)
			continue
		}
		vecs = append(vecs, emb.Values)
	}
	return vecs, nil
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return &RateLimitError{Provider: "gemini", Err: err}
	}
	if s, ok := status.FromError(err); ok && s.Code() == codes.ResourceExhausted {
		return &RateLimitError{Provider: "gemini", Err: err}
	}
	return serviceError("gemini", err)
}

// Dimensions returns the requested output dimensionality, or 0 for the model default.
func (e *GeminiEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *GeminiEmbedder) Close() error {
	return nil
}
