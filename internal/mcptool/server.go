// Package mcptool exposes document retrieval to agents as an MCP tool.
package mcptool

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/hyperjump/docrag/internal/models"
	"github.com/hyperjump/docrag/internal/search"
	"github.com/hyperjump/docrag/internal/vector"
)

// ToolName is the name agents call.
const ToolName = "search_documents"

// excerptLen bounds the passage text shown per result in the text rendering.
const excerptLen = 600

// Server is the MCP server wrapping a Retriever.
type Server struct {
	retriever *search.Retriever
	server    *mcp.Server
	logger    *zap.Logger
}

// NewServer creates an MCP server with the search tool registered.
func NewServer(retriever *search.Retriever, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		retriever: retriever,
		server:    mcp.NewServer(&mcp.Implementation{Name: "docrag", Version: version}, nil),
		logger:    logger,
	}
	mcp.AddTool(s.server, &mcp.Tool{
		Name: ToolName,
		Description: "Search the ingested documents for passages relevant to a question. " +
			"Restrict the search with allowed_source_ids to the documents the caller may see.",
	}, s.handleSearch)
	return s
}

// Run serves MCP over stdio until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// HTTPHandler returns a streamable HTTP handler for mounting in the API server.
func (s *Server) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
}

// SearchInput is the input schema of the search tool.
type SearchInput struct {
	Query            string   `json:"query" jsonschema:"the question or keywords to search for"`
	AllowedSourceIDs []string `json:"allowed_source_ids,omitempty" jsonschema:"only return passages from these source documents"`
	TopK             int      `json:"top_k,omitempty" jsonschema:"maximum number of passages to return (default 5)"`
}

// SearchOutput is the structured output of the search tool.
type SearchOutput struct {
	Results   []*models.RetrievalResult `json:"results"`
	NoResults bool                      `json:"no_results,omitempty"`
	Message   string                    `json:"message,omitempty"`
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	resp, err := s.retriever.Retrieve(ctx, input.Query, input.AllowedSourceIDs, input.TopK)
	if errors.Is(err, vector.ErrIndexNotFound) {
		s.logger.Warn("mcp search found no index", zap.String("reason", "index_not_found"))
		resp, err = &models.RetrievalResponse{NoResults: true, Message: models.NoResultsMessage}, nil
	}
	if err != nil {
		s.logger.Error("mcp search failed", zap.Error(err))
		return nil, SearchOutput{}, err
	}
	out := SearchOutput{
		Results:   resp.Results,
		NoResults: resp.NoResults,
		Message:   resp.Message,
	}
	if out.Results == nil {
		out.Results = []*models.RetrievalResult{}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: FormatResults(resp)}},
	}, out, nil
}

// FormatResults renders a retrieval response as numbered passages for an agent prompt.
func FormatResults(resp *models.RetrievalResponse) string {
	if resp == nil || len(resp.Results) == 0 {
		return models.NoResultsMessage
	}
	var b strings.Builder
	for i, r := range resp.Results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] source=%s chunk=%d relevance=%.3f\n", r.Rank, r.Source, r.ChunkIndex, r.Relevance)
		b.WriteString(search.Excerpt(r.Content, excerptLen))
	}
	return b.String()
}
