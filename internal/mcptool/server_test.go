package mcptool

import (
	"context"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hyperjump/docrag/internal/embedding"
	"github.com/hyperjump/docrag/internal/indexer"
	"github.com/hyperjump/docrag/internal/models"
	"github.com/hyperjump/docrag/internal/search"
	"github.com/hyperjump/docrag/internal/vector"
)

func newTestServer(t *testing.T, docs map[string]string) *Server {
	t.Helper()
	embedder := embedding.NewMockEmbedder(16)
	t.Cleanup(func() { _ = embedder.Close() })
	index := vector.NewMemoryIndex()
	idx := indexer.NewIndexer(embedder, index, nil)
	for id, text := range docs {
		if _, err := idx.Ingest(context.Background(), id, "alice", []byte(text), map[string]any{"mime_type": "text/plain"}); err != nil {
			t.Fatal(err)
		}
	}
	return NewServer(search.NewRetriever(embedder, index), "test", nil)
}

func TestHandleSearch(t *testing.T) {
	s := newTestServer(t, map[string]string{
		"doc1": "Invoices are due thirty days after delivery.",
		"doc2": "The office is closed on public holidays.",
	})
	res, out, err := s.handleSearch(context.Background(), nil, SearchInput{
		Query:            "when are invoices due",
		AllowedSourceIDs: []string{"doc1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.NoResults || len(out.Results) == 0 {
		t.Fatalf("expected results, got %+v", out)
	}
	for _, r := range out.Results {
		if r.Source != "doc1" {
			t.Errorf("result from disallowed source %q", r.Source)
		}
	}
	text := res.Content[0].(*mcp.TextContent).Text
	if !strings.Contains(text, "source=doc1") || !strings.Contains(text, "Invoices are due") {
		t.Errorf("unexpected text: %q", text)
	}
}

func TestHandleSearch_NoIndex(t *testing.T) {
	s := newTestServer(t, nil)
	res, out, err := s.handleSearch(context.Background(), nil, SearchInput{Query: "anything"})
	if err != nil {
		t.Fatal(err)
	}
	if !out.NoResults || out.Message != models.NoResultsMessage || len(out.Results) != 0 {
		t.Errorf("expected no-results output, got %+v", out)
	}
	if text := res.Content[0].(*mcp.TextContent).Text; text != models.NoResultsMessage {
		t.Errorf("text: got %q", text)
	}
}

func TestHandleSearch_EmptyQuery(t *testing.T) {
	s := newTestServer(t, nil)
	if _, _, err := s.handleSearch(context.Background(), nil, SearchInput{Query: " "}); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestFormatResults(t *testing.T) {
	if got := FormatResults(nil); got != models.NoResultsMessage {
		t.Errorf("nil response: got %q", got)
	}
	got := FormatResults(&models.RetrievalResponse{Results: []*models.RetrievalResult{
		{Rank: 1, Source: "a", ChunkIndex: 2, Relevance: 0.91234, Content: "first\n\npassage"},
		{Rank: 2, Source: "b", Relevance: 0.5, Content: "second"},
	}})
	want := "[1] source=a chunk=2 relevance=0.912\nfirst passage\n\n[2] source=b chunk=0 relevance=0.500\nsecond"
	if got != want {
		t.Errorf("FormatResults:\ngot  %q\nwant %q", got, want)
	}
}

func TestSearchOverSession(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t, map[string]string{"doc1": "Backups run every night at two."})

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	ss, err := s.server.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ss.Close()
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer cs.Close()

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      ToolName,
		Arguments: map[string]any{"query": "when do backups run", "top_k": 3},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("tool error: %+v", res.Content)
	}
	text := res.Content[0].(*mcp.TextContent).Text
	if !strings.Contains(text, "source=doc1") {
		t.Errorf("unexpected text: %q", text)
	}
}
