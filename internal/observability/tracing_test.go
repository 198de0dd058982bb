package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/hyperjump/docrag/internal/config"
)

func TestInitTracing_NoEndpoint(t *testing.T) {
	tp, err := InitTracing(context.Background(), config.TracingConfig{ServiceName: "docrag"}, "test")
	if err != nil {
		t.Fatal(err)
	}
	if tp.provider != nil {
		t.Error("expected no provider without an endpoint")
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestSpansWithoutProvider(t *testing.T) {
	ctx, span := StartIngestSpan(context.Background(), "doc1", "alice", "text/plain")
	_, child := StartClientSpan(ctx, "embedding", "embed_batch")
	RecordError(child, errors.New("boom"))
	RecordError(child, nil)
	child.End()
	span.End()

	_, span = StartRetrieveSpan(context.Background(), 5, 2)
	span.End()
}
