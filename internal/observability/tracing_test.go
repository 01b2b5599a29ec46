package observability

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func noopTracer() *Tracer {
	tracer, _ := NewTracer(TraceConfig{ServiceName: "engram-test"})
	return tracer
}

func TestNewTracerWithoutEndpointIsNoop(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{})
	defer shutdown(context.Background())

	ctx, span := tracer.Start(context.Background(), "op")
	defer span.End()

	if span.SpanContext().IsValid() {
		t.Error("no-op tracer produced a recording span")
	}
	if GetTraceID(ctx) != "" {
		t.Errorf("GetTraceID = %q, want empty", GetTraceID(ctx))
	}
}

func TestWithSpanPropagatesError(t *testing.T) {
	tracer := noopTracer()
	want := errors.New("stage failed")

	err := WithSpan(context.Background(), tracer, "op", func(ctx context.Context, span trace.Span) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("WithSpan error = %v, want %v", err, want)
	}

	if err := WithSpan(context.Background(), tracer, "op", func(ctx context.Context, span trace.Span) error {
		return nil
	}); err != nil {
		t.Errorf("WithSpan success returned %v", err)
	}
}

func TestSetAttributesIgnoresMalformedPairs(t *testing.T) {
	tracer := noopTracer()
	_, span := tracer.Start(context.Background(), "op")
	defer span.End()

	// Odd arity and non-string keys must not panic.
	tracer.SetAttributes(span, "chunks", 5, 42, "value", "dangling")
	tracer.AddEvent(span, "scored", "count", 3)
}

func TestDomainSpanHelpers(t *testing.T) {
	tracer := noopTracer()

	ctx, span := tracer.TraceRetrieval(context.Background(), "en")
	span.End()
	if ctx == nil {
		t.Fatal("nil context from TraceRetrieval")
	}

	_, span = tracer.TraceEmbedding(ctx, "ollama", "primary")
	span.End()
	_, span = tracer.TraceStoreQuery(ctx, "search")
	span.End()
	_, span = tracer.TraceSummarization(ctx, "anthropic", "claude-3-5-haiku-latest")
	span.End()
}
