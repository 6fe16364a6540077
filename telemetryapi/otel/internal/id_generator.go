// Package internal holds the span ID plumbing of the otel package.
package internal

import (
	"context"
	"sync"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// IDGenerator hands out pinned IDs once, then falls back to Gen.
// Lambda assigns the invocation span ID itself and the SDK offers no other way to start a span with it.
type IDGenerator struct {
	Gen sdktrace.IDGenerator

	mu      sync.Mutex
	traceID trace.TraceID
	spanID  trace.SpanID
}

// Pin makes the next NewIDs or NewSpanID call return traceID and spanID.
func (g *IDGenerator) Pin(traceID trace.TraceID, spanID trace.SpanID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.traceID, g.spanID = traceID, spanID
}

func (g *IDGenerator) NewIDs(ctx context.Context) (trace.TraceID, trace.SpanID) {
	if traceID, spanID, ok := g.take(); ok {
		return traceID, spanID
	}

	return g.Gen.NewIDs(ctx)
}

func (g *IDGenerator) NewSpanID(ctx context.Context, traceID trace.TraceID) trace.SpanID {
	if _, spanID, ok := g.take(); ok {
		return spanID
	}

	return g.Gen.NewSpanID(ctx, traceID)
}

func (g *IDGenerator) take() (trace.TraceID, trace.SpanID, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.traceID.IsValid() || !g.spanID.IsValid() {
		return trace.TraceID{}, trace.SpanID{}, false
	}
	traceID, spanID := g.traceID, g.spanID
	g.traceID, g.spanID = trace.TraceID{}, trace.SpanID{}

	return traceID, spanID, true
}
