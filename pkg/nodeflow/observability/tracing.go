package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer uses the global OTel tracer provider.
var tracer = otel.Tracer("nodeflow")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartPassSpan starts a span covering one Ordering+Executing pass.
	StartPassSpan(ctx context.Context, treeID, passID string) (context.Context, trace.Span)

	// StartNodeSpan starts a child span for one processor invocation.
	StartNodeSpan(ctx context.Context, nodeName, nodeType string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses the global tracer provider.
//
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

func (m *otelSpanManager) StartPassSpan(ctx context.Context, treeID, passID string) (context.Context, trace.Span) {
	return StartPassSpan(ctx, treeID, passID)
}

func (m *otelSpanManager) StartNodeSpan(ctx context.Context, nodeName, nodeType string) (context.Context, trace.Span) {
	return StartNodeSpan(ctx, nodeName, nodeType)
}

func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	AddSpanEvent(ctx, name, attrs...)
}

// StartPassSpan starts a pass span on the global tracer.
func StartPassSpan(ctx context.Context, treeID, passID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "nodeflow.pass",
		trace.WithAttributes(
			attribute.String("tree.id", treeID),
			attribute.String("pass.id", passID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartNodeSpan starts a node span on the global tracer.
func StartNodeSpan(ctx context.Context, nodeName, nodeType string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "nodeflow.node."+nodeName,
		trace.WithAttributes(
			attribute.String("node.name", nodeName),
			attribute.String("node.type", nodeType),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
