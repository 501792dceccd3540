package directory

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name of directory spans.
const TracerName = "mentionkit/directory"

// Span attribute keys
const (
	AttrScope      = "mention.scope"
	AttrCandidates = "mention.candidates"
	AttrErrorCode  = "mention.error_code"
)

// SpanFetch wraps one external candidate fetch.
const SpanFetch = "mentionkit.directory.fetch"

// Tracer starts directory spans.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer uses the global tracer provider.
func NewTracer() *Tracer {
	return NewTracerWithProvider(otel.GetTracerProvider())
}

// NewTracerWithProvider uses tp instead of the global provider.
func NewTracerWithProvider(tp trace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(TracerName)}
}

// StartFetchSpan starts the span around an external fetch for scope.
func (t *Tracer) StartFetchSpan(ctx context.Context, scope string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanFetch,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String(AttrScope, scope)),
	)
}

// EndFetchSpan records the outcome on span and ends it.
func EndFetchSpan(span trace.Span, candidates int, code string, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String(AttrErrorCode, code))
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int(AttrCandidates, candidates))
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
