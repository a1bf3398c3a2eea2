package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan starts an internal-kind span for a client-side operation
// (handshake attempt, registration call, conductor tick).
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// SetSpanError marks the span as errored.
func SetSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanOK marks the span as successful.
func SetSpanOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// Attribute keys used across this client's spans.
var (
	AttrChannel       = attribute.Key("aeronc.channel")
	AttrStreamID      = attribute.Key("aeronc.stream_id")
	AttrCorrelationID = attribute.Key("aeronc.correlation_id")
	AttrRegistrationID = attribute.Key("aeronc.registration_id")
	AttrClientID      = attribute.Key("aeronc.client_id")
	AttrDirectory     = attribute.Key("aeronc.directory")
)
