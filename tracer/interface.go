package tracer

import (
	"context"
)

// Tracer creates spans and moves trace context in and out of message headers.
// *TracerClient implements it.
type Tracer interface {
	// StartSpan starts a span as a child of the span in ctx, if any.
	// The caller must End the returned span.
	StartSpan(ctx context.Context, name string) (context.Context, Span)

	// GetCarrier returns the W3C trace context of ctx as header key/value pairs.
	// Producers copy them onto outgoing Kafka messages.
	GetCarrier(ctx context.Context) map[string]string

	// SetCarrierOnContext returns ctx continued from the trace context in carrier.
	// Consumers call it with the headers of the message being handled.
	SetCarrierOnContext(ctx context.Context, carrier map[string]string) context.Context
}

// Span is a started span.
type Span interface {
	// End finishes the span.
	End()

	// SetAttributes attaches attributes. Strings, ints, int64, float64 and bools keep
	// their type; anything else is formatted with fmt.Sprint.
	SetAttributes(attrs map[string]interface{})

	// RecordError records err and marks the span as failed.
	RecordError(err error)
}
