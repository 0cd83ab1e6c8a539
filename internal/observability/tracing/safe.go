package tracing

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

var allowedSpanKeys = map[attribute.Key]struct{}{
	"http.method":             {},
	"http.route":              {},
	"http.status_code":        {},
	"request_id":              {},
	"entity_type":             {},
	"usage.date":              {},
	"usage.cohort_size":       {},
}

// SafeAttributes keeps only allow-listed span attributes. Entity names and raw
// paths can carry customer identifiers and are dropped.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedSpanKeys[attr.Key]; ok {
			out = append(out, attr)
		}
	}
	return out
}

type redactedError struct {
	kind string
}

func (e redactedError) Error() string { return e.kind }

// SafeError replaces err with a message that does not echo request input.
func SafeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return redactedError{kind: "deadline_exceeded"}
	case errors.Is(err, context.Canceled):
		return redactedError{kind: "canceled"}
	default:
		return redactedError{kind: "internal_error"}
	}
}

// ExtractContext restores the upstream trace context from carrier.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	).Extract(ctx, carrier)
}
