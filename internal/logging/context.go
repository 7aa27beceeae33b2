package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type correlationCtxKey struct{}
type iterationCtxKey struct{}

// WithCorrelationID attaches a correlation id to the context. Every log line
// written with this context carries it.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationCtxKey{}, id)
}

// CorrelationIDFromContext extracts the correlation id, or "" if unset.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationCtxKey{}).(string); ok {
		return id
	}
	return ""
}

// WithIteration attaches the orchestrator iteration number to the context.
func WithIteration(ctx context.Context, n int) context.Context {
	return context.WithValue(ctx, iterationCtxKey{}, n)
}

// IterationFromContext extracts the iteration number, or -1 if unset.
func IterationFromContext(ctx context.Context) int {
	if n, ok := ctx.Value(iterationCtxKey{}).(int); ok {
		return n
	}
	return -1
}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 4)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if id := CorrelationIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("correlation_id", id))
	}
	if n := IterationFromContext(ctx); n >= 0 {
		fields = append(fields, zap.Int("iteration", n))
	}

	return fields
}
