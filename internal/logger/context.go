package logger

import (
	"context"
	"log/slog"
)

type contextKey string

// CorrelationIDKey is the context key for request correlation IDs
const CorrelationIDKey contextKey = "correlation_id"

// WithCorrelationID returns a logger carrying the correlation ID from context
func WithCorrelationID(ctx context.Context, log *slog.Logger) *slog.Logger {
	correlationID := GetCorrelationID(ctx)
	if correlationID == "" {
		return log
	}
	return log.With(slog.String("correlation_id", correlationID))
}

// GetCorrelationID extracts the correlation ID from context
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return id
	}
	return ""
}

// SetCorrelationID adds a correlation ID to the context
func SetCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}
