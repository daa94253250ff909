package logger

import (
	"context"

	"github.com/google/uuid"
)

// WithTraceID stores traceID in ctx, generating one when it is empty.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		traceID = NewTraceID()
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID returns the trace id in ctx or "".
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

func NewTraceID() string {
	return uuid.NewString()
}

// IntoContext attaches l to ctx for code that has no logger of its own.
func IntoContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the logger attached to ctx, tagged with the trace id,
// or fallback when none is attached.
func FromContext(ctx context.Context, fallback *Logger) *Logger {
	l, ok := ctx.Value(loggerKey).(*Logger)
	if !ok || l == nil {
		l = fallback
	}
	return l.WithContext(ctx)
}
