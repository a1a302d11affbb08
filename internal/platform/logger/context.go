package logger

import (
	"context"
	"log/slog"
)

// ctxKey is the private context key type for logger values.
type ctxKey struct{}

// WithLogger returns a context carrying the given logger. Downstream code
// retrieves it with FromContext so that per-request attributes (correlation
// IDs, netids) travel with the call.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

// WithRequestID returns a context whose logger carries a request_id
// attribute on every record.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	log := FromContext(ctx).With(slog.String("request_id", requestID))
	return WithLogger(ctx, log)
}

// FromContext returns the logger carried by the context, or the process
// default logger when none is set.
func FromContext(ctx context.Context) *slog.Logger {
	return FromContextOrDefault(ctx, slog.Default())
}

// FromContextOrDefault returns the logger carried by the context, or the
// given fallback when none is set.
func FromContextOrDefault(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if ctx != nil {
		if log, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && log != nil {
			return log
		}
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}
