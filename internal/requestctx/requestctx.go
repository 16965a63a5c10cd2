// Package requestctx carries per-request metadata below the transport layer
// so that audit and logging code can read it without importing middleware.
package requestctx

import (
	"context"
	"log/slog"
)

type key int

const requestIDKey key = iota

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Log returns the default logger tagged with the request id, if any.
func Log(ctx context.Context) *slog.Logger {
	if id := GetRequestID(ctx); id != "" {
		return slog.Default().With("request_id", id)
	}
	return slog.Default()
}
