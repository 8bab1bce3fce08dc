package pdp

import (
	"context"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// RequestIDFromContext returns the correlation id carried by ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ContextWithRequestID attaches a caller-supplied correlation id, such as an
// X-Request-ID header or a Lambda request id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// EnsureRequestID keeps an existing id or attaches a fresh uuid.
// Generated ids only correlate log lines and audit entries; they are never
// echoed to clients that did not send one.
func EnsureRequestID(ctx context.Context) (context.Context, string) {
	if id := RequestIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return ContextWithRequestID(ctx, id), id
}
