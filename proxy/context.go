package proxy

import (
	"context"

	"kiro-gateway/ids"
	"kiro-gateway/internal"
)

// withRequestID adds a request ID to the context (wraps internal function)
func withRequestID(ctx context.Context, requestID string) context.Context {
	return internal.WithRequestID(ctx, requestID)
}

// GetRequestID retrieves the request ID from context (wraps internal function)
func GetRequestID(ctx context.Context) string {
	return internal.GetRequestID(ctx)
}

// generateRequestID creates a unique request ID, reusing the same random
// UUID source the rest of the gateway stamps onto upstream calls.
func generateRequestID() string {
	return "req_" + ids.InvocationID()
}
