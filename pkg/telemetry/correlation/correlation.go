package correlation

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
)

// HeaderName carries the correlation id across broker hops and HTTP calls.
const HeaderName = "X-Correlation-Id"

type correlationKey struct{}

// ExtractCorrelationID fetches a correlation ID from the context if present.
func ExtractCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(correlationKey{}).(string); ok {
		return val
	}
	return ""
}

// ContextWithCorrelationID sets the correlation ID onto the context.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// EnsureCorrelationID guarantees a correlation ID on the context, generating one when missing.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	cid := ExtractCorrelationID(ctx)
	if cid == "" {
		cid = ulid.Make().String()
	}
	return ContextWithCorrelationID(ctx, cid), cid
}

// FromHeaders picks the correlation id out of broker headers, falling back to a fresh one.
func FromHeaders(ctx context.Context, headers map[string]string) (context.Context, string) {
	for key, value := range headers {
		if strings.EqualFold(key, HeaderName) || strings.EqualFold(key, "correlation_id") {
			if v := strings.TrimSpace(value); v != "" {
				return ContextWithCorrelationID(ctx, v), v
			}
		}
	}
	return EnsureCorrelationID(ctx)
}
