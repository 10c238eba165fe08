package tracing

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/notifier/internal/observability/context"
	"github.com/smallbiznis/notifier/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// GinMiddleware opens a server span per request, named after the matched route.
// Lookups by order carry the order id; lookups by user only record the lookup kind.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("notifier/http")
	return func(c *gin.Context) {
		method := strings.ToUpper(c.Request.Method)
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		var attrs []attribute.KeyValue
		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			attrs = append(attrs, attribute.String("request_id", requestID))
		}
		if cid := correlation.ExtractCorrelationID(ctx); cid != "" {
			attrs = append(attrs, attribute.String("correlation_id", cid))
		}
		span.SetAttributes(attrs...)

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + method + " " + route)
		span.SetAttributes(SafeAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.Int("http.response_size", max(c.Writer.Size(), 0)),
		)...)
		span.SetAttributes(lookupAttributes(c)...)

		lastErr := c.Errors.Last()
		if lastErr != nil {
			span.RecordError(SafeError(lastErr.Err))
		}
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

func lookupAttributes(c *gin.Context) []attribute.KeyValue {
	if orderID := c.Param("orderId"); orderID != "" {
		return []attribute.KeyValue{
			attribute.String("notifications.lookup", "order"),
			attribute.String("order_id", orderID),
		}
	}
	if c.Param("userId") != "" {
		return []attribute.KeyValue{attribute.String("notifications.lookup", "user")}
	}
	return nil
}
