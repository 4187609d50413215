package tracing

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/cryptopay/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Handlers publish ingestion results on the gin context under these keys so
// the request span carries them.
const (
	WebhookEventTypeKey = "webhook_event_type"
	WebhookOutcomeKey   = "webhook_outcome"
)

// GinMiddleware opens one server span per request. It must run after the
// logging middleware so the request id and source ip are on the context.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("cryptopay/http")
	return func(c *gin.Context) {
		method := strings.ToUpper(c.Request.Method)
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			span.SetAttributes(attribute.String("request_id", requestID))
		}
		if sourceIP := obscontext.SourceIPFromContext(ctx); sourceIP != "" {
			span.SetAttributes(attribute.String("client.address", sourceIP))
		}

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
		)...)

		outcome := c.GetString(WebhookOutcomeKey)
		if eventType := c.GetString(WebhookEventTypeKey); eventType != "" {
			span.SetAttributes(attribute.String("webhook.event_type", eventType))
		}
		if outcome != "" {
			span.SetAttributes(attribute.String("webhook.outcome", outcome))
		}

		if status >= http.StatusInternalServerError {
			if lastErr := c.Errors.Last(); lastErr != nil {
				span.RecordError(SafeError(lastErr.Err))
			}
			desc := "request error"
			if outcome != "" {
				desc = outcome
			}
			span.SetStatus(codes.Error, desc)
		}
	}
}
