package tracing

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/computeledger/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// GinMiddleware opens a server span per request, continuing any trace
// context found in the inbound headers. It must run after the logger
// middleware so the correlation id is already on the context.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		attrs := []attribute.KeyValue{
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
		}
		if id := obscontext.CorrelationIDFromContext(c.Request.Context()); id != "" {
			attrs = append(attrs, attribute.String("correlation_id", id))
		}
		if tenant := c.Param("tenant"); tenant != "" {
			attrs = append(attrs, attribute.String("tenant_id", tenant))
		}

		carrier := propagation.HeaderCarrier(c.Request.Header)
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), carrier)
		ctx, span := Tracer().Start(ctx, fmt.Sprintf("%s %s", c.Request.Method, route),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status < http.StatusInternalServerError {
			return
		}
		for _, e := range c.Errors {
			span.RecordError(e.Err)
		}
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}
