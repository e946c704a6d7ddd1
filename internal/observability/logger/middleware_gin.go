package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/computeledger/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RequestIDHeader carries the correlation id in and out of the API.
const RequestIDHeader = "X-Request-Id"

// ErrorClassifier maps a handler error to the (type, code) pair logged
// alongside the request.
type ErrorClassifier func(err error) (errType string, code string)

// GinMiddleware assigns every request a correlation id and writes one
// http_request entry once the handler chain has finished. Health and
// metrics scrapes are logged at debug.
func GinMiddleware(base *zap.Logger, classify ErrorClassifier) gin.HandlerFunc {
	if base == nil {
		base = zap.L()
	}
	return func(c *gin.Context) {
		start := time.Now()

		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(obscontext.WithCorrelationID(c.Request.Context(), id))

		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		level := zapcore.InfoLevel
		switch {
		case route == "/health" || route == "/metrics":
			level = zapcore.DebugLevel
		case status >= http.StatusInternalServerError:
			level = zapcore.ErrorLevel
		}

		ce := WithContext(c.Request.Context(), base).Check(level, "http_request")
		if ce == nil {
			return
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		}
		if tenant := c.Param("tenant"); tenant != "" {
			fields = append(fields, zap.String("tenant_id", tenant))
		}
		if last := c.Errors.Last(); last != nil && classify != nil {
			errType, code := classify(last.Err)
			fields = append(fields, zap.String("error_type", errType), zap.String("error_code", code))
		}
		ce.Write(fields...)
	}
}
