package middlewares

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	logger "github.com/Lejs5034/LegionOfBrothers-sub000/middleware/log"
)

const TraceHeader = "X-Request-ID"

// TraceMiddleware gives every request a trace id, echoes it in the response and
// attaches a request-scoped logger to the request context.
func TraceMiddleware(base *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceHeader)
		if traceID == "" {
			traceID = logger.NewTraceID()
		}
		c.Header(TraceHeader, traceID)

		ctx := logger.WithTraceID(c.Request.Context(), traceID)
		ctx = logger.IntoContext(ctx, base.WithTraceID(traceID))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// AccessLog writes one line per request after it has been served.
func AccessLog(base *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if uid := c.GetString(ContextUserID); uid != "" {
			fields = append(fields, zap.String("user_id", uid))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		l := base.WithContext(c.Request.Context())
		switch {
		case c.Writer.Status() >= 500:
			l.Error("request", fields...)
		case c.Writer.Status() >= 400:
			l.Warn("request", fields...)
		default:
			l.Info("request", fields...)
		}
	}
}
