package middleware

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docgen/docgen-sub000/internal/infra/logging"
)

const (
	// CorrelationIDHeader is the header name client and server exchange
	// the correlation ID on, per spec §4.13/§6.
	CorrelationIDHeader = "X-Correlation-Id"
	correlationIDKey    = "correlation_id"
)

// Correlation generates or validates a per-request correlation ID: the
// client-supplied header is reused only when it parses as a UUID,
// otherwise a fresh one is minted — the teacher's equivalent
// (middleware.Operation) reused any non-empty header verbatim, which spec
// §4.13's "well-formed" qualifier rules out.
func Correlation() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(CorrelationIDHeader)
		if _, err := uuid.Parse(correlationID); err != nil {
			correlationID = uuid.New().String()
		}
		c.Set(correlationIDKey, correlationID)
		c.Header(CorrelationIDHeader, correlationID)

		ctx := logging.WithAttrs(c.Request.Context(),
			slog.String(correlationIDKey, correlationID),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.String("client_ip", c.ClientIP()),
		)
		c.Request = c.Request.WithContext(ctx)

		slog.InfoContext(ctx, "request started")
		c.Next()
		slog.InfoContext(c.Request.Context(), "request completed",
			slog.Int("status", c.Writer.Status()),
		)
	}
}

// GetCorrelationID retrieves the correlation ID stored by Correlation.
func GetCorrelationID(c *gin.Context) string {
	if val, exists := c.Get(correlationIDKey); exists {
		if id, ok := val.(string); ok {
			return id
		}
	}
	return ""
}
