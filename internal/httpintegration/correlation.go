// Package httpintegration is the optional Gin-based front door for
// wsrelay.Server: it builds a Gin engine that applies CORS and a correlation-ID
// middleware the way the teacher's internal/v1/middleware package does,
// exposes /healthz, /readyz and /metrics, and bridges the WebSocket
// upgrade into Server.ServeUpgraded for callers who want their own HTTP
// framework driving the handshake route (spec.md §6).
package httpintegration

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderXCorrelationID is the header carrying the per-request correlation
// ID, echoed back to the caller and attached to the gin context.
const HeaderXCorrelationID = "X-Correlation-ID"

// CorrelationIDKey is the gin context key holding the correlation ID.
const CorrelationIDKey = "correlation_id"

// CorrelationID assigns a correlation ID to every request, reusing one
// supplied by the caller if present.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderXCorrelationID)
		if id == "" {
			id = uuid.New().String()
		}
		c.Header(HeaderXCorrelationID, id)
		c.Set(CorrelationIDKey, id)
		c.Next()
	}
}
