package httpintegration

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router wires the ambient HTTP surface around an embedded Server: CORS,
// correlation IDs, health probes, and metrics. The WebSocket route itself
// is registered separately via Bridge.Handle, since its path is up to the
// embedding application.
type Router struct {
	engine *gin.Engine
}

// NewRouter builds the Gin engine. allowedOrigins empty means same-origin
// only, matching gin-contrib/cors's safe default.
func NewRouter(allowedOrigins []string, readiness func() bool) *Router {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(CorrelationID())

	corsCfg := cors.DefaultConfig()
	if len(allowedOrigins) > 0 {
		corsCfg.AllowOrigins = allowedOrigins
	} else {
		corsCfg.AllowOriginFunc = func(origin string) bool { return false }
	}
	corsCfg.AllowCredentials = true
	engine.Use(cors.New(corsCfg))

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/readyz", func(c *gin.Context) {
		if readiness != nil && !readiness() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &Router{engine: engine}
}

// Engine returns the underlying *gin.Engine so callers can register the
// WebSocket route (via Bridge.Handle) and any application routes of
// their own.
func (r *Router) Engine() *gin.Engine { return r.engine }
