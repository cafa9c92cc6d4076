package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Router wraps a configured Gin engine and exposes it as an http.Handler.
type Router struct {
	engine *gin.Engine
}

// NewRouter registers the status routes behind the middleware chain:
//  1. Recovery (panic -> 500)
//  2. Tracing (span per API request)
//  3. RequestLogger (run state on every line)
func NewRouter(svc runService, serviceName string) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(Recovery(slog.Default(), svc))
	engine.Use(Tracing(serviceName))
	engine.Use(RequestLogger(slog.Default(), svc))

	h := &Handler{runs: svc}

	v1 := engine.Group("/api/v1")
	v1.POST("/runs", h.StartRun)
	v1.GET("/report", h.Report)

	engine.GET("/health", h.Health)
	engine.GET("/ready", h.Ready)

	return &Router{engine: engine}
}

// Handler returns the underlying http.Handler for use with net/http servers.
func (r *Router) Handler() http.Handler {
	return r.engine
}
