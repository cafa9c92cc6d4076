package api

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"pagi-framework/fleetcheck/internal/orchestrator"
)

// runState is the part of the run service the middleware reports on.
type runState interface {
	IsRunInProgress() bool
	Last() *orchestrator.Snapshot
}

// statusPoll reports whether path is one of the liveness or readiness routes
// that load balancers hit every few seconds.
func statusPoll(path string) bool {
	return path == "/health" || path == "/ready"
}

// Recovery answers a handler panic with a 500 in the same {"status": ...}
// shape the handlers use. A background run is not affected.
func Recovery(logger *slog.Logger, runs runState) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.ErrorContext(c.Request.Context(), "handler panic",
				"panic", r,
				"stack", string(debug.Stack()),
				"route", c.FullPath(),
				"run_in_progress", runs.IsRunInProgress(),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"status": "internal-error"})
		}()
		c.Next()
	}
}

// Tracing starts a server span per API request. Status polls are not traced.
func Tracing(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName, otelgin.WithFilter(func(r *http.Request) bool {
		return !statusPoll(r.URL.Path)
	}))
}

// RequestLogger logs one line per request carrying the run state, and tags
// the request span with it. Status polls log at debug unless they fail.
func RequestLogger(logger *slog.Logger, runs runState) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		ctx := c.Request.Context()
		inProgress := runs.IsRunInProgress()
		trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("fleetcheck.run_in_progress", inProgress))

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"run_in_progress", inProgress,
		}
		if snap := runs.Last(); snap != nil && snap.Result != nil {
			attrs = append(attrs, "last_run_state", string(snap.Result.State))
		}

		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case statusPoll(c.Request.URL.Path):
			level = slog.LevelDebug
		}
		logger.Log(ctx, level, "request", attrs...)
	}
}
