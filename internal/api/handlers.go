package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"pagi-framework/fleetcheck/internal/orchestrator"
)

// runService is the subset of *orchestrator.Service used by the handlers.
type runService interface {
	Run(ctx context.Context) (*orchestrator.RunResult, error)
	Last() *orchestrator.Snapshot
	IsReady() bool
	IsRunInProgress() bool
}

// Handler holds the dependencies shared across all HTTP handlers.
type Handler struct {
	runs runService
}

// StartRun handles POST /api/v1/runs. It answers 202 and runs the validation
// in the background, or 409 if a run is already active.
func (h *Handler) StartRun(c *gin.Context) {
	if h.runs.IsRunInProgress() {
		c.JSON(http.StatusConflict, gin.H{"status": "in-progress"})
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	go func() {
		res, err := h.runs.Run(ctx)
		switch {
		case errors.Is(err, orchestrator.ErrRunInProgress):
			slog.InfoContext(ctx, "run request raced an active run")
		case err != nil:
			slog.WarnContext(ctx, "background run ended with error", "err", err)
		default:
			slog.InfoContext(ctx, "background run finished", "failed", res.Summary.Failed)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// Report handles GET /api/v1/report. It serves the last report document, or
// 404 before the first run has finished.
func (h *Handler) Report(c *gin.Context) {
	snap := h.runs.Last()
	if snap == nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "no-report"})
		return
	}
	c.Header("Last-Modified", snap.FinishedAt.UTC().Format(http.TimeFormat))
	c.Header("X-Run-State", string(snap.Result.State))
	c.JSON(http.StatusOK, snap.Document)
}

// Health handles GET /health. Always 200.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"run_in_progress": h.runs.IsRunInProgress(),
	})
}

// Ready handles GET /ready: 200 only when the last run had zero failures.
func (h *Handler) Ready(c *gin.Context) {
	if h.runs.IsReady() {
		c.JSON(http.StatusOK, gin.H{"ready": true})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
}
