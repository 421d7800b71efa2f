package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/docgen/docgen-sub000/internal/adapters/primary/http/dto"
	"github.com/docgen/docgen-sub000/internal/adapters/primary/http/middleware"
	"github.com/docgen/docgen-sub000/internal/core/service/worker"
)

// WorkerController exposes the batch worker's §4.11 status and counters.
type WorkerController struct {
	w *worker.Worker
}

func NewWorkerController(w *worker.Worker) *WorkerController {
	return &WorkerController{w: w}
}

func (c *WorkerController) RegisterRoutes(group gin.IRouter) {
	group.GET("/worker/status", c.Status)
	group.GET("/worker/stats", c.Stats)
}

// Status returns the per-replica worker view.
// @Summary Worker status
// @Tags Worker
// @Produce json
// @Success 200 {object} dto.WorkerStatusResponse
// @Router /worker/status [get]
func (c *WorkerController) Status(ctx *gin.Context) {
	stats := c.w.Stats()
	ctx.JSON(http.StatusOK, dto.WorkerStatusResponse{
		IsRunning:         stats.IsRunning,
		CurrentQueueDepth: stats.CurrentQueueDepth,
		LastPollTime:      stats.LastPollTime,
		CorrelationID:     middleware.GetCorrelationID(ctx),
	})
}

// Stats returns the per-replica worker counters.
// @Summary Worker stats
// @Tags Worker
// @Produce json
// @Success 200 {object} dto.WorkerStatsResponse
// @Router /worker/stats [get]
func (c *WorkerController) Stats(ctx *gin.Context) {
	stats := c.w.Stats()
	ctx.JSON(http.StatusOK, dto.WorkerStatsResponse{
		WorkerStatusResponse: dto.WorkerStatusResponse{
			IsRunning:         stats.IsRunning,
			CurrentQueueDepth: stats.CurrentQueueDepth,
			LastPollTime:      stats.LastPollTime,
			CorrelationID:     middleware.GetCorrelationID(ctx),
		},
		TotalProcessed: stats.Processed,
		TotalSucceeded: stats.Succeeded,
		TotalFailed:    stats.Failed,
		TotalRetries:   stats.Retried,
		UptimeSeconds:  uptimeSince(stats.StartedAt),
	})
}

func uptimeSince(startedAt time.Time) float64 {
	if startedAt.IsZero() {
		return 0
	}
	return time.Since(startedAt).Seconds()
}
