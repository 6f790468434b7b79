// Package handler exposes the sync job over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/NTPCdev/binance-ohlcv/internal/collector"
	"github.com/NTPCdev/binance-ohlcv/internal/storage"
)

// Runner executes one sync pass.
type Runner interface {
	Run(ctx context.Context) (*collector.Summary, error)
}

// Handler wires the sync runner and store health into gin routes.
type Handler struct {
	runner Runner
	health storage.HealthChecker
	logger *slog.Logger
}

// New creates a Handler.
func New(runner Runner, health storage.HealthChecker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{runner: runner, health: health, logger: logger}
}

// Router builds the gin engine with all routes registered.
func (h *Handler) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.POST("/sync", h.Sync)
	router.GET("/healthz", h.Healthz)
	return router
}

// Sync runs a full sync pass. Recoverable per-symbol problems are absorbed
// by the collector; an error here means the pass could not start at all.
func (h *Handler) Sync(c *gin.Context) {
	summary, err := h.runner.Run(c.Request.Context())
	if err != nil {
		h.logger.Error("sync request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"run_id":          summary.RunID,
		"processed":       summary.Processed,
		"skipped":         summary.Skipped,
		"windows":         summary.Windows,
		"candles_written": summary.CandlesWritten,
		"interrupted":     summary.Interrupted,
		"duration":        summary.Duration.String(),
	})
}

// Healthz reports whether the store is reachable.
func (h *Handler) Healthz(c *gin.Context) {
	if err := h.health.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
