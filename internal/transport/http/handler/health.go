package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"docchat/internal/app"
)

type HealthService interface {
	Uptime() time.Duration
	Ready(ctx context.Context) error
	Detailed(ctx context.Context) *app.HealthReport
}

// HealthHandler answers probes with bare JSON so load balancers need not
// understand the response envelope.
type HealthHandler struct {
	health  HealthService
	env     string
	version string
}

func NewHealthHandler(health HealthService, env, version string) *HealthHandler {
	return &HealthHandler{health: health, env: env, version: version}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.health.Ready(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    app.StatusError,
			"timestamp": time.Now().UTC(),
			"database":  "disconnected",
			"error":     "Database connection failed",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      app.StatusOK,
		"timestamp":   time.Now().UTC(),
		"uptime":      int64(h.health.Uptime().Seconds()),
		"database":    "connected",
		"environment": h.env,
	})
}

func (h *HealthHandler) Detailed(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	report := h.health.Detailed(ctx)
	statusCode := http.StatusOK
	if !report.Healthy() {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, gin.H{
		"status":      report.Status,
		"timestamp":   report.Timestamp,
		"uptime":      report.UptimeSec,
		"environment": h.env,
		"version":     h.version,
		"documents":   report.Documents,
		"chunks":      report.Chunks,
		"checks":      report.Checks,
	})
}

func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.health.Ready(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"alive": true})
}
