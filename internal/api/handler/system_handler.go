package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/print-relay/internal/api/dto"
	"github.com/gin-gonic/gin"
)

const healthTimeout = 2 * time.Second

// Health handles GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	resp := dto.HealthResponse{
		Status:   "healthy",
		Database: "up",
		Sessions: h.hub.Presence().Count,
	}

	if err := h.dbClient.HealthCheck(ctx); err != nil {
		h.logger.Error("Health check failed", slog.Any("error", err))
		resp.Status = "unhealthy"
		resp.Database = "down"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Sessions handles GET /api/v1/sessions
// Returns the presence snapshot of live push sessions
func (h *SystemHandler) Sessions(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Presence())
}

// PushChannel handles GET /ws; the credential is presented in-band after the upgrade
func (h *SystemHandler) PushChannel(c *gin.Context) {
	h.hub.ServeHTTP(c.Writer, c.Request)
}
