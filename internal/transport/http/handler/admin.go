package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docchat/internal/app"
	"docchat/internal/logger"
	"docchat/internal/model"
	"docchat/internal/transport/http/response"
)

type AdminService interface {
	BuildIndex(ctx context.Context) error
	SearchStats(ctx context.Context) (*app.SearchStats, error)
	ClearCache() int
	ActiveSessions(ctx context.Context) ([]model.SessionSummary, error)
	SessionStats(ctx context.Context, id string) (*model.SessionSummary, error)
	ClearSession(ctx context.Context, id string) (int64, error)
}

type AdminHandler struct {
	admin AdminService
}

func NewAdminHandler(admin AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

func (h *AdminHandler) CreateIndex(c *gin.Context) {
	if err := h.admin.BuildIndex(c.Request.Context()); err != nil {
		logger.Error("admin: create index failed", "error", err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "create index failed")
		return
	}
	response.OK(c, gin.H{"message": "Vector index created successfully"})
}

func (h *AdminHandler) SearchStats(c *gin.Context) {
	stats, err := h.admin.SearchStats(c.Request.Context())
	if err != nil {
		logger.Error("admin: search stats failed", "error", err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "search stats failed")
		return
	}
	response.OK(c, stats)
}

func (h *AdminHandler) ClearCache(c *gin.Context) {
	cleared := h.admin.ClearCache()
	response.OK(c, gin.H{"message": "Cache cleared successfully", "entries": cleared})
}

func (h *AdminHandler) ListSessions(c *gin.Context) {
	sessions, err := h.admin.ActiveSessions(c.Request.Context())
	if err != nil {
		logger.Error("admin: list sessions failed", "error", err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list sessions failed")
		return
	}
	response.OK(c, gin.H{"sessions": sessions, "count": len(sessions)})
}

func (h *AdminHandler) SessionStats(c *gin.Context) {
	stats, err := h.admin.SessionStats(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		writeSessionError(c, err, "session stats failed")
		return
	}
	response.OK(c, stats)
}

func (h *AdminHandler) ClearSession(c *gin.Context) {
	sessionID := c.Param("sessionId")
	removed, err := h.admin.ClearSession(c.Request.Context(), sessionID)
	if err != nil {
		writeSessionError(c, err, "clear session failed")
		return
	}
	response.OK(c, gin.H{"sessionId": sessionID, "deletedMessages": removed})
}

func writeSessionError(c *gin.Context, err error, fallback string) {
	if errors.Is(err, app.ErrSessionNotFound) {
		response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, err.Error())
		return
	}
	logger.Error("admin: session request failed", "error", err)
	response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
}
