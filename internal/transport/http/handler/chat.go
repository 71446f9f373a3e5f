package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"docchat/internal/ai"
	"docchat/internal/app"
	"docchat/internal/logger"
	"docchat/internal/model"
	"docchat/internal/transport/http/response"
)

type ChatService interface {
	SendMessage(ctx context.Context, in app.SendMessageInput) (*app.ChatResult, error)
	StreamMessage(ctx context.Context, in app.SendMessageInput, onFragment func(string) error) (*app.ChatResult, error)
	History(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error)
}

type ChatHandler struct {
	chatService ChatService
}

type SendMessageRequest struct {
	Message   string `json:"message" binding:"required"`
	SessionID string `json:"sessionId"`
}

func NewChatHandler(chatService ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.chatService.SendMessage(c.Request.Context(), app.SendMessageInput{
		SessionID: req.SessionID,
		Message:   req.Message,
	})
	if err != nil {
		status, code := chatErrorStatus(err)
		response.Error(c, status, code, userFacing(err))
		return
	}

	response.OK(c, result)
}

// StreamMessage answers over server-sent events: one data event per text
// fragment, then a done event carrying the full result as JSON.
func (h *ChatHandler) StreamMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}

	result, err := h.chatService.StreamMessage(c.Request.Context(), app.SendMessageInput{
		SessionID: req.SessionID,
		Message:   req.Message,
	}, func(fragment string) error {
		if _, writeErr := c.Writer.Write([]byte("data: " + sanitizeSSE(fragment) + "\n\n")); writeErr != nil {
			return writeErr
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		if _, writeErr := c.Writer.Write([]byte(fmt.Sprintf("event: error\ndata: %s\n\n", sanitizeSSE(userFacing(err))))); writeErr == nil {
			flusher.Flush()
		}
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		logger.Error("chat: encode stream result failed", "error", err)
		return
	}
	if _, writeErr := c.Writer.Write([]byte("event: done\ndata: " + string(payload) + "\n\n")); writeErr == nil {
		flusher.Flush()
	}
}

func (h *ChatHandler) GetHistory(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("sessionId"))
	if sessionID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid sessionId")
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, parseErr := strconv.Atoi(raw); parseErr == nil {
			limit = parsed
		}
	}

	history, err := h.chatService.History(c.Request.Context(), sessionID, limit)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrSessionNotFound):
			response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, err.Error())
		default:
			logger.Error("chat: history failed", "session_id", sessionID, "error", err)
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get history failed")
		}
		return
	}

	response.OK(c, gin.H{"sessionId": sessionID, "messages": history})
}

func chatErrorStatus(err error) (int, int) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		return http.StatusBadRequest, response.CodeBadRequest
	case errors.Is(err, app.ErrSessionNotFound):
		return http.StatusNotFound, response.CodeSessionNotFound
	case errors.Is(err, app.ErrTryAgain):
		return http.StatusTooManyRequests, response.CodeRateLimited
	case errors.Is(err, app.ErrConfiguration):
		return http.StatusInternalServerError, response.CodeConfiguration
	case errors.Is(err, ai.ErrProviderUnavailable):
		return http.StatusServiceUnavailable, response.CodeUnavailable
	default:
		return http.StatusInternalServerError, response.CodeInternalServer
	}
}

// userFacing hides provider details that are not meant for end users.
func userFacing(err error) string {
	switch {
	case errors.Is(err, app.ErrInvalidInput),
		errors.Is(err, app.ErrSessionNotFound),
		errors.Is(err, app.ErrTryAgain),
		errors.Is(err, app.ErrConfiguration):
		return err.Error()
	case errors.Is(err, ai.ErrProviderAuth):
		return app.ErrConfiguration.Error()
	case errors.Is(err, ai.ErrProviderRateLimited):
		return app.ErrTryAgain.Error()
	default:
		return "failed to process message"
	}
}

func sanitizeSSE(input string) string {
	replaced := strings.ReplaceAll(input, "\r\n", "\\n")
	replaced = strings.ReplaceAll(replaced, "\n", "\\n")
	return replaced
}
