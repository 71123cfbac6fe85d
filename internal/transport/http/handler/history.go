package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/app"
	"chatrelay/internal/model"
	"chatrelay/internal/transport/http/response"
)

type HistoryHandler struct {
	historyService *app.HistoryService
}

type historyEntry struct {
	Role      model.Role `json:"role"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"createdAt"`
}

type ClearHistoryRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
}

func NewHistoryHandler(historyService *app.HistoryService) *HistoryHandler {
	return &HistoryHandler{historyService: historyService}
}

func (h *HistoryHandler) Get(c *gin.Context) {
	messages, err := h.historyService.Get(c.Request.Context(), c.Query("sessionId"))
	if err != nil {
		writeServiceError(c, err, "get history failed")
		return
	}

	history := make([]historyEntry, 0, len(messages))
	for _, m := range messages {
		history = append(history, historyEntry{Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt})
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

func (h *HistoryHandler) Clear(c *gin.Context) {
	var req ClearHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request payload")
		return
	}
	if err := h.historyService.Clear(c.Request.Context(), req.SessionID); err != nil {
		writeServiceError(c, err, "clear history failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
