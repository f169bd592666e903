package routes

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/darkmatter/assistant/mcpmemory"
	"github.com/darkmatter/assistant/sessions"
)

type serverHandler struct {
	svc    ServerService
	memory MemoryStatuser
	logger *zap.Logger
}

type serverChatRequest struct {
	ServerID   string `json:"server_id" binding:"required"`
	ServerName string `json:"server_name"`
	ServerURL  string `json:"server_url" binding:"required"`
	Token      string `json:"token"`
	ThreadID   string `json:"thread_id" binding:"required"`
	Message    string `json:"message" binding:"required"`
}

func (r serverChatRequest) target() sessions.ServerTarget {
	return sessions.ServerTarget{
		ServerID:   r.ServerID,
		ServerName: r.ServerName,
		ThreadID:   r.ThreadID,
		BaseURL:    r.ServerURL,
		Token:      r.Token,
	}
}

func (h *serverHandler) sendMessage(c *gin.Context) {
	var req serverChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	w := &streamWriter{w: c.Writer}
	_, err := h.svc.SendMessage(c.Request.Context(), req.target(), req.Message, w)
	finishStream(c, w, err, h.logger)
}

func (h *serverHandler) queryTarget(c *gin.Context) sessions.ServerTarget {
	return sessions.ServerTarget{
		ServerID: c.Query("server_id"),
		ThreadID: c.Query("thread_id"),
	}
}

func (h *serverHandler) history(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	turns, err := h.svc.Messages(c.Request.Context(), h.queryTarget(c), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": turns})
}

func (h *serverHandler) clear(c *gin.Context) {
	if err := h.svc.Clear(c.Request.Context(), h.queryTarget(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

func (h *serverHandler) memoryStatus(c *gin.Context) {
	target := mcpmemory.Target{
		BaseURL:  c.Query("server_url"),
		ServerID: c.Query("server_id"),
		Token:    c.Query("token"),
	}

	status, err := h.memory.Status(c.Request.Context(), target)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
