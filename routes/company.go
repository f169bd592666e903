package routes

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultMessagesLimit = 50

type companyHandler struct {
	svc    CompanyService
	logger *zap.Logger
}

type createThreadRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Title  string `json:"title"`
}

func (h *companyHandler) createThread(c *gin.Context) {
	var req createThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}

	threadID, err := h.svc.CreateThread(c.Request.Context(), userID, req.Title)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"thread_id": threadID})
}

func (h *companyHandler) listThreads(c *gin.Context) {
	userID, err := uuid.Parse(c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}

	threads, err := h.svc.Threads(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"threads": threads})
}

func (h *companyHandler) listMessages(c *gin.Context) {
	limit := defaultMessagesLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	turns, err := h.svc.Messages(c.Request.Context(), c.Param("thread_id"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": turns})
}

type sendMessageRequest struct {
	Message string `json:"message" binding:"required"`
}

func (h *companyHandler) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	w := &streamWriter{w: c.Writer}
	_, err := h.svc.SendMessage(c.Request.Context(), c.Param("thread_id"), req.Message, w)
	finishStream(c, w, err, h.logger)
}

func (h *companyHandler) summarize(c *gin.Context) {
	summary, err := h.svc.SummarizeThread(c.Request.Context(), c.Param("thread_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}
