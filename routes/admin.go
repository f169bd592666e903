package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type adminHandler struct {
	models ModelAdmin
	db     Pinger
	cache  Pinger
	logger *zap.Logger
}

func (h *adminHandler) list(c *gin.Context) {
	models, err := h.models.ListModels(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}

func (h *adminHandler) show(c *gin.Context) {
	info, err := h.models.ShowModel(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

type pullRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *adminHandler) pull(c *gin.Context) {
	var req pullRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.models.PullModel(c.Request.Context(), req.Name); err != nil {
		writeError(c, err)
		return
	}
	h.logger.Info("pulled model", zap.String("model", req.Name))
	c.JSON(http.StatusOK, gin.H{"pulled": req.Name})
}

func (h *adminHandler) remove(c *gin.Context) {
	name := c.Param("name")
	if err := h.models.DeleteModel(c.Request.Context(), name); err != nil {
		writeError(c, err)
		return
	}
	h.logger.Info("deleted model", zap.String("model", name))
	c.JSON(http.StatusOK, gin.H{"deleted": name})
}

// health aggregates reachability of every backing service. The endpoint
// itself always answers 200; degradation is reported in the body.
func (h *adminHandler) health(c *gin.Context) {
	ctx := c.Request.Context()

	ollamaHealth := h.models.HealthCheck(ctx)
	status := "ok"
	if !ollamaHealth.Connected {
		status = "degraded"
	}

	dbStatus := "ok"
	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			dbStatus = err.Error()
			status = "degraded"
		}
	}

	cacheStatus := "ok"
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			cacheStatus = err.Error()
			status = "degraded"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"ollama":   ollamaHealth,
		"database": dbStatus,
		"cache":    cacheStatus,
	})
}
