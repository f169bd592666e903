// Package routes exposes the HTTP surface: company chat, per-server
// chat, model administration, and health. Streaming endpoints write
// text/plain chunked responses with raw token deltas and no framing.
package routes

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/darkmatter/assistant/mcpmemory"
	"github.com/darkmatter/assistant/ollama"
	"github.com/darkmatter/assistant/sessions"
	"github.com/darkmatter/assistant/stores"
)

// CompanyService is the company chat orchestrator surface.
type CompanyService interface {
	CreateThread(ctx context.Context, userID uuid.UUID, title string) (uuid.UUID, error)
	Threads(ctx context.Context, userID uuid.UUID) ([]stores.ChatThread, error)
	Messages(ctx context.Context, threadID string, limit int) ([]stores.Turn, error)
	SendMessage(ctx context.Context, threadID, userMessage string, w sessions.TokenWriter) (sessions.SendResult, error)
	SummarizeThread(ctx context.Context, threadID string) (string, error)
}

// ServerService is the per-server chat orchestrator surface.
type ServerService interface {
	SendMessage(ctx context.Context, target sessions.ServerTarget, userMessage string, w sessions.TokenWriter) (sessions.SendResult, error)
	Messages(ctx context.Context, target sessions.ServerTarget, limit int) ([]stores.Turn, error)
	Clear(ctx context.Context, target sessions.ServerTarget) error
}

// ModelAdmin is the model registry surface of the gateway.
type ModelAdmin interface {
	ListModels(ctx context.Context) ([]ollama.ModelInfo, error)
	ShowModel(ctx context.Context, model string) (map[string]any, error)
	PullModel(ctx context.Context, model string) error
	DeleteModel(ctx context.Context, model string) error
	HealthCheck(ctx context.Context) ollama.Health
}

// MemoryStatuser checks a remote server's memory API.
type MemoryStatuser interface {
	Status(ctx context.Context, target mcpmemory.Target) (mcpmemory.StatusResult, error)
}

// Pinger checks one backing service's reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Company CompanyService
	Server  ServerService
	Models  ModelAdmin
	Memory  MemoryStatuser
	DB      Pinger
	Cache   Pinger
	Logger  *zap.Logger
}

// Register mounts all routes on r.
func Register(r *gin.Engine, d Deps) {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}

	api := r.Group("/api")

	company := &companyHandler{svc: d.Company, logger: d.Logger}
	api.POST("/chat/threads", company.createThread)
	api.GET("/chat/threads", company.listThreads)
	api.GET("/chat/threads/:thread_id/messages", company.listMessages)
	api.POST("/chat/threads/:thread_id/messages", company.sendMessage)
	api.POST("/chat/threads/:thread_id/summarize", company.summarize)

	server := &serverHandler{svc: d.Server, memory: d.Memory, logger: d.Logger}
	api.POST("/mcp/chat", server.sendMessage)
	api.GET("/mcp/chat/history", server.history)
	api.DELETE("/mcp/chat/history", server.clear)
	api.GET("/mcp/memory/status", server.memoryStatus)

	admin := &adminHandler{models: d.Models, db: d.DB, cache: d.Cache, logger: d.Logger}
	api.GET("/models", admin.list)
	api.GET("/models/:name", admin.show)
	api.POST("/models/pull", admin.pull)
	api.DELETE("/models/:name", admin.remove)
	api.GET("/health", admin.health)
}

// streamWriter adapts gin's response writer to the token stream
// contract, flushing after every delta so tokens reach the caller as
// they are produced. Headers are committed on the first delta, leaving
// earlier failures free to answer with a JSON error.
type streamWriter struct {
	w     gin.ResponseWriter
	wrote bool
}

func (s *streamWriter) WriteToken(text string) error {
	if !s.wrote {
		s.w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	if _, err := io.WriteString(s.w, text); err != nil {
		return err
	}
	s.w.Flush()
	s.wrote = true
	return nil
}

// writeError maps the client error taxonomy onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	var (
		ve *ollama.ValidationError
		me *ollama.ModelError
		te *ollama.TransportError
	)
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &me):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &te):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// finishStream closes out a streaming handler: errors raised before the
// first byte become normal JSON errors, later ones can only be logged.
func finishStream(c *gin.Context, w *streamWriter, err error, logger *zap.Logger) {
	if err != nil {
		if !w.wrote {
			writeError(c, err)
			return
		}
		logger.Error("turn failed after streaming started",
			zap.String("path", c.FullPath()), zap.Error(err))
		return
	}
	if !w.wrote {
		c.Status(http.StatusOK)
	}
}
