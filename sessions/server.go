package sessions

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/darkmatter/assistant/mcpmemory"
	"github.com/darkmatter/assistant/ollama"
	"github.com/darkmatter/assistant/retrieval"
	"github.com/darkmatter/assistant/stores"
)

const (
	defaultServerHistory  = 8
	defaultRetrieveLimit  = 5
	defaultPromptTemplate = "You are a helpful assistant for the %s server. Answer using the server's memory and context when it is relevant."
)

// ServerConfig tunes the per-server assistant.
type ServerConfig struct {
	Model          string
	PromptTemplate string // rendered with the server's display name
	HistoryLimit   int
	RetrieveLimit  int
	Temperature    float64
	NumCtx         int
}

// ServerTarget identifies the remote server and conversation one request
// addresses. BaseURL and Token come from the caller's request body.
type ServerTarget struct {
	ServerID   string
	ServerName string
	ThreadID   string
	BaseURL    string
	Token      string
}

func (t ServerTarget) memoryTarget() mcpmemory.Target {
	return mcpmemory.Target{BaseURL: t.BaseURL, ServerID: t.ServerID, Token: t.Token}
}

func (t ServerTarget) threadKey() string {
	return t.ServerID + ":" + t.ThreadID
}

// ServerChat orchestrates the ephemeral per-server assistant: remote
// memory grounding, streaming generation pinned to CPU, a TTL-windowed
// history cache, and a best-effort memory push after each turn.
type ServerChat struct {
	gateway Generator
	cache   TurnCache
	fetcher retrieval.MemoryFetcher
	sink    MemorySink
	cfg     ServerConfig
	logger  *zap.Logger
}

// NewServerChat wires the server orchestrator. fetcher and sink are
// usually the same mcpmemory client.
func NewServerChat(gateway Generator, cache TurnCache, fetcher retrieval.MemoryFetcher, sink MemorySink, cfg ServerConfig, logger *zap.Logger) *ServerChat {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultServerHistory
	}
	if cfg.RetrieveLimit <= 0 {
		cfg.RetrieveLimit = defaultRetrieveLimit
	}
	if cfg.PromptTemplate == "" {
		cfg.PromptTemplate = defaultPromptTemplate
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ServerChat{gateway: gateway, cache: cache, fetcher: fetcher, sink: sink, cfg: cfg, logger: logger}
}

func (s *ServerChat) validateTarget(target ServerTarget) error {
	if err := ValidateIdentifier("server_id", target.ServerID); err != nil {
		return err
	}
	return ValidateIdentifier("thread_id", target.ThreadID)
}

// SendMessage runs one conversation turn against a remote server's
// assistant: fetch cached history and server memory, stream the answer
// through w, update the cache, then push the turn to the server's
// memory sink. Cache write failures propagate; the memory push is
// best-effort.
func (s *ServerChat) SendMessage(ctx context.Context, target ServerTarget, userMessage string, w TokenWriter) (SendResult, error) {
	if err := s.validateTarget(target); err != nil {
		return SendResult{}, err
	}
	if err := ValidateMessage(userMessage); err != nil {
		return SendResult{}, err
	}

	threadKey := target.threadKey()
	history, err := s.cache.GetRecent(ctx, threadKey, s.cfg.HistoryLimit-1)
	if err != nil {
		s.logger.Warn("failed to load cached history, answering without it",
			zap.String("thread_key", threadKey), zap.Error(err))
		history = nil
	}

	assembler := retrieval.NewMemoryRetriever(s.fetcher, target.memoryTarget(), s.cfg.RetrieveLimit, s.logger)
	grounding := assembler.Assemble(ctx, userMessage, target.ThreadID)

	serverName := target.ServerName
	if serverName == "" {
		serverName = target.ServerID
	}

	messages := make([]ollama.ChatMessage, 0, len(history)+len(grounding.Messages)+2)
	messages = append(messages, ollama.ChatMessage{
		Role:    ollama.RoleSystem,
		Content: fmt.Sprintf(s.cfg.PromptTemplate, serverName),
	})
	messages = append(messages, grounding.Messages...)
	messages = append(messages, turnsToMessages(history)...)
	messages = append(messages, ollama.ChatMessage{Role: ollama.RoleUser, Content: userMessage})

	// num_gpu 0 keeps these ad-hoc sessions off the GPU so the company
	// assistant's model stays resident.
	opts := ollama.GenerateOptions{
		Model:       s.cfg.Model,
		Temperature: ollama.Float64(s.cfg.Temperature),
		NumCtx:      ollama.Int(s.cfg.NumCtx),
		NumGPU:      ollama.Int(0),
		KeepAlive:   ollama.Int(0),
	}

	res := streamTurn(ctx, s.gateway, opts, messages, w, s.logger)
	res.SnippetsUsed = len(grounding.Snippets)

	now := time.Now().UTC()
	if err := s.cache.AppendMessage(ctx, threadKey, stores.Turn{
		Role:      ollama.RoleUser,
		Content:   userMessage,
		Timestamp: now,
	}); err != nil {
		return res, fmt.Errorf("failed to cache user message: %w", err)
	}
	if err := s.cache.AppendMessage(ctx, threadKey, stores.Turn{
		Role:       ollama.RoleAssistant,
		Content:    res.Content,
		ModelUsed:  res.Model,
		TokenCount: res.TokenCount,
		Timestamp:  now.Add(time.Millisecond),
	}); err != nil {
		return res, fmt.Errorf("failed to cache assistant message: %w", err)
	}

	s.pushMemory(ctx, target, userMessage, res)
	return res, nil
}

// pushMemory stores the completed turn in the remote server's memory.
// The turn is already complete from the caller's perspective, so every
// failure here is logged and absorbed.
func (s *ServerChat) pushMemory(ctx context.Context, target ServerTarget, userMessage string, res SendResult) {
	metadata := map[string]any{
		"model":         res.Model,
		"token_count":   res.TokenCount,
		"snippets_used": res.SnippetsUsed,
	}
	out, err := s.sink.Append(ctx, target.memoryTarget(), target.ThreadID, userMessage, res.Content, metadata)
	if err != nil {
		s.logger.Warn("memory append failed",
			zap.String("server_url", target.BaseURL), zap.Error(err))
		return
	}
	if !out.Supported {
		return
	}
	s.logger.Debug("pushed turn to server memory",
		zap.String("server_id", target.ServerID),
		zap.String("thread_id", target.ThreadID))
}

// Messages returns up to limit cached turns, oldest first.
func (s *ServerChat) Messages(ctx context.Context, target ServerTarget, limit int) ([]stores.Turn, error) {
	if err := s.validateTarget(target); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.cfg.HistoryLimit {
		limit = s.cfg.HistoryLimit
	}
	return s.cache.GetRecent(ctx, target.threadKey(), limit)
}

// Clear drops the cached conversation.
func (s *ServerChat) Clear(ctx context.Context, target ServerTarget) error {
	if err := s.validateTarget(target); err != nil {
		return err
	}
	return s.cache.Clear(ctx, target.threadKey())
}
