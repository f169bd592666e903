package sessions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/darkmatter/assistant/ollama"
	"github.com/darkmatter/assistant/retrieval"
	"github.com/darkmatter/assistant/stores"
)

// SummaryMarker prefixes the system message a summarization writes, so
// compaction can tell already-summarized threads apart.
const SummaryMarker = "[THREAD SUMMARY]: "

const (
	defaultCompanyHistory = 10
	summaryFetchLimit     = 50
	summaryMinMessages    = 5

	// SummaryTooShort is returned without calling the model when a
	// thread has too few messages to be worth summarizing.
	SummaryTooShort = "Thread too short to summarize"
)

// CompanyConfig tunes the company assistant.
type CompanyConfig struct {
	Model        string
	SystemPrompt string
	HistoryLimit int
	Temperature  float64
	NumCtx       int
}

// CompanyChat orchestrates the durable company assistant: knowledge base
// grounding, streaming generation, and relational persistence.
type CompanyChat struct {
	gateway   Generator
	store     ThreadStore
	assembler retrieval.Assembler
	cfg       CompanyConfig
	logger    *zap.Logger
}

// NewCompanyChat wires the company orchestrator.
func NewCompanyChat(gateway Generator, store ThreadStore, assembler retrieval.Assembler, cfg CompanyConfig, logger *zap.Logger) *CompanyChat {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultCompanyHistory
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompanyChat{gateway: gateway, store: store, assembler: assembler, cfg: cfg, logger: logger}
}

// CreateThread creates an empty thread for userID.
func (c *CompanyChat) CreateThread(ctx context.Context, userID uuid.UUID, title string) (uuid.UUID, error) {
	return c.store.CreateThread(ctx, userID, title)
}

// Threads lists userID's threads, most recently active first.
func (c *CompanyChat) Threads(ctx context.Context, userID uuid.UUID) ([]stores.ChatThread, error) {
	return c.store.ListThreads(ctx, userID)
}

// Messages returns up to limit recent messages of a thread, oldest first.
func (c *CompanyChat) Messages(ctx context.Context, threadID string, limit int) ([]stores.Turn, error) {
	if err := ValidateIdentifier("thread_id", threadID); err != nil {
		return nil, err
	}
	return c.store.GetRecent(ctx, threadID, limit)
}

// SendMessage runs one conversation turn: fetch history and grounding,
// stream the model's answer through w, then persist the user and
// assistant messages. Grounding failures degrade to an ungrounded
// answer; persistence failures propagate.
func (c *CompanyChat) SendMessage(ctx context.Context, threadID, userMessage string, w TokenWriter) (SendResult, error) {
	if err := ValidateIdentifier("thread_id", threadID); err != nil {
		return SendResult{}, err
	}
	if err := ValidateMessage(userMessage); err != nil {
		return SendResult{}, err
	}

	history, err := c.store.GetRecent(ctx, threadID, c.cfg.HistoryLimit-1)
	if err != nil {
		c.logger.Warn("failed to load thread history, answering without it",
			zap.String("thread_id", threadID), zap.Error(err))
		history = nil
	}

	grounding := c.assembler.Assemble(ctx, userMessage, threadID)

	messages := make([]ollama.ChatMessage, 0, len(history)+len(grounding.Messages)+2)
	messages = append(messages, ollama.ChatMessage{Role: ollama.RoleSystem, Content: c.cfg.SystemPrompt})
	messages = append(messages, grounding.Messages...)
	messages = append(messages, turnsToMessages(history)...)
	messages = append(messages, ollama.ChatMessage{Role: ollama.RoleUser, Content: userMessage})

	opts := ollama.GenerateOptions{
		Model:       c.cfg.Model,
		Temperature: ollama.Float64(c.cfg.Temperature),
		NumCtx:      ollama.Int(c.cfg.NumCtx),
		KeepAlive:   ollama.Int(0),
	}

	res := streamTurn(ctx, c.gateway, opts, messages, w, c.logger)
	res.ChunksUsed = len(grounding.Chunks)

	now := time.Now().UTC()
	if err := c.store.AppendMessage(ctx, threadID, stores.Turn{
		Role:      ollama.RoleUser,
		Content:   userMessage,
		Timestamp: now,
	}); err != nil {
		return res, fmt.Errorf("failed to persist user message: %w", err)
	}
	if err := c.store.AppendMessage(ctx, threadID, stores.Turn{
		Role:       ollama.RoleAssistant,
		Content:    res.Content,
		ModelUsed:  res.Model,
		TokenCount: res.TokenCount,
		Timestamp:  now.Add(time.Millisecond),
	}); err != nil {
		return res, fmt.Errorf("failed to persist assistant message: %w", err)
	}

	return res, nil
}

// SummarizeThread condenses a thread into a short summary stored as a
// marked system message. Generation failures yield a descriptive failure
// string instead of an error; only a failed store write propagates.
func (c *CompanyChat) SummarizeThread(ctx context.Context, threadID string) (string, error) {
	if err := ValidateIdentifier("thread_id", threadID); err != nil {
		return "", err
	}

	turns, err := c.store.GetRecent(ctx, threadID, summaryFetchLimit)
	if err != nil {
		return "", fmt.Errorf("failed to load thread for summarization: %w", err)
	}
	if len(turns) < summaryMinMessages {
		return SummaryTooShort, nil
	}

	var transcript strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&transcript, "%s: %s\n", strings.ToUpper(t.Role), t.Content)
	}

	prompt := fmt.Sprintf(
		"Summarize this conversation in 2-3 sentences, keeping the key facts and decisions:\n\n%s\nSummary:",
		transcript.String())

	resp, err := c.gateway.Generate(ctx, ollama.GenerateOptions{
		Model:       c.cfg.Model,
		Temperature: ollama.Float64(0.3),
		NumCtx:      ollama.Int(c.cfg.NumCtx),
	}, prompt)
	if err != nil {
		c.logger.Error("thread summarization failed",
			zap.String("thread_id", threadID), zap.Error(err))
		return "Summarization failed: " + err.Error(), nil
	}

	summary := strings.TrimSpace(resp.Response)
	if err := c.store.AppendMessage(ctx, threadID, stores.Turn{
		Role:      ollama.RoleSystem,
		Content:   SummaryMarker + summary,
		ModelUsed: c.cfg.Model,
	}); err != nil {
		return "", fmt.Errorf("failed to store thread summary: %w", err)
	}

	c.logger.Info("summarized thread", zap.String("thread_id", threadID))
	return summary, nil
}
