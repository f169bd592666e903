// Package sessions implements the per-request conversation orchestrators:
// CompanyChat drives the durable, knowledge-grounded assistant and
// ServerChat drives the ephemeral, server-memory-grounded assistant. Both
// assemble grounding and history into one prompt, stream model tokens to
// the caller, and persist the completed turn.
package sessions

import (
	"context"

	"github.com/google/uuid"

	"github.com/darkmatter/assistant/mcpmemory"
	"github.com/darkmatter/assistant/ollama"
	"github.com/darkmatter/assistant/stores"
)

// TokenWriter receives streamed text deltas. Implementations decide the
// transport framing; a write error means the caller is gone.
type TokenWriter interface {
	WriteToken(text string) error
}

// Generator is the model gateway surface the orchestrators need.
type Generator interface {
	ChatStream(ctx context.Context, opts ollama.GenerateOptions, messages []ollama.ChatMessage) (<-chan ollama.StreamChunk, <-chan error)
	Generate(ctx context.Context, opts ollama.GenerateOptions, prompt string) (*ollama.GenerateResponse, error)
}

// ThreadStore is the durable side of the conversation store, including
// thread management.
type ThreadStore interface {
	CreateThread(ctx context.Context, userID uuid.UUID, title string) (uuid.UUID, error)
	ListThreads(ctx context.Context, userID uuid.UUID) ([]stores.ChatThread, error)
	AppendMessage(ctx context.Context, threadKey string, turn stores.Turn) error
	GetRecent(ctx context.Context, threadKey string, limit int) ([]stores.Turn, error)
}

// TurnCache is the ephemeral side of the conversation store.
type TurnCache interface {
	AppendMessage(ctx context.Context, threadKey string, turn stores.Turn) error
	GetRecent(ctx context.Context, threadKey string, limit int) ([]stores.Turn, error)
	Clear(ctx context.Context, threadKey string) error
}

// MemorySink pushes completed turns to a remote server's memory API.
type MemorySink interface {
	Append(ctx context.Context, target mcpmemory.Target, threadID, userMessage, assistantMessage string, metadata map[string]any) (mcpmemory.AppendResult, error)
}

// SendResult describes one completed streamed turn. TokenCount is the
// number of forwarded deltas, an approximation, not a tokenizer count.
type SendResult struct {
	Content      string
	Model        string
	TokenCount   int
	ChunksUsed   int
	SnippetsUsed int
}

func turnsToMessages(turns []stores.Turn) []ollama.ChatMessage {
	msgs := make([]ollama.ChatMessage, len(turns))
	for i, t := range turns {
		msgs[i] = ollama.ChatMessage{Role: t.Role, Content: t.Content}
	}
	return msgs
}
