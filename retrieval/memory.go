package retrieval

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/darkmatter/assistant/mcpmemory"
	"github.com/darkmatter/assistant/ollama"
)

// MemoryFetcher retrieves memory snippets from a remote MCP server.
type MemoryFetcher interface {
	Retrieve(ctx context.Context, target mcpmemory.Target, threadID, query string, limit int) (mcpmemory.RetrieveResult, error)
}

// MemoryRetriever grounds a query in a remote server's memory. Built
// per request because the target server comes from the request itself.
type MemoryRetriever struct {
	fetcher MemoryFetcher
	target  mcpmemory.Target
	limit   int
	logger  *zap.Logger
}

// NewMemoryRetriever creates a server-memory assembler for one target.
func NewMemoryRetriever(fetcher MemoryFetcher, target mcpmemory.Target, limit int, logger *zap.Logger) *MemoryRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryRetriever{fetcher: fetcher, target: target, limit: limit, logger: logger}
}

// Assemble fetches snippets for query. Unsupported servers, empty
// results, and transport failures all yield empty grounding.
func (r *MemoryRetriever) Assemble(ctx context.Context, query, threadKey string) Grounding {
	res, err := r.fetcher.Retrieve(ctx, r.target, threadKey, query, r.limit)
	if err != nil {
		r.logger.Warn("memory retrieval failed",
			zap.String("server_url", r.target.BaseURL), zap.Error(err))
		return Grounding{}
	}
	if !res.Supported || len(res.Snippets) == 0 {
		return Grounding{}
	}

	return Grounding{
		Messages: []ollama.ChatMessage{{Role: ollama.RoleSystem, Content: buildSnippetMessage(res.Snippets)}},
		Snippets: res.Snippets,
	}
}

func buildSnippetMessage(snippets []mcpmemory.Snippet) string {
	var b strings.Builder
	b.WriteString("Relevant server memory and context:\n")
	for i, snippet := range snippets {
		fmt.Fprintf(&b, "%d. %s", i+1, snippet.Content)
		if snippet.Source != "" {
			fmt.Fprintf(&b, " [Source: %s]", snippet.Source)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
