// Package retrieval assembles the grounding material injected before a
// user turn: vector-similarity hits from the company knowledge base, or
// memory snippets fetched from a remote MCP server. Both variants are
// strictly best-effort; a failed or empty retrieval degrades answer
// quality, never the availability of the turn.
package retrieval

import (
	"context"

	"github.com/darkmatter/assistant/mcpmemory"
	"github.com/darkmatter/assistant/ollama"
	"github.com/darkmatter/assistant/stores"
)

// Grounding is the assembled context for one turn: zero or one
// system-role message plus side-channel metadata about what was used.
type Grounding struct {
	Messages []ollama.ChatMessage
	Chunks   []stores.ScoredChunk
	Snippets []mcpmemory.Snippet
}

// Assembler produces grounding for a query. Implementations never
// return errors; unavailability yields an empty Grounding.
type Assembler interface {
	Assemble(ctx context.Context, query, threadKey string) Grounding
}
