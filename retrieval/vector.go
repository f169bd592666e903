package retrieval

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/darkmatter/assistant/ollama"
	"github.com/darkmatter/assistant/stores"
)

// chunkPreviewRunes bounds how much of each chunk's text goes into the
// context message.
const chunkPreviewRunes = 500

// Embedder computes query embeddings.
type Embedder interface {
	Embed(ctx context.Context, model string, texts []string) (*ollama.EmbedResponse, error)
}

// ChunkSearcher runs similarity search over the knowledge base.
type ChunkSearcher interface {
	SearchChunks(ctx context.Context, embedding []float32, minSimilarity float64, topK int) ([]stores.ScoredChunk, error)
}

// VectorConfig holds retrieval tuning for the knowledge base variant.
type VectorConfig struct {
	Enabled       bool
	EmbedModel    string
	TopK          int
	MinSimilarity float64
}

// VectorRetriever grounds a query in the shared company knowledge base:
// embed the query, search chunks by cosine similarity, and render the
// hits as one citable system message.
type VectorRetriever struct {
	embedder Embedder
	searcher ChunkSearcher
	cfg      VectorConfig
	logger   *zap.Logger
}

// NewVectorRetriever creates the knowledge base assembler.
func NewVectorRetriever(embedder Embedder, searcher ChunkSearcher, cfg VectorConfig, logger *zap.Logger) *VectorRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VectorRetriever{embedder: embedder, searcher: searcher, cfg: cfg, logger: logger}
}

// Assemble retrieves relevant chunks for query. Embedding or search
// failures, and the feature being disabled, all yield empty grounding.
func (r *VectorRetriever) Assemble(ctx context.Context, query, threadKey string) Grounding {
	if !r.cfg.Enabled {
		return Grounding{}
	}

	embedded, err := r.embedder.Embed(ctx, r.cfg.EmbedModel, []string{query})
	if err != nil {
		r.logger.Warn("knowledge retrieval: embedding failed", zap.Error(err))
		return Grounding{}
	}
	if len(embedded.Embeddings) == 0 {
		r.logger.Warn("knowledge retrieval: no embedding returned")
		return Grounding{}
	}

	chunks, err := r.searcher.SearchChunks(ctx, embedded.Embeddings[0], r.cfg.MinSimilarity, r.cfg.TopK)
	if err != nil {
		r.logger.Warn("knowledge retrieval: search failed", zap.Error(err))
		return Grounding{}
	}
	if len(chunks) == 0 {
		return Grounding{}
	}

	return Grounding{
		Messages: []ollama.ChatMessage{{Role: ollama.RoleSystem, Content: buildChunkMessage(chunks)}},
		Chunks:   chunks,
	}
}

func buildChunkMessage(chunks []stores.ScoredChunk) string {
	var b strings.Builder
	b.WriteString("Here is relevant company knowledge to help answer the question:\n\n")
	for i, chunk := range chunks {
		fmt.Fprintf(&b, "%d. %s [Source: %s]\n", i+1, chunk.Title, chunk.Source)
		fmt.Fprintf(&b, "   %s\n\n", previewText(chunk.Text))
	}
	b.WriteString("Use this information to provide accurate, cited responses.")
	return b.String()
}

func previewText(text string) string {
	runes := []rune(text)
	if len(runes) <= chunkPreviewRunes {
		return text
	}
	return string(runes[:chunkPreviewRunes]) + "..."
}
