// Package stores persists conversation state behind one contract with
// two implementations: a durable relational store for company chat
// threads and a TTL-windowed Redis cache for per-server chat.
package stores

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// ChatThread is one durable company chat conversation. Threads are
// created explicitly by the caller before the first message, never
// implicitly.
type ChatThread struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title     string    `gorm:"size:200" json:"title,omitempty"`
	UserID    uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatMessage is one immutable message row within a thread. There is no
// update path; history is append-only.
type ChatMessage struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ThreadID   uuid.UUID `gorm:"type:uuid;index:idx_messages_thread_created;not null" json:"thread_id"`
	Role       string    `gorm:"size:20;not null" json:"role"`
	Content    string    `gorm:"type:text" json:"content"`
	ModelUsed  string    `gorm:"size:100" json:"model_used,omitempty"`
	TokenCount int       `json:"token_count,omitempty"`
	CreatedAt  time.Time `gorm:"index:idx_messages_thread_created" json:"created_at"`
}

// MemoryChunk is one embedded window of a source document in the shared
// company knowledge base. Produced by offline ingestion; immutable after
// creation except for re-ingestion (delete by source, recreate).
type MemoryChunk struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Title      string          `gorm:"size:200" json:"title"`
	Source     string          `gorm:"size:500;index" json:"source"`
	SourceType string          `gorm:"size:50;index;default:document" json:"source_type"`
	Text       string          `gorm:"type:text" json:"text"`
	Embedding  pgvector.Vector `gorm:"type:vector(768)" json:"-"`
	ChunkIndex int             `json:"chunk_index"`
	MetaData   string          `gorm:"type:text" json:"meta_data,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ScoredChunk is one similarity-search hit.
type ScoredChunk struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	Source     string    `json:"source"`
	SourceType string    `json:"source_type"`
	Text       string    `json:"text"`
	MetaData   string    `json:"meta_data,omitempty"`
	Similarity float64   `json:"similarity"`
}

// Turn is one conversation record in a store-neutral shape. Both store
// variants read and write turns; only the durable store keeps richer
// row identity underneath.
type Turn struct {
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	ModelUsed  string    `json:"model_used,omitempty"`
	TokenCount int       `json:"token_count,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ConversationStore is the contract shared by the durable store and the
// windowed cache. GetRecent returns at most limit turns, oldest first;
// absence of history is an empty slice, never an error.
type ConversationStore interface {
	AppendMessage(ctx context.Context, threadKey string, turn Turn) error
	GetRecent(ctx context.Context, threadKey string, limit int) ([]Turn, error)
}

// StoreConfig selects and parameterizes the durable store backend.
type StoreConfig struct {
	Driver string // "postgres" or "sqlite"
	DSN    string
}
