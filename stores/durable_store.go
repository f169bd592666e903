package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DurableStore implements ConversationStore on a relational database via
// gorm, plus thread management and the pgvector chunk search used for
// retrieval. Rows are never cached across requests; every call goes to
// the pooled connection.
type DurableStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewDurableStore opens the database, enables pgvector where available,
// and migrates the schema.
func NewDurableStore(dialector gorm.Dialector, logger *zap.Logger) (*DurableStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if dialector.Name() == "postgres" {
		if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return nil, fmt.Errorf("failed to enable pgvector extension: %w", err)
		}
	}

	if err := db.AutoMigrate(&ChatThread{}, &ChatMessage{}, &MemoryChunk{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database schema: %w", err)
	}

	return &DurableStore{db: db, logger: logger}, nil
}

// CreateThread creates a new, empty chat thread owned by userID.
func (s *DurableStore) CreateThread(ctx context.Context, userID uuid.UUID, title string) (uuid.UUID, error) {
	thread := ChatThread{
		ID:     uuid.New(),
		Title:  title,
		UserID: userID,
	}
	if err := s.db.WithContext(ctx).Create(&thread).Error; err != nil {
		return uuid.Nil, fmt.Errorf("failed to create thread: %w", err)
	}
	s.logger.Info("created chat thread",
		zap.String("thread_id", thread.ID.String()),
		zap.String("user_id", userID.String()))
	return thread.ID, nil
}

// ListThreads returns the threads owned by userID, most recently
// updated first.
func (s *DurableStore) ListThreads(ctx context.Context, userID uuid.UUID) ([]ChatThread, error) {
	var threads []ChatThread
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&threads).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	return threads, nil
}

// AppendMessage inserts one immutable message row and bumps the thread's
// updated_at in the same transaction.
func (s *DurableStore) AppendMessage(ctx context.Context, threadKey string, turn Turn) error {
	threadID, err := uuid.Parse(threadKey)
	if err != nil {
		return fmt.Errorf("invalid thread id %q: %w", threadKey, err)
	}

	createdAt := turn.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	msg := ChatMessage{
		ID:         uuid.New(),
		ThreadID:   threadID,
		Role:       turn.Role,
		Content:    turn.Content,
		ModelUsed:  turn.ModelUsed,
		TokenCount: turn.TokenCount,
		CreatedAt:  createdAt,
	}

	tx := s.db.WithContext(ctx).Begin()
	if err := tx.Create(&msg).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to create message record: %w", err)
	}
	if err := tx.Model(&ChatThread{}).Where("id = ?", threadID).
		Update("updated_at", createdAt).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to touch thread: %w", err)
	}
	return tx.Commit().Error
}

// GetRecent returns the last limit messages of a thread in chronological
// order. An unknown thread yields an empty slice.
func (s *DurableStore) GetRecent(ctx context.Context, threadKey string, limit int) ([]Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	threadID, err := uuid.Parse(threadKey)
	if err != nil {
		return nil, fmt.Errorf("invalid thread id %q: %w", threadKey, err)
	}

	var msgs []ChatMessage
	err = s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	// Query is newest-first; reverse into chronological order.
	turns := make([]Turn, len(msgs))
	for i, m := range msgs {
		turns[len(msgs)-1-i] = Turn{
			Role:       m.Role,
			Content:    m.Content,
			ModelUsed:  m.ModelUsed,
			TokenCount: m.TokenCount,
			Timestamp:  m.CreatedAt,
		}
	}
	return turns, nil
}

// ListLongThreads returns the IDs of threads holding at least
// minMessages messages. Used by scheduled compaction.
func (s *DurableStore) ListLongThreads(ctx context.Context, minMessages int) ([]uuid.UUID, error) {
	var rows []struct {
		ThreadID uuid.UUID `gorm:"column:thread_id"`
	}
	err := s.db.WithContext(ctx).
		Model(&ChatMessage{}).
		Select("thread_id").
		Group("thread_id").
		Having("COUNT(*) >= ?", minMessages).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list long threads: %w", err)
	}

	ids := make([]uuid.UUID, len(rows))
	for i, r := range rows {
		ids[i] = r.ThreadID
	}
	return ids, nil
}

// SearchChunks runs a cosine-similarity search over the knowledge base,
// filtered to similarity >= minSimilarity and capped at topK, ordered by
// descending similarity. Requires the postgres backend.
func (s *DurableStore) SearchChunks(ctx context.Context, embedding []float32, minSimilarity float64, topK int) ([]ScoredChunk, error) {
	if s.db.Dialector.Name() != "postgres" {
		return nil, fmt.Errorf("vector search requires the postgres backend, have %s", s.db.Dialector.Name())
	}
	if topK <= 0 {
		return nil, nil
	}

	vec := pgvector.NewVector(embedding)
	var chunks []ScoredChunk
	err := s.db.WithContext(ctx).Raw(`
		SELECT id, title, source, source_type, text, meta_data,
		       1 - (embedding <=> ?) AS similarity
		FROM memory_chunks
		WHERE embedding IS NOT NULL
		  AND 1 - (embedding <=> ?) >= ?
		ORDER BY similarity DESC
		LIMIT ?`,
		vec, vec, minSimilarity, topK).
		Scan(&chunks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search memory chunks: %w", err)
	}
	return chunks, nil
}

// CreateChunk inserts one knowledge base chunk.
func (s *DurableStore) CreateChunk(ctx context.Context, chunk *MemoryChunk) error {
	if chunk.ID == uuid.Nil {
		chunk.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(chunk).Error; err != nil {
		return fmt.Errorf("failed to create memory chunk: %w", err)
	}
	return nil
}

// DeleteChunksBySource removes every chunk of one source document, the
// first half of a re-ingestion.
func (s *DurableStore) DeleteChunksBySource(ctx context.Context, source string) (int64, error) {
	res := s.db.WithContext(ctx).Where("source = ?", source).Delete(&MemoryChunk{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete chunks for source %q: %w", source, res.Error)
	}
	return res.RowsAffected, nil
}

// Ping checks that the database connection is alive.
func (s *DurableStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *DurableStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
