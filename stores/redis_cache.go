package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "mcpchat:"

const (
	defaultCacheWindow = 8
	defaultCacheTTL    = time.Hour
)

// WindowedCache implements ConversationStore on Redis: one key per
// conversation, value = JSON array of turns, bounded to a fixed window
// and expiring TTL after the last write. Writers do whole-value
// overwrite (last write wins); the window bound keeps divergence small.
type WindowedCache struct {
	rdb    *redis.Client
	window int
	ttl    time.Duration
	logger *zap.Logger
}

// NewWindowedCache creates a cache keeping at most window turns per
// conversation, each entry expiring ttl after its last write.
func NewWindowedCache(rdb *redis.Client, window int, ttl time.Duration, logger *zap.Logger) *WindowedCache {
	if window <= 0 {
		window = defaultCacheWindow
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WindowedCache{rdb: rdb, window: window, ttl: ttl, logger: logger}
}

func (c *WindowedCache) key(threadKey string) string {
	return cacheKeyPrefix + threadKey
}

// load reads and decodes the cached turn list. Read failures degrade to
// an empty conversation; a missing key is an empty conversation by
// definition.
func (c *WindowedCache) load(ctx context.Context, threadKey string) []Turn {
	data, err := c.rdb.Get(ctx, c.key(threadKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		c.logger.Warn("failed to read cached conversation",
			zap.String("thread_key", threadKey), zap.Error(err))
		return nil
	}

	var turns []Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		c.logger.Warn("failed to decode cached conversation",
			zap.String("thread_key", threadKey), zap.Error(err))
		return nil
	}
	if len(turns) > c.window {
		turns = turns[len(turns)-c.window:]
	}
	return turns
}

// AppendMessage appends one turn via read-modify-write: the list is
// truncated to the window before persisting and the TTL is reset on
// every write. Write failures propagate; losing a completed turn
// silently is worse than surfacing an error.
func (c *WindowedCache) AppendMessage(ctx context.Context, threadKey string, turn Turn) error {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}

	turns := append(c.load(ctx, threadKey), turn)
	if len(turns) > c.window {
		turns = turns[len(turns)-c.window:]
	}

	data, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("failed to encode conversation %s: %w", threadKey, err)
	}
	if err := c.rdb.Set(ctx, c.key(threadKey), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache conversation %s: %w", threadKey, err)
	}
	return nil
}

// GetRecent returns the tail of the cached list, at most limit turns,
// oldest first.
func (c *WindowedCache) GetRecent(ctx context.Context, threadKey string, limit int) ([]Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	turns := c.load(ctx, threadKey)
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

// Clear deletes the cached conversation.
func (c *WindowedCache) Clear(ctx context.Context, threadKey string) error {
	if err := c.rdb.Del(ctx, c.key(threadKey)).Err(); err != nil {
		return fmt.Errorf("failed to clear conversation %s: %w", threadKey, err)
	}
	return nil
}

// Ping checks that Redis is reachable.
func (c *WindowedCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
