// Package compact periodically condenses long company threads into
// summaries so history prompts stay within the model's context window.
package compact

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/darkmatter/assistant/sessions"
	"github.com/darkmatter/assistant/stores"
)

const runTimeout = 10 * time.Minute

// ThreadSource exposes the store queries compaction needs.
type ThreadSource interface {
	ListLongThreads(ctx context.Context, minMessages int) ([]uuid.UUID, error)
	GetRecent(ctx context.Context, threadKey string, limit int) ([]stores.Turn, error)
}

// Summarizer condenses one thread.
type Summarizer interface {
	SummarizeThread(ctx context.Context, threadID string) (string, error)
}

// Compactor runs scheduled summarization passes over threads whose
// message count exceeds a threshold.
type Compactor struct {
	source     ThreadSource
	summarizer Summarizer
	threshold  int
	schedule   string
	logger     *zap.Logger
	cron       *cron.Cron
}

// New creates a compactor. schedule is a standard 5-field cron spec.
func New(source ThreadSource, summarizer Summarizer, threshold int, schedule string, logger *zap.Logger) *Compactor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compactor{
		source:     source,
		summarizer: summarizer,
		threshold:  threshold,
		schedule:   schedule,
		logger:     logger,
	}
}

// Start schedules the periodic pass. The returned error only reflects a
// malformed schedule.
func (c *Compactor) Start() error {
	c.cron = cron.New()
	_, err := c.cron.AddFunc(c.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		c.Run(ctx)
	})
	if err != nil {
		return err
	}
	c.cron.Start()
	c.logger.Info("thread compaction scheduled", zap.String("schedule", c.schedule))
	return nil
}

// Stop cancels the schedule and waits for an in-flight pass.
func (c *Compactor) Stop() {
	if c.cron != nil {
		<-c.cron.Stop().Done()
	}
}

// Run executes one compaction pass: every thread at or above the
// threshold is summarized unless its newest message already is a
// summary. Returns the number of threads summarized.
func (c *Compactor) Run(ctx context.Context) int {
	ids, err := c.source.ListLongThreads(ctx, c.threshold)
	if err != nil {
		c.logger.Error("compaction pass failed to list threads", zap.Error(err))
		return 0
	}

	compacted := 0
	for _, id := range ids {
		threadID := id.String()
		if c.alreadySummarized(ctx, threadID) {
			continue
		}
		if _, err := c.summarizer.SummarizeThread(ctx, threadID); err != nil {
			c.logger.Warn("failed to compact thread",
				zap.String("thread_id", threadID), zap.Error(err))
			continue
		}
		compacted++
	}

	c.logger.Info("compaction pass complete",
		zap.Int("candidates", len(ids)), zap.Int("compacted", compacted))
	return compacted
}

// alreadySummarized reports whether the thread's newest message is a
// summary, meaning nothing new arrived since the last pass.
func (c *Compactor) alreadySummarized(ctx context.Context, threadID string) bool {
	turns, err := c.source.GetRecent(ctx, threadID, 1)
	if err != nil || len(turns) == 0 {
		return false
	}
	last := turns[len(turns)-1]
	return last.Role == "system" && strings.HasPrefix(last.Content, sessions.SummaryMarker)
}
