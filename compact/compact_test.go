package compact

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/darkmatter/assistant/sessions"
	"github.com/darkmatter/assistant/stores"
)

type fakeSource struct {
	long    []uuid.UUID
	listErr error
	latest  map[string][]stores.Turn
}

func (f *fakeSource) ListLongThreads(ctx context.Context, minMessages int) ([]uuid.UUID, error) {
	return f.long, f.listErr
}

func (f *fakeSource) GetRecent(ctx context.Context, threadKey string, limit int) ([]stores.Turn, error) {
	return f.latest[threadKey], nil
}

type fakeSummarizer struct {
	calls []string
	err   error
}

func (f *fakeSummarizer) SummarizeThread(ctx context.Context, threadID string) (string, error) {
	f.calls = append(f.calls, threadID)
	return "summary", f.err
}

func TestRunSummarizesLongThreads(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	source := &fakeSource{
		long: []uuid.UUID{a, b},
		latest: map[string][]stores.Turn{
			a.String(): {{Role: "user", Content: "latest question"}},
			b.String(): {{Role: "user", Content: "another"}},
		},
	}
	summarizer := &fakeSummarizer{}

	c := New(source, summarizer, 40, "0 3 * * *", nil)
	if got := c.Run(context.Background()); got != 2 {
		t.Errorf("compacted %d threads, want 2", got)
	}
	if len(summarizer.calls) != 2 {
		t.Errorf("summarizer called %d times, want 2", len(summarizer.calls))
	}
}

func TestRunSkipsAlreadySummarized(t *testing.T) {
	id := uuid.New()
	source := &fakeSource{
		long: []uuid.UUID{id},
		latest: map[string][]stores.Turn{
			id.String(): {{Role: "system", Content: sessions.SummaryMarker + "old summary"}},
		},
	}
	summarizer := &fakeSummarizer{}

	c := New(source, summarizer, 40, "0 3 * * *", nil)
	if got := c.Run(context.Background()); got != 0 {
		t.Errorf("compacted %d threads, want 0", got)
	}
	if len(summarizer.calls) != 0 {
		t.Error("already-summarized thread must be skipped")
	}
}

func TestRunContinuesAfterFailure(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	source := &fakeSource{long: []uuid.UUID{a, b}, latest: map[string][]stores.Turn{}}
	summarizer := &fakeSummarizer{err: errors.New("model busy")}

	c := New(source, summarizer, 40, "0 3 * * *", nil)
	if got := c.Run(context.Background()); got != 0 {
		t.Errorf("compacted %d, want 0 when summarization fails", got)
	}
	if len(summarizer.calls) != 2 {
		t.Errorf("summarizer called %d times, want 2 (failures don't stop the pass)", len(summarizer.calls))
	}
}

func TestRunListFailure(t *testing.T) {
	source := &fakeSource{listErr: errors.New("db down")}
	summarizer := &fakeSummarizer{}

	c := New(source, summarizer, 40, "0 3 * * *", nil)
	if got := c.Run(context.Background()); got != 0 {
		t.Errorf("compacted %d, want 0", got)
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	c := New(&fakeSource{}, &fakeSummarizer{}, 40, "not a schedule", nil)
	if err := c.Start(); err == nil {
		t.Error("expected error for malformed cron spec")
	}
}
