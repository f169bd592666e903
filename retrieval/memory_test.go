package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/darkmatter/assistant/mcpmemory"
	"github.com/darkmatter/assistant/ollama"
)

type fakeFetcher struct {
	res       mcpmemory.RetrieveResult
	err       error
	gotThread string
	gotQuery  string
	gotLimit  int
	gotTarget mcpmemory.Target
}

func (f *fakeFetcher) Retrieve(ctx context.Context, target mcpmemory.Target, threadID, query string, limit int) (mcpmemory.RetrieveResult, error) {
	f.gotTarget = target
	f.gotThread = threadID
	f.gotQuery = query
	f.gotLimit = limit
	return f.res, f.err
}

func TestMemoryAssemble(t *testing.T) {
	fetcher := &fakeFetcher{res: mcpmemory.RetrieveResult{
		Supported: true,
		Snippets: []mcpmemory.Snippet{
			{Content: "user prefers dark mode", Source: "settings"},
			{Content: "asked about billing last week"},
		},
	}}
	target := mcpmemory.Target{BaseURL: "http://srv", ServerID: "srv-1"}
	r := NewMemoryRetriever(fetcher, target, 5, nil)

	g := r.Assemble(context.Background(), "what did I ask?", "th-1")
	if len(g.Messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(g.Messages))
	}
	if g.Messages[0].Role != ollama.RoleSystem {
		t.Errorf("role = %s, want system", g.Messages[0].Role)
	}
	content := g.Messages[0].Content
	if !strings.Contains(content, "1. user prefers dark mode [Source: settings]") {
		t.Errorf("missing sourced snippet in %q", content)
	}
	if !strings.Contains(content, "2. asked about billing last week") {
		t.Errorf("missing unsourced snippet in %q", content)
	}
	if len(g.Snippets) != 2 {
		t.Errorf("got %d snippets in metadata, want 2", len(g.Snippets))
	}

	if fetcher.gotThread != "th-1" || fetcher.gotQuery != "what did I ask?" || fetcher.gotLimit != 5 {
		t.Errorf("fetch args = %q %q %d", fetcher.gotThread, fetcher.gotQuery, fetcher.gotLimit)
	}
	if fetcher.gotTarget.ServerID != "srv-1" {
		t.Errorf("target = %+v", fetcher.gotTarget)
	}
}

func TestMemoryAssembleUnsupported(t *testing.T) {
	r := NewMemoryRetriever(&fakeFetcher{res: mcpmemory.RetrieveResult{Supported: false}},
		mcpmemory.Target{}, 5, nil)

	g := r.Assemble(context.Background(), "q", "t")
	if len(g.Messages) != 0 || len(g.Snippets) != 0 {
		t.Errorf("unsupported server returned %+v", g)
	}
}

func TestMemoryAssembleEmpty(t *testing.T) {
	r := NewMemoryRetriever(&fakeFetcher{res: mcpmemory.RetrieveResult{Supported: true}},
		mcpmemory.Target{}, 5, nil)

	g := r.Assemble(context.Background(), "q", "t")
	if len(g.Messages) != 0 {
		t.Errorf("empty result returned %+v", g)
	}
}

func TestMemoryAssembleFetchError(t *testing.T) {
	r := NewMemoryRetriever(&fakeFetcher{err: errors.New("network down")},
		mcpmemory.Target{}, 5, nil)

	g := r.Assemble(context.Background(), "q", "t")
	if len(g.Messages) != 0 {
		t.Errorf("fetch error must degrade to empty grounding, got %+v", g)
	}
}
