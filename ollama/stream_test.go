package ollama

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func collect(t *testing.T, chunks <-chan StreamChunk, errs <-chan error) ([]StreamChunk, error) {
	t.Helper()
	var out []StreamChunk
	for chunk := range chunks {
		out = append(out, chunk)
	}
	return out, <-errs
}

func ndjsonServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for _, line := range lines {
			w.Write([]byte(line))
			flusher.Flush()
		}
	}))
}

func TestGenerateStream(t *testing.T) {
	srv := ndjsonServer(t,
		`{"model":"m","response":"Hel"}`+"\n",
		`{"model":"m","response":"lo"}`+"\n",
		`{"model":"m","response":"","done":true}`+"\n",
	)
	defer srv.Close()

	c := testClient(t, srv.URL)
	chunks, errs := c.GenerateStream(context.Background(), GenerateOptions{Model: "m"}, "hi")
	got, err := collect(t, chunks, errs)
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("got %d chunks, want 3", len(got))
	}
	if got[0].Content+got[1].Content != "Hello" {
		t.Errorf("content = %q + %q, want Hello", got[0].Content, got[1].Content)
	}
	if !got[2].Done {
		t.Error("final chunk must carry done")
	}
}

func TestChatStreamContentFromMessage(t *testing.T) {
	srv := ndjsonServer(t,
		`{"model":"m","message":{"role":"assistant","content":"Hi"}}`+"\n",
		`{"model":"m","message":{"role":"assistant","content":""},"done":true}`+"\n",
	)
	defer srv.Close()

	c := testClient(t, srv.URL)
	chunks, errs := c.ChatStream(context.Background(), GenerateOptions{Model: "m"},
		[]ChatMessage{{Role: RoleUser, Content: "hello"}})
	got, err := collect(t, chunks, errs)
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if len(got) != 2 || got[0].Content != "Hi" {
		t.Errorf("got %+v, want first chunk content Hi", got)
	}
}

func TestStreamSkipsMalformedLines(t *testing.T) {
	srv := ndjsonServer(t,
		`{"response":"ok"}`+"\n",
		"garbage not json\n",
		`{"response":"fine","done":true}`+"\n",
	)
	defer srv.Close()

	c := testClient(t, srv.URL)
	chunks, errs := c.GenerateStream(context.Background(), GenerateOptions{Model: "m"}, "hi")
	got, err := collect(t, chunks, errs)
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d chunks, want 2 (malformed line skipped)", len(got))
	}
}

func TestStreamParsesTrailingBuffer(t *testing.T) {
	// Final line has no trailing newline.
	srv := ndjsonServer(t,
		`{"response":"a"}`+"\n",
		`{"response":"b","done":true}`,
	)
	defer srv.Close()

	c := testClient(t, srv.URL)
	chunks, errs := c.GenerateStream(context.Background(), GenerateOptions{Model: "m"}, "hi")
	got, err := collect(t, chunks, errs)
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if len(got) != 2 || got[1].Content != "b" {
		t.Errorf("got %+v, want trailing buffer parsed as final chunk", got)
	}
}

func TestStreamStopsAtDone(t *testing.T) {
	srv := ndjsonServer(t,
		`{"response":"a","done":true}`+"\n",
		`{"response":"never"}`+"\n",
	)
	defer srv.Close()

	c := testClient(t, srv.URL)
	chunks, errs := c.GenerateStream(context.Background(), GenerateOptions{Model: "m"}, "hi")
	got, err := collect(t, chunks, errs)
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d chunks, want 1 (stream ends at done)", len(got))
	}
}

func TestStreamErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model 'nope' not found"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	chunks, errs := c.GenerateStream(context.Background(), GenerateOptions{Model: "nope"}, "hi")
	got, err := collect(t, chunks, errs)
	if len(got) != 0 {
		t.Errorf("got %d chunks, want 0", len(got))
	}
	var me *ModelError
	if !errors.As(err, &me) {
		t.Errorf("got %v, want ModelError", err)
	}
}

func TestStreamValidation(t *testing.T) {
	c := testClient(t, "http://localhost:0")

	chunks, errs := c.ChatStream(context.Background(), GenerateOptions{Model: "m"}, nil)
	_, err := collect(t, chunks, errs)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("got %v, want ValidationError", err)
	}
}

func TestStreamCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":"a"}` + "\n"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	c := testClient(t, srv.URL)
	chunks, errs := c.GenerateStream(ctx, GenerateOptions{Model: "m"}, "hi")

	select {
	case <-chunks:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for first chunk")
	}
	cancel()

	// Both channels must close promptly after cancellation.
	deadline := time.After(5 * time.Second)
	for chunks != nil || errs != nil {
		select {
		case _, ok := <-chunks:
			if !ok {
				chunks = nil
			}
		case _, ok := <-errs:
			if !ok {
				errs = nil
			}
		case <-deadline:
			t.Fatal("stream did not shut down after cancel")
		}
	}
}
