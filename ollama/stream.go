package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// streamEnvelope is one newline-delimited JSON object from the Ollama
// streaming endpoints. Generate streams carry the delta in Response,
// chat streams in Message.Content.
type streamEnvelope struct {
	Model     string       `json:"model"`
	CreatedAt string       `json:"created_at"`
	Response  string       `json:"response"`
	Message   *ChatMessage `json:"message"`
	Done      bool         `json:"done"`
	Context   []int        `json:"context"`
}

func (e *streamEnvelope) chunk() StreamChunk {
	content := e.Response
	if e.Message != nil {
		content = e.Message.Content
	}
	return StreamChunk{
		Content:   content,
		Done:      e.Done,
		Model:     e.Model,
		CreatedAt: e.CreatedAt,
		Context:   e.Context,
	}
}

// GenerateStream requests a streaming text completion. Chunks arrive on
// the first channel; a terminal failure, if any, on the second. Both are
// closed when the stream ends.
func (c *Client) GenerateStream(ctx context.Context, opts GenerateOptions, prompt string) (<-chan StreamChunk, <-chan error) {
	chunks := make(chan StreamChunk)
	errs := make(chan error, 1)

	if strings.TrimSpace(prompt) == "" {
		errs <- &ValidationError{Message: "prompt cannot be empty"}
		close(chunks)
		close(errs)
		return chunks, errs
	}
	if strings.TrimSpace(opts.Model) == "" {
		errs <- &ValidationError{Message: "model name cannot be empty"}
		close(chunks)
		close(errs)
		return chunks, errs
	}

	req := map[string]any{
		"model":   opts.Model,
		"prompt":  prompt,
		"stream":  true,
		"options": opts.payload(),
	}
	if opts.KeepAlive != nil {
		req["keep_alive"] = *opts.KeepAlive
	}

	go c.stream(ctx, "/api/generate", req, chunks, errs)
	return chunks, errs
}

// ChatStream requests a streaming chat completion. Chunks arrive on the
// first channel; a terminal failure, if any, on the second. Both are
// closed when the stream ends. Streams are never retried once the first
// byte has been received.
func (c *Client) ChatStream(ctx context.Context, opts GenerateOptions, messages []ChatMessage) (<-chan StreamChunk, <-chan error) {
	chunks := make(chan StreamChunk)
	errs := make(chan error, 1)

	if err := validateChatRequest(opts, messages); err != nil {
		errs <- err
		close(chunks)
		close(errs)
		return chunks, errs
	}

	go c.stream(ctx, "/api/chat", chatRequest(opts, messages, true), chunks, errs)
	return chunks, errs
}

// stream drives one streaming request: it buffers partial lines, parses
// each complete NDJSON line independently, and yields one chunk per line.
// Malformed lines are logged and skipped, never abort the stream. A
// non-empty trailing buffer at stream end is parsed as a final line.
func (c *Client) stream(ctx context.Context, path string, payload any, chunks chan<- StreamChunk, errs chan<- error) {
	defer close(chunks)
	defer close(errs)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	data, err := json.Marshal(payload)
	if err != nil {
		errs <- fmt.Errorf("failed to marshal request body: %w", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		errs <- fmt.Errorf("failed to create HTTP request: %w", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.streamHTTP.Do(req)
	if err != nil {
		errs <- &TransportError{Message: "connection error during streaming", Err: err}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		errs <- errorFromStatus(resp.StatusCode, body)
		return
	}

	// Read-idle watchdog: cancel the request when no bytes arrive for
	// idleTimeout, rather than bounding total stream duration.
	watchdog := time.AfterFunc(c.idleTimeout, cancel)
	defer watchdog.Stop()

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		watchdog.Reset(c.idleTimeout)

		if trimmed := strings.TrimSpace(line); trimmed != "" {
			var env streamEnvelope
			if jerr := json.Unmarshal([]byte(trimmed), &env); jerr != nil {
				c.logger.Warn("skipping malformed stream line",
					zap.String("path", path),
					zap.String("line", trimmed),
					zap.Error(jerr))
			} else {
				select {
				case chunks <- env.chunk():
				case <-ctx.Done():
					return
				}
				if env.Done {
					return
				}
			}
		}

		if err != nil {
			if err == io.EOF {
				return
			}
			errs <- &StreamingError{Message: "error reading stream", Err: err}
			return
		}
	}
}
