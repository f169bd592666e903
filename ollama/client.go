// Package ollama implements a resilient client for the Ollama HTTP API:
// single-shot and streaming text generation, batch embeddings, and model
// registry management, with retry/backoff and a uniform error taxonomy.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the standard local Ollama endpoint.
	DefaultBaseURL = "http://localhost:11434"

	defaultTimeout     = 60 * time.Second
	pullTimeout        = 300 * time.Second
	defaultMaxRetries  = 2
	defaultRetryDelay  = time.Second
	defaultIdleTimeout = 120 * time.Second
)

// Message roles accepted by the chat endpoint.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage is one role-tagged message in a chat request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateOptions holds options for generate/chat requests. Only fields
// explicitly set are forwarded to Ollama; nil means "use server default".
type GenerateOptions struct {
	Model         string
	Temperature   *float64
	NumCtx        *int
	NumGPU        *int
	NumBatch      *int
	TopP          *float64
	TopK          *int
	RepeatPenalty *float64
	KeepAlive     *int
}

// payload builds the options object forwarded to the API, containing only
// the fields that were explicitly set.
func (o GenerateOptions) payload() map[string]any {
	opts := map[string]any{}
	if o.Temperature != nil {
		opts["temperature"] = *o.Temperature
	}
	if o.NumCtx != nil {
		opts["num_ctx"] = *o.NumCtx
	}
	if o.NumGPU != nil {
		opts["num_gpu"] = *o.NumGPU
	}
	if o.NumBatch != nil {
		opts["num_batch"] = *o.NumBatch
	}
	if o.TopP != nil {
		opts["top_p"] = *o.TopP
	}
	if o.TopK != nil {
		opts["top_k"] = *o.TopK
	}
	if o.RepeatPenalty != nil {
		opts["repeat_penalty"] = *o.RepeatPenalty
	}
	return opts
}

// Float64 returns a pointer to v, for optional generation fields.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v, for optional generation fields.
func Int(v int) *int { return &v }

// StreamChunk is one incremental unit of a streaming response.
type StreamChunk struct {
	Content   string
	Done      bool
	Model     string
	CreatedAt string
	Context   []int
}

// GenerateResponse is the full result of a non-streaming generate call.
type GenerateResponse struct {
	Model           string `json:"model"`
	CreatedAt       string `json:"created_at"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	Context         []int  `json:"context,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
	EvalDuration    int64  `json:"eval_duration,omitempty"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	TotalDuration   int64  `json:"total_duration,omitempty"`
}

// ChatResponse is the full result of a non-streaming chat call.
type ChatResponse struct {
	Model     string      `json:"model"`
	CreatedAt string      `json:"created_at"`
	Message   ChatMessage `json:"message"`
	Done      bool        `json:"done"`
	EvalCount int         `json:"eval_count,omitempty"`
}

// EmbedResponse holds one embedding per input text.
type EmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// Config holds Client construction parameters. Zero values fall back to
// the package defaults.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	StreamIdleTimeout time.Duration
}

// Client is an Ollama API client. Safe for concurrent use.
type Client struct {
	baseURL     string
	timeout     time.Duration
	maxRetries  int
	retryDelay  time.Duration
	idleTimeout time.Duration
	http        *http.Client
	streamHTTP  *http.Client
	logger      *zap.Logger
}

// NewClient creates an Ollama client. Non-streaming calls get a bounded
// total timeout; streaming calls use a read-idle timeout instead, since
// legitimate generations can run long.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.StreamIdleTimeout <= 0 {
		cfg.StreamIdleTimeout = defaultIdleTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		timeout:     cfg.Timeout,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  cfg.RetryDelay,
		idleTimeout: cfg.StreamIdleTimeout,
		http:        &http.Client{},
		streamHTTP:  &http.Client{},
		logger:      logger,
	}
}

// Generate requests a non-streaming text completion.
func (c *Client) Generate(ctx context.Context, opts GenerateOptions, prompt string) (*GenerateResponse, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, &ValidationError{Message: "prompt cannot be empty"}
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, &ValidationError{Message: "model name cannot be empty"}
	}

	req := map[string]any{
		"model":   opts.Model,
		"prompt":  prompt,
		"stream":  false,
		"options": opts.payload(),
	}
	if opts.KeepAlive != nil {
		req["keep_alive"] = *opts.KeepAlive
	}

	var out GenerateResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/generate", req, c.timeout, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Chat requests a non-streaming chat completion over an ordered list of
// role-tagged messages.
func (c *Client) Chat(ctx context.Context, opts GenerateOptions, messages []ChatMessage) (*ChatResponse, error) {
	if err := validateChatRequest(opts, messages); err != nil {
		return nil, err
	}

	req := chatRequest(opts, messages, false)

	var out ChatResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/chat", req, c.timeout, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Embed computes one embedding per input text. For a single text the
// Ollama API expects a bare string, for multiple a list.
func (c *Client) Embed(ctx context.Context, model string, texts []string) (*EmbedResponse, error) {
	if len(texts) == 0 {
		return nil, &ValidationError{Message: "texts cannot be empty"}
	}
	if strings.TrimSpace(model) == "" {
		return nil, &ValidationError{Message: "model name cannot be empty"}
	}

	var input any = texts
	if len(texts) == 1 {
		input = texts[0]
	}
	req := map[string]any{"model": model, "input": input}

	var out EmbedResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/embed", req, c.timeout, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func validateChatRequest(opts GenerateOptions, messages []ChatMessage) error {
	if strings.TrimSpace(opts.Model) == "" {
		return &ValidationError{Message: "model name cannot be empty"}
	}
	if len(messages) == 0 {
		return &ValidationError{Message: "messages cannot be empty"}
	}
	for _, m := range messages {
		switch m.Role {
		case RoleUser, RoleAssistant, RoleSystem:
		default:
			return &ValidationError{Message: fmt.Sprintf("invalid message role: %q", m.Role)}
		}
	}
	return nil
}

func chatRequest(opts GenerateOptions, messages []ChatMessage, stream bool) map[string]any {
	req := map[string]any{
		"model":    opts.Model,
		"messages": messages,
		"stream":   stream,
		"options":  opts.payload(),
	}
	if opts.KeepAlive != nil {
		req["keep_alive"] = *opts.KeepAlive
	}
	return req
}

// doJSON performs a non-streaming request, retrying connection and
// timeout failures with exponential backoff.
func (c *Client) doJSON(ctx context.Context, method, path string, payload any, timeout time.Duration, out any) error {
	for attempt := 0; ; attempt++ {
		err := c.roundTrip(ctx, method, path, payload, timeout, out)
		if err == nil {
			return nil
		}

		var te *TransportError
		if !errors.As(err, &te) || !te.retryable {
			return err
		}
		if attempt >= c.maxRetries {
			return &TransportError{
				Message: fmt.Sprintf("connection failed after %d attempts", c.maxRetries+1),
				Err:     err,
			}
		}

		delay := c.retryDelay * (1 << attempt)
		c.logger.Warn("ollama request failed, retrying",
			zap.String("path", path),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return &TransportError{Message: "request cancelled during retry backoff", Err: ctx.Err()}
		}
	}
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload any, timeout time.Duration, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Message: "request failed", Err: err, retryable: true}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Message: "failed to read response body", Err: err, retryable: true}
	}

	if resp.StatusCode != http.StatusOK {
		return errorFromStatus(resp.StatusCode, data)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return &ValidationError{Message: fmt.Sprintf("invalid JSON response: %v", err)}
		}
	}
	return nil
}

// errorFromStatus maps HTTP error responses to the client error taxonomy.
func errorFromStatus(status int, body []byte) error {
	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		msg = payload.Error
	}
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d", status)
	}

	switch {
	case status == http.StatusNotFound:
		if strings.Contains(strings.ToLower(msg), "model") {
			return &ModelError{Message: fmt.Sprintf("model not found: %s", msg)}
		}
		return &ValidationError{Message: fmt.Sprintf("endpoint not found: %s", msg)}
	case status == http.StatusBadRequest:
		return &ValidationError{Message: fmt.Sprintf("bad request: %s", msg)}
	case status >= 500 && status < 600:
		return &TransportError{Message: fmt.Sprintf("server error: %s", msg)}
	default:
		return &TransportError{Message: fmt.Sprintf("HTTP %d: %s", status, msg)}
	}
}
