// Package mcpmemory is a client for the optional memory API exposed by
// MCP servers. Servers that don't implement the API respond 404, which
// is an expected, first-class condition here, not an error: retrieval
// reports Unsupported and append reports success.
package mcpmemory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultTimeout     = 15 * time.Second
	statusCheckTimeout = 5 * time.Second
)

// Target identifies one MCP server's memory API.
type Target struct {
	BaseURL  string
	ServerID string
	Token    string // optional bearer token
}

func (t Target) validate() error {
	if !strings.HasPrefix(t.BaseURL, "http://") && !strings.HasPrefix(t.BaseURL, "https://") {
		return fmt.Errorf("invalid server URL: %s", t.BaseURL)
	}
	return nil
}

func (t Target) endpoint(path string) string {
	return strings.TrimRight(t.BaseURL, "/") + path
}

// Snippet is one normalized memory fragment.
type Snippet struct {
	Content string `json:"content"`
	Source  string `json:"source,omitempty"`
}

// RetrieveResult distinguishes a server that answered (possibly with
// nothing) from one that doesn't implement the memory API.
type RetrieveResult struct {
	Supported bool
	Snippets  []Snippet
}

// AppendResult reports whether the server actually stored the turn;
// Supported is false when the feature is absent, which callers treat as
// success.
type AppendResult struct {
	Supported bool
}

// StatusResult reports memory API availability.
type StatusResult struct {
	Available bool     `json:"available"`
	Features  []string `json:"features,omitempty"`
}

// Client talks to MCP server memory APIs. Safe for concurrent use.
type Client struct {
	http   *http.Client
	logger *zap.Logger
}

// NewClient creates a memory API client with the given per-request
// timeout (the default is moderate; these calls are best-effort).
func NewClient(timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, body io.Reader, token string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// Retrieve fetches memory snippets relevant to query. A 404 means the
// server doesn't implement retrieval and yields Supported == false.
func (c *Client) Retrieve(ctx context.Context, target Target, threadID, query string, limit int) (RetrieveResult, error) {
	if err := target.validate(); err != nil {
		return RetrieveResult{}, err
	}

	params := url.Values{}
	params.Set("server_id", target.ServerID)
	params.Set("thread_id", threadID)
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))

	req, err := c.newRequest(ctx, http.MethodGet, target.endpoint("/memory/retrieve")+"?"+params.Encode(), nil, target.Token)
	if err != nil {
		return RetrieveResult{}, fmt.Errorf("failed to create retrieve request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return RetrieveResult{}, fmt.Errorf("memory retrieval request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return RetrieveResult{}, fmt.Errorf("failed to read retrieve response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		snippets, err := c.normalizeSnippets(body, target.BaseURL)
		if err != nil {
			return RetrieveResult{}, err
		}
		return RetrieveResult{Supported: true, Snippets: snippets}, nil
	case resp.StatusCode == http.StatusNotFound:
		c.logger.Info("server does not implement memory retrieval",
			zap.String("server_url", target.BaseURL))
		return RetrieveResult{Supported: false}, nil
	default:
		return RetrieveResult{}, fmt.Errorf("memory retrieval failed with HTTP %d%s",
			resp.StatusCode, errorSuffix(body))
	}
}

// Append stores one completed conversation turn in server memory. A 404
// means the feature is absent, which is not a failure.
func (c *Client) Append(ctx context.Context, target Target, threadID, userMessage, assistantMessage string, metadata map[string]any) (AppendResult, error) {
	if err := target.validate(); err != nil {
		return AppendResult{}, err
	}

	payload := map[string]any{
		"server_id":         target.ServerID,
		"thread_id":         threadID,
		"user_message":      userMessage,
		"assistant_message": assistantMessage,
	}
	if len(metadata) > 0 {
		payload["metadata"] = metadata
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return AppendResult{}, fmt.Errorf("failed to encode append payload: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, target.endpoint("/memory/append"), bytes.NewReader(data), target.Token)
	if err != nil {
		return AppendResult{}, fmt.Errorf("failed to create append request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return AppendResult{}, fmt.Errorf("memory append request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return AppendResult{Supported: true}, nil
	case resp.StatusCode == http.StatusNotFound:
		c.logger.Info("server does not implement memory append",
			zap.String("server_url", target.BaseURL))
		return AppendResult{Supported: false}, nil
	default:
		return AppendResult{}, fmt.Errorf("memory append failed with HTTP %d%s",
			resp.StatusCode, errorSuffix(body))
	}
}

// Status checks whether the server's memory API is available. Network
// failures are returned; a non-200 status is simply "not available".
func (c *Client) Status(ctx context.Context, target Target) (StatusResult, error) {
	if err := target.validate(); err != nil {
		return StatusResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, statusCheckTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, target.endpoint("/memory/status"), nil, target.Token)
	if err != nil {
		return StatusResult{}, fmt.Errorf("failed to create status request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return StatusResult{}, fmt.Errorf("memory status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return StatusResult{Available: false}, nil
	}

	var payload struct {
		Features []string `json:"features"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return StatusResult{Available: false}, nil
	}
	features := payload.Features
	if len(features) == 0 {
		features = []string{"retrieve", "append"}
	}
	return StatusResult{Available: true, Features: features}, nil
}

// normalizeSnippets decodes the loosely-specified retrieve payload into
// a canonical snippet list. Accepted shapes: a bare list, or an object
// with a "snippets" or "memories" field; items may be strings or
// objects carrying content/text and an optional source.
func (c *Client) normalizeSnippets(body []byte, serverURL string) ([]Snippet, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		var wrapper struct {
			Snippets *[]json.RawMessage `json:"snippets"`
			Memories *[]json.RawMessage `json:"memories"`
		}
		if err := json.Unmarshal(body, &wrapper); err != nil {
			return nil, fmt.Errorf("malformed memory payload: %w", err)
		}
		switch {
		case wrapper.Snippets != nil:
			items = *wrapper.Snippets
		case wrapper.Memories != nil:
			items = *wrapper.Memories
		default:
			c.logger.Warn("unexpected memory response format",
				zap.String("server_url", serverURL))
			return nil, nil
		}
	}

	snippets := make([]Snippet, 0, len(items))
	for _, raw := range items {
		snippets = append(snippets, decodeSnippet(raw))
	}
	return snippets, nil
}

func decodeSnippet(raw json.RawMessage) Snippet {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return Snippet{Content: s}
	}

	var obj struct {
		Content string `json:"content"`
		Text    string `json:"text"`
		Source  string `json:"source"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && (obj.Content != "" || obj.Text != "") {
		content := obj.Content
		if content == "" {
			content = obj.Text
		}
		return Snippet{Content: content, Source: obj.Source}
	}

	// Unknown item shape: keep the raw JSON as context.
	return Snippet{Content: string(raw)}
}

func errorSuffix(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return ": " + payload.Error
	}
	return ""
}
