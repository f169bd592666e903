package ollama

import (
	"context"
	"net/http"
	"strings"
)

// ModelInfo describes one model installed on the Ollama server.
type ModelInfo struct {
	Name       string `json:"name"`
	Model      string `json:"model,omitempty"`
	Size       int64  `json:"size,omitempty"`
	Digest     string `json:"digest,omitempty"`
	ModifiedAt string `json:"modified_at,omitempty"`
}

// Health summarizes server reachability and installed models.
type Health struct {
	Connected  bool        `json:"connected"`
	Status     string      `json:"status"`
	Models     []ModelInfo `json:"models"`
	ModelCount int         `json:"model_count"`
	Error      string      `json:"error,omitempty"`
}

// ListModels returns the models installed on the server.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	var out struct {
		Models []ModelInfo `json:"models"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/tags", nil, c.timeout, &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

// ShowModel returns detailed information about one model. A missing
// model surfaces as a ModelError.
func (c *Client) ShowModel(ctx context.Context, model string) (map[string]any, error) {
	if strings.TrimSpace(model) == "" {
		return nil, &ValidationError{Message: "model name cannot be empty"}
	}
	var out map[string]any
	if err := c.doJSON(ctx, http.MethodPost, "/api/show", map[string]any{"name": model}, c.timeout, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PullModel downloads a model. Uses a much longer timeout than other
// calls since downloads can take minutes.
func (c *Client) PullModel(ctx context.Context, model string) error {
	if strings.TrimSpace(model) == "" {
		return &ValidationError{Message: "model name cannot be empty"}
	}
	req := map[string]any{"name": model, "stream": false}
	return c.doJSON(ctx, http.MethodPost, "/api/pull", req, pullTimeout, nil)
}

// DeleteModel removes a model from the server.
func (c *Client) DeleteModel(ctx context.Context, model string) error {
	if strings.TrimSpace(model) == "" {
		return &ValidationError{Message: "model name cannot be empty"}
	}
	return c.doJSON(ctx, http.MethodDelete, "/api/delete", map[string]any{"name": model}, pullTimeout, nil)
}

// HealthCheck reports whether the server is reachable and which models
// it has. Failures are folded into the result rather than returned.
func (c *Client) HealthCheck(ctx context.Context) Health {
	models, err := c.ListModels(ctx)
	if err != nil {
		return Health{
			Connected: false,
			Status:    "offline",
			Error:     err.Error(),
			Models:    []ModelInfo{},
		}
	}
	return Health{
		Connected:  true,
		Status:     "online",
		Models:     models,
		ModelCount: len(models),
	}
}
