package sessions

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/darkmatter/assistant/ollama"
)

// streamTurn drives one streaming generation: every non-empty delta is
// forwarded to w and accumulated for the final record. A mid-stream
// failure is rendered as a visible "Error: ..." delta so the transcript
// stays coherent; a caller disconnect stops forwarding and cancels the
// generation but keeps whatever was accumulated.
func streamTurn(ctx context.Context, gw Generator, opts ollama.GenerateOptions, messages []ollama.ChatMessage, w TokenWriter, logger *zap.Logger) SendResult {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks, errs := gw.ChatStream(ctx, opts, messages)

	var content strings.Builder
	res := SendResult{Model: opts.Model}
	writable := true

	for chunk := range chunks {
		if chunk.Content == "" {
			continue
		}
		content.WriteString(chunk.Content)
		res.TokenCount++
		if chunk.Model != "" {
			res.Model = chunk.Model
		}
		if writable {
			if err := w.WriteToken(chunk.Content); err != nil {
				logger.Warn("caller stream closed mid-generation", zap.Error(err))
				writable = false
				cancel()
			}
		}
	}

	if err := <-errs; err != nil {
		if writable {
			delta := "Error: " + err.Error()
			content.WriteString(delta)
			res.TokenCount++
			if werr := w.WriteToken(delta); werr != nil {
				logger.Warn("failed to forward error delta", zap.Error(werr))
			}
			logger.Error("generation stream failed", zap.Error(err))
		} else {
			// The failure is a consequence of our own cancellation.
			logger.Debug("stream ended after caller disconnect", zap.Error(err))
		}
	}

	res.Content = content.String()
	return res
}
