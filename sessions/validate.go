package sessions

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/darkmatter/assistant/ollama"
)

const (
	maxIdentifierLen = 128
	maxMessageRunes  = 16384
)

// ValidateIdentifier rejects caller-supplied keys that are unsafe to
// interpolate into cache keys and downstream URLs: only alphanumerics,
// hyphen and underscore are allowed.
func ValidateIdentifier(name, value string) error {
	if value == "" {
		return &ollama.ValidationError{Message: fmt.Sprintf("%s cannot be empty", name)}
	}
	if len(value) > maxIdentifierLen {
		return &ollama.ValidationError{Message: fmt.Sprintf("%s exceeds %d characters", name, maxIdentifierLen)}
	}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return &ollama.ValidationError{Message: fmt.Sprintf("%s contains invalid character %q", name, r)}
		}
	}
	return nil
}

// ValidateMessage rejects empty and oversized input text.
func ValidateMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return &ollama.ValidationError{Message: "message cannot be empty"}
	}
	if utf8.RuneCountInString(text) > maxMessageRunes {
		return &ollama.ValidationError{Message: fmt.Sprintf("message exceeds %d characters", maxMessageRunes)}
	}
	return nil
}
