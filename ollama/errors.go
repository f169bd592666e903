package ollama

// ValidationError reports bad caller input or an unusable response body.
// Requests failing validation are never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ModelError reports that the requested model is not present on the
// Ollama server. Surfaced distinctly so callers can offer to pull it.
type ModelError struct {
	Message string
}

func (e *ModelError) Error() string { return e.Message }

// TransportError reports a network or server failure. Connection-level
// failures are retried with backoff before one of these is returned.
type TransportError struct {
	Message string
	Err     error

	// retryable marks connection/timeout failures eligible for retry.
	retryable bool
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *TransportError) Unwrap() error { return e.Err }

// StreamingError reports a failure after a stream has started. Partial
// output cannot be replayed, so these are never retried transparently.
type StreamingError struct {
	Message string
	Err     error
}

func (e *StreamingError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *StreamingError) Unwrap() error { return e.Err }
