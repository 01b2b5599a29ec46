// Package completion defines the streaming completion interface used by the
// summarization engine, with provider implementations in subpackages.
package completion

import (
	"context"
	"errors"
	"strings"
)

// Sentinel errors returned by providers.
var (
	ErrNotConfigured = errors.New("completion: provider not configured")
	ErrMaxRetries    = errors.New("completion: max retries exceeded")
)

// Message is a single turn in a completion request.
type Message struct {
	Role    string
	Content string
}

// Request describes a completion call. System is kept separate because the
// Anthropic API takes it outside the message list.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float32
}

// Chunk is one fragment of a streamed completion. The final chunk has Done
// set; a failed stream delivers exactly one chunk with Error set.
type Chunk struct {
	Text         string
	Done         bool
	InputTokens  int
	OutputTokens int
	Error        error
}

// Completer streams completions from an LLM provider.
type Completer interface {
	// Complete starts a streaming completion. The returned channel is closed
	// when the stream ends; errors are delivered in-band via Chunk.Error.
	Complete(ctx context.Context, req *Request) (<-chan *Chunk, error)

	// Name returns the provider identifier.
	Name() string
}

// Collect drains a chunk stream into the full response text. It returns the
// first in-band error encountered, after draining the channel so the
// producing goroutine can exit.
func Collect(chunks <-chan *Chunk) (string, error) {
	var sb strings.Builder
	var firstErr error
	for chunk := range chunks {
		if chunk.Error != nil && firstErr == nil {
			firstErr = chunk.Error
		}
		sb.WriteString(chunk.Text)
	}
	if firstErr != nil {
		return "", firstErr
	}
	return sb.String(), nil
}

// IsRetryable classifies transient provider failures. Rate limits, server
// errors, and timeouts are retried; auth and validation errors are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{
		"rate limit", "rate_limit", "429", "too many requests",
		"500", "502", "503", "504",
		"internal server error", "bad gateway", "service unavailable",
		"timeout", "deadline exceeded",
		"connection reset", "connection refused", "no such host",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
