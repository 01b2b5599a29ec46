// Package anthropic implements completion.Completer against the Anthropic
// Messages API with streaming and retry handling.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/haasonsaas/engram/internal/completion"
)

// Completer streams completions from Claude models. Safe for concurrent use;
// each Complete call runs an independent stream goroutine.
type Completer struct {
	client       anthropic.Client
	maxRetries   int
	retryDelay   time.Duration
	defaultModel string
}

var _ completion.Completer = (*Completer)(nil)

// Config holds provider settings. Only APIKey is required.
type Config struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int           // default 3
	RetryDelay   time.Duration // base for exponential backoff, default 1s
	DefaultModel string        // default claude-3-5-haiku-latest
}

// New creates an Anthropic completer.
func New(cfg Config) (*Completer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: missing API key", completion.ErrNotConfigured)
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-3-5-haiku-latest"
	}

	options := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}

	return &Completer{
		client:       anthropic.NewClient(options...),
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		defaultModel: cfg.DefaultModel,
	}, nil
}

// Name returns the provider identifier.
func (c *Completer) Name() string {
	return "anthropic"
}

// Complete starts a streaming completion with exponential-backoff retries on
// transient failures.
func (c *Completer) Complete(ctx context.Context, req *completion.Request) (<-chan *completion.Chunk, error) {
	chunks := make(chan *completion.Chunk)

	go func() {
		defer close(chunks)

		var stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
		var err error

		for attempt := 0; attempt <= c.maxRetries; attempt++ {
			stream = c.createStream(ctx, req)
			err = stream.Err()
			if err == nil {
				break
			}
			if !completion.IsRetryable(err) {
				chunks <- &completion.Chunk{Error: err, Done: true}
				return
			}
			if attempt < c.maxRetries {
				backoff := c.retryDelay * time.Duration(math.Pow(2, float64(attempt)))
				select {
				case <-ctx.Done():
					chunks <- &completion.Chunk{Error: ctx.Err(), Done: true}
					return
				case <-time.After(backoff):
				}
			}
		}
		if err != nil {
			chunks <- &completion.Chunk{Error: fmt.Errorf("%w: %v", completion.ErrMaxRetries, err), Done: true}
			return
		}

		c.processStream(stream, chunks)
	}()

	return chunks, nil
}

func (c *Completer) createStream(ctx context.Context, req *completion.Request) *ssestream.Stream[anthropic.MessageStreamEventUnion] {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  convertMessages(req.Messages),
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(req.Temperature))
	}

	return c.client.Messages.NewStreaming(ctx, params)
}

func (c *Completer) processStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], chunks chan<- *completion.Chunk) {
	var inputTokens, outputTokens int

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "message_start":
			start := event.AsMessageStart()
			if start.Message.Usage.InputTokens > 0 {
				inputTokens = int(start.Message.Usage.InputTokens)
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			if delta.Type == "text_delta" && delta.Text != "" {
				chunks <- &completion.Chunk{Text: delta.Text}
			}

		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				outputTokens = int(md.Usage.OutputTokens)
			}

		case "message_stop":
			chunks <- &completion.Chunk{
				Done:         true,
				InputTokens:  inputTokens,
				OutputTokens: outputTokens,
			}
			return

		case "error":
			chunks <- &completion.Chunk{Error: errors.New("anthropic: stream error"), Done: true}
			return
		}
	}

	if err := stream.Err(); err != nil {
		chunks <- &completion.Chunk{Error: err, Done: true}
	}
}

// convertMessages maps completion messages to Anthropic message params.
// System messages are carried via params.System, not in the list.
func convertMessages(messages []completion.Message) []anthropic.MessageParam {
	var result []anthropic.MessageParam
	for _, msg := range messages {
		if msg.Role == "system" || msg.Content == "" {
			continue
		}
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == "assistant" {
			result = append(result, anthropic.NewAssistantMessage(block))
		} else {
			result = append(result, anthropic.NewUserMessage(block))
		}
	}
	return result
}
