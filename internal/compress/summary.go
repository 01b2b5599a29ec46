package compress

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/engram/internal/completion"
	"github.com/haasonsaas/engram/internal/tokens"
	"github.com/haasonsaas/engram/pkg/models"
)

// ErrEmptySummary is returned when the completion provider produces no
// usable summary text.
var ErrEmptySummary = errors.New("compress: empty summary")

// SummarizerConfig configures AI summarization.
type SummarizerConfig struct {
	// TokenThreshold is the history size that triggers summarization.
	TokenThreshold int // default 4000

	// KeepRecent messages at the tail are never summarized.
	KeepRecent int // default 6

	// Model passed to the completion provider. Empty uses its default.
	Model string

	// MaxSummaryTokens bounds the generated summary length.
	MaxSummaryTokens int // default 512
}

// Summary is the rolling per-conversation summary state.
type Summary struct {
	Text                 string
	CoveredMessageCount  int
	LastCoveredTimestamp time.Time
}

// Summarizer maintains rolling conversation summaries via an LLM. It is an
// explicit, auditable history transform: summarized messages are replaced
// by one synthetic system message carrying the combined summary plus audit
// metadata. Independent of the importance Engine.
type Summarizer struct {
	completer completion.Completer
	counter   tokens.Counter
	cfg       SummarizerConfig

	mu        sync.Mutex
	summaries map[string]*Summary
}

// NewSummarizer creates a summarizer. Zero-value config fields get
// defaults.
func NewSummarizer(completer completion.Completer, counter tokens.Counter, cfg SummarizerConfig) *Summarizer {
	if cfg.TokenThreshold <= 0 {
		cfg.TokenThreshold = 4000
	}
	if cfg.KeepRecent <= 0 {
		cfg.KeepRecent = 6
	}
	if cfg.MaxSummaryTokens <= 0 {
		cfg.MaxSummaryTokens = 512
	}
	return &Summarizer{
		completer: completer,
		counter:   counter,
		cfg:       cfg,
		summaries: make(map[string]*Summary),
	}
}

// NeedsCompression reports whether the history has outgrown the threshold.
func (s *Summarizer) NeedsCompression(msgs []*models.Message) bool {
	return s.counter.CountMessages(msgs) > s.cfg.TokenThreshold
}

// CurrentSummary returns a copy of the rolling summary for a conversation,
// or nil when none exists.
func (s *Summarizer) CurrentSummary(conversationID string) *Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sum, ok := s.summaries[conversationID]; ok {
		snapshot := *sum
		return &snapshot
	}
	return nil
}

// CompressMemory summarizes the older slice of msgs and returns the new
// history: one synthetic system message carrying the combined summary,
// followed by the preserved recent messages. Nothing to summarize is a
// no-op returning msgs unchanged. The rolling summary state only advances
// after the completion fully succeeds.
func (s *Summarizer) CompressMemory(ctx context.Context, conversationID string, msgs []*models.Message) ([]*models.Message, error) {
	s.mu.Lock()
	prior := s.summaries[conversationID]
	s.mu.Unlock()

	slice, recent := s.splitForSummary(msgs, prior)
	if len(slice) == 0 {
		return msgs, nil
	}

	newSummary, err := s.summarize(ctx, slice)
	if err != nil {
		return nil, err
	}

	combined := newSummary
	if prior != nil && prior.Text != "" {
		combined = fmt.Sprintf("Previous summary:\n%s\n\nRecent summary:\n%s", prior.Text, newSummary)
	}

	lastCovered := slice[len(slice)-1].CreatedAt
	covered := len(slice)
	if prior != nil {
		covered += prior.CoveredMessageCount
	}

	summaryMsg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           models.RoleSystem,
		Content:        fmt.Sprintf("Conversation summary: %s", combined),
		CreatedAt:      lastCovered,
		Metadata: map[string]any{
			models.MetaKeySummary:         true,
			models.MetaKeySummarizedCount: covered,
			models.MetaKeySummarizedAt:    time.Now().UTC().Format(time.RFC3339),
		},
	}

	s.mu.Lock()
	s.summaries[conversationID] = &Summary{
		Text:                 combined,
		CoveredMessageCount:  covered,
		LastCoveredTimestamp: lastCovered,
	}
	s.mu.Unlock()

	out := make([]*models.Message, 0, len(recent)+1)
	out = append(out, summaryMsg)
	out = append(out, recent...)
	return out, nil
}

// Reset forgets the rolling summary for a conversation.
func (s *Summarizer) Reset(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.summaries, conversationID)
}

// splitForSummary picks the slice to summarize and the tail to preserve.
// With no prior summary the slice is everything but the last KeepRecent
// messages; with one, only messages newer than its cutoff. The prior
// synthetic summary message itself is never re-summarized.
func (s *Summarizer) splitForSummary(msgs []*models.Message, prior *Summary) (slice, recent []*models.Message) {
	if len(msgs) <= s.cfg.KeepRecent {
		return nil, msgs
	}
	cut := len(msgs) - s.cfg.KeepRecent
	recent = msgs[cut:]

	for _, msg := range msgs[:cut] {
		if msg.IsSummary() {
			continue
		}
		if prior != nil && !msg.CreatedAt.After(prior.LastCoveredTimestamp) {
			continue
		}
		slice = append(slice, msg)
	}
	return slice, recent
}

// summarize builds a transcript prompt and runs it through the completion
// provider. An empty response is an error; a partial stream surfaces its
// underlying failure.
func (s *Summarizer) summarize(ctx context.Context, slice []*models.Message) (string, error) {
	var transcript strings.Builder
	for _, msg := range slice {
		transcript.WriteString(string(msg.Role))
		transcript.WriteString(": ")
		transcript.WriteString(msg.Content)
		transcript.WriteString("\n")
	}

	req := &completion.Request{
		Model: s.cfg.Model,
		System: "You condense conversation transcripts. Produce a concise summary " +
			"that preserves decisions, facts, names, and open questions. Respond " +
			"with the summary only.",
		Messages: []completion.Message{
			{Role: "user", Content: "Summarize this conversation:\n\n" + transcript.String()},
		},
		MaxTokens: s.cfg.MaxSummaryTokens,
	}

	chunks, err := s.completer.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("start summarization: %w", err)
	}
	text, err := completion.Collect(chunks)
	if err != nil {
		return "", fmt.Errorf("summarization stream: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptySummary
	}
	return text, nil
}
