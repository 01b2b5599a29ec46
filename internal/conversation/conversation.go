// Package conversation maintains per-conversation message history and the
// token-budgeted view of it.
package conversation

import (
	"time"

	"github.com/haasonsaas/engram/internal/tokens"
	"github.com/haasonsaas/engram/pkg/models"
)

// Memory is the ordered message log for one conversation.
//
// Messages are kept in chronological order; Append keeps the order
// non-decreasing by timestamp. Memory itself is not safe for concurrent
// use; the Manager serializes access per conversation.
type Memory struct {
	ConversationID string
	Messages       []*models.Message
	MaxTokens      int
	LastUpdated    time.Time
}

// NewMemory creates an empty conversation memory.
func NewMemory(conversationID string, maxTokens int) *Memory {
	return &Memory{
		ConversationID: conversationID,
		MaxTokens:      maxTokens,
	}
}

// Append adds a message to the end of the log. A zero timestamp is filled
// with the current time; a timestamp earlier than the last message is
// clamped to it so append order stays non-decreasing.
func (m *Memory) Append(msg *models.Message) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if n := len(m.Messages); n > 0 {
		if last := m.Messages[n-1].CreatedAt; msg.CreatedAt.Before(last) {
			msg.CreatedAt = last
		}
	}
	msg.ConversationID = m.ConversationID
	m.Messages = append(m.Messages, msg)
	m.LastUpdated = time.Now()
}

// ContextWithinBudget walks messages most-recent-first, accumulating token
// estimates, and returns the retained suffix in chronological order. The
// result never exceeds maxTokens beyond one message's granularity. This is
// the unconditional fast path when no compression runs.
func (m *Memory) ContextWithinBudget(counter tokens.Counter, maxTokens int) []*models.Message {
	if maxTokens <= 0 || len(m.Messages) == 0 {
		return nil
	}

	total := 0
	start := len(m.Messages)
	for i := len(m.Messages) - 1; i >= 0; i-- {
		cost := counter.CountMessage(m.Messages[i])
		if total+cost > maxTokens {
			break
		}
		total += cost
		start = i
	}
	if start == len(m.Messages) {
		return nil
	}
	return m.Messages[start:]
}

// EstimatedTokens returns the token estimate for the full log.
func (m *Memory) EstimatedTokens(counter tokens.Counter) int {
	return counter.CountMessages(m.Messages)
}

// Snapshot captures the memory's state for cross-session continuity.
func (m *Memory) Snapshot(counter tokens.Counter, status models.CacheStatus) *models.MemorySnapshot {
	return &models.MemorySnapshot{
		ConversationID:  m.ConversationID,
		MessageCount:    len(m.Messages),
		MaxTokens:       m.MaxTokens,
		LastUpdated:     m.LastUpdated,
		EstimatedTokens: m.EstimatedTokens(counter),
		CacheStatus:     status,
		Version:         models.SnapshotVersion,
	}
}
