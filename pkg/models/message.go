// Package models defines the core data types for Engram.
package models

import (
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single entry in a conversation's ordered history.
//
// Messages are append-only. A compression pass may replace a contiguous
// run of older messages with one synthetic system-role summary message;
// that summary carries audit metadata (see MetaKeySummary) so the
// transform stays visible in the history.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Role           Role           `json:"role"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Metadata keys set on synthetic messages produced by compression.
const (
	// MetaKeySummary marks a message as a compression summary.
	MetaKeySummary = "compression_summary"

	// MetaKeySummarizedCount records how many messages the summary replaced.
	MetaKeySummarizedCount = "summarized_count"

	// MetaKeySummarizedAt records when the summary was generated (RFC 3339).
	MetaKeySummarizedAt = "summarized_at"

	// MetaKeyTruncated marks a message whose content was shortened in place
	// by aggressive truncation.
	MetaKeyTruncated = "truncated"
)

// IsSummary reports whether the message is a synthetic compression summary.
func (m *Message) IsSummary() bool {
	if m == nil || m.Metadata == nil {
		return false
	}
	v, ok := m.Metadata[MetaKeySummary].(bool)
	return ok && v
}

// CloneMessage returns a deep copy of the message.
func CloneMessage(msg *Message) *Message {
	if msg == nil {
		return nil
	}
	clone := *msg
	if msg.Metadata != nil {
		clone.Metadata = make(map[string]any, len(msg.Metadata))
		for k, v := range msg.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

// CloneMessages returns a deep copy of a message slice.
func CloneMessages(msgs []*Message) []*Message {
	if msgs == nil {
		return nil
	}
	out := make([]*Message, len(msgs))
	for i, m := range msgs {
		out[i] = CloneMessage(m)
	}
	return out
}
