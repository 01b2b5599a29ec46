package conversation

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/haasonsaas/engram/pkg/models"
)

// Store is the durable persistence contract for conversation history. The
// engine consumes this; the storage engine itself lives elsewhere.
type Store interface {
	// FetchMessages returns the full ordered history for a conversation.
	// An unknown conversation yields an empty slice, not an error.
	FetchMessages(ctx context.Context, conversationID string) ([]*models.Message, error)

	// AppendMessage persists one message at the end of its conversation.
	AppendMessage(ctx context.Context, msg *models.Message) error

	// ReplaceMessages atomically replaces a conversation's history, used
	// to commit compression and truncation results.
	ReplaceMessages(ctx context.Context, conversationID string, msgs []*models.Message) error

	// DeleteConversation removes all messages for a conversation.
	DeleteConversation(ctx context.Context, conversationID string) error
}

// MemoryStore is an in-memory Store for tests and single-process use.
// All reads and writes operate on deep copies so callers can never mutate
// stored state through shared pointers.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string][]*models.Message
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string][]*models.Message),
	}
}

// FetchMessages returns a copy of the conversation's history in
// chronological order.
func (s *MemoryStore) FetchMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := models.CloneMessages(s.conversations[conversationID])
	if msgs == nil {
		return []*models.Message{}, nil
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	return msgs, nil
}

// AppendMessage stores a copy of the message, assigning an ID if absent.
func (s *MemoryStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	clone := models.CloneMessage(msg)
	if clone.ID == "" {
		clone.ID = uuid.NewString()
		msg.ID = clone.ID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[clone.ConversationID] = append(s.conversations[clone.ConversationID], clone)
	return nil
}

// ReplaceMessages swaps the conversation's history for a copy of msgs.
func (s *MemoryStore) ReplaceMessages(ctx context.Context, conversationID string, msgs []*models.Message) error {
	clones := models.CloneMessages(msgs)
	for _, m := range clones {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		m.ConversationID = conversationID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conversationID] = clones
	return nil
}

// DeleteConversation removes the conversation entirely.
func (s *MemoryStore) DeleteConversation(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, conversationID)
	return nil
}
