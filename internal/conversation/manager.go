package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/haasonsaas/engram/internal/cache"
	"github.com/haasonsaas/engram/internal/tokens"
	"github.com/haasonsaas/engram/pkg/models"
)

// ErrBusy is returned when a mutation conflicts with an in-flight mutation
// on the same conversation. Callers retry; the engine never queues.
var ErrBusy = errors.New("conversation: busy")

// DefaultIdleTTL is how long an untouched conversation stays cached.
const DefaultIdleTTL = 5 * time.Minute

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Model selects the token counter family.
	Model string

	// MaxTokens is the per-conversation token ceiling recorded on new
	// memories. Zero means the model's full context window.
	MaxTokens int

	// IdleTTL overrides the cache eviction window.
	IdleTTL time.Duration

	Logger *slog.Logger
}

// Manager coordinates access to conversation memories. Memories are loaded
// from the durable store lazily, cached with an idle TTL, and mutated under
// a per-conversation lock. Operations on different conversations proceed in
// parallel; a conflicting mutation on the same conversation fails with
// ErrBusy.
type Manager struct {
	store     Store
	cache     *cache.TTL[*Memory]
	locks     *cache.KeyLocks
	counter   tokens.Counter
	maxTokens int
	logger    *slog.Logger
}

// NewManager creates a conversation manager backed by the given store.
func NewManager(store Store, cfg ManagerConfig) *Manager {
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = tokens.ContextWindow(cfg.Model)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		store:     store,
		cache:     cache.NewTTL[*Memory](ttl, cache.DefaultSweepInterval),
		locks:     cache.NewKeyLocks(),
		counter:   tokens.ForModel(cfg.Model),
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// Counter returns the manager's token counter.
func (m *Manager) Counter() tokens.Counter {
	return m.counter
}

// Close stops the cache sweeper.
func (m *Manager) Close() {
	m.cache.Stop()
}

// Append adds a message to a conversation and persists it. Returns ErrBusy
// if another mutation on the same conversation is in flight.
func (m *Manager) Append(ctx context.Context, conversationID string, role models.Role, content string) (*models.Message, error) {
	if !m.locks.TryLock(conversationID) {
		return nil, fmt.Errorf("%w: conversation %s", ErrBusy, conversationID)
	}
	defer m.locks.Unlock(conversationID)

	mem, err := m.load(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	mem.Append(msg)

	if err := m.store.AppendMessage(ctx, msg); err != nil {
		// Roll the in-memory append back so cache and store stay aligned.
		mem.Messages = mem.Messages[:len(mem.Messages)-1]
		return nil, fmt.Errorf("persist message: %w", err)
	}
	m.cache.Set(conversationID, mem)

	m.logger.Debug("message appended",
		"conversation_id", conversationID,
		"role", string(role),
		"message_count", len(mem.Messages))
	return msg, nil
}

// Mutate runs fn against the conversation's memory under its lock and
// commits the resulting message list to the durable store all-or-nothing.
// If fn returns an error nothing is persisted and the cached memory is
// dropped so the next read reloads clean state.
func (m *Manager) Mutate(ctx context.Context, conversationID string, fn func(mem *Memory) error) error {
	if !m.locks.TryLock(conversationID) {
		return fmt.Errorf("%w: conversation %s", ErrBusy, conversationID)
	}
	defer m.locks.Unlock(conversationID)

	mem, err := m.load(ctx, conversationID)
	if err != nil {
		return err
	}

	if err := fn(mem); err != nil {
		m.cache.Delete(conversationID)
		return err
	}

	if err := m.store.ReplaceMessages(ctx, conversationID, mem.Messages); err != nil {
		m.cache.Delete(conversationID)
		return fmt.Errorf("replace messages: %w", err)
	}
	mem.LastUpdated = time.Now()
	m.cache.Set(conversationID, mem)
	return nil
}

// History returns a copy of the conversation's ordered message list.
func (m *Manager) History(ctx context.Context, conversationID string) ([]*models.Message, error) {
	m.locks.Lock(conversationID)
	defer m.locks.Unlock(conversationID)

	mem, err := m.load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return models.CloneMessages(mem.Messages), nil
}

// ContextWithinBudget returns the newest suffix of the conversation that
// fits within maxTokens, in chronological order.
func (m *Manager) ContextWithinBudget(ctx context.Context, conversationID string, maxTokens int) ([]*models.Message, error) {
	m.locks.Lock(conversationID)
	defer m.locks.Unlock(conversationID)

	mem, err := m.load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return models.CloneMessages(mem.ContextWithinBudget(m.counter, maxTokens)), nil
}

// Clear deletes a conversation's history entirely.
func (m *Manager) Clear(ctx context.Context, conversationID string) error {
	if !m.locks.TryLock(conversationID) {
		return fmt.Errorf("%w: conversation %s", ErrBusy, conversationID)
	}
	defer m.locks.Unlock(conversationID)

	if err := m.store.DeleteConversation(ctx, conversationID); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	m.cache.Delete(conversationID)
	m.logger.Info("conversation cleared", "conversation_id", conversationID)
	return nil
}

// Snapshot returns a versioned snapshot of the conversation's state. The
// cache status reflects whether the memory was already resident.
func (m *Manager) Snapshot(ctx context.Context, conversationID string) (*models.MemorySnapshot, error) {
	m.locks.Lock(conversationID)
	defer m.locks.Unlock(conversationID)

	status := models.CacheStatusCold
	if _, ok := m.cache.Get(conversationID); ok {
		status = models.CacheStatusWarm
	}

	mem, err := m.load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return mem.Snapshot(m.counter, status), nil
}

// load returns the cached memory or hydrates it from the durable store.
// Callers must hold the conversation's lock.
func (m *Manager) load(ctx context.Context, conversationID string) (*Memory, error) {
	if mem, ok := m.cache.Get(conversationID); ok {
		return mem, nil
	}

	msgs, err := m.store.FetchMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	mem := NewMemory(conversationID, m.maxTokens)
	mem.Messages = msgs
	if n := len(msgs); n > 0 {
		mem.LastUpdated = msgs[n-1].CreatedAt
	}
	m.cache.Set(conversationID, mem)
	return mem, nil
}
