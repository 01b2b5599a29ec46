// Package budget keeps conversation history within a model's context
// window, triggering importance-based compression and falling back to
// aggressive truncation when compression is not enough.
package budget

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/haasonsaas/engram/internal/compress"
	"github.com/haasonsaas/engram/internal/conversation"
	"github.com/haasonsaas/engram/internal/tokens"
	"github.com/haasonsaas/engram/pkg/models"
)

// UsageStatus classifies how much of the budget a conversation consumes.
type UsageStatus string

const (
	UsageNormal   UsageStatus = "normal"   // <= 60%
	UsageMedium   UsageStatus = "medium"   // <= 80%
	UsageHigh     UsageStatus = "high"     // <= 95%
	UsageCritical UsageStatus = "critical" // > 95%
)

// StatusFor maps a usage ratio to its tier.
func StatusFor(ratio float64) UsageStatus {
	switch {
	case ratio <= 0.60:
		return UsageNormal
	case ratio <= 0.80:
		return UsageMedium
	case ratio <= 0.95:
		return UsageHigh
	default:
		return UsageCritical
	}
}

// PreserveRecentCountFor scales the always-kept tail with the model's
// context size.
func PreserveRecentCountFor(contextSize int) int {
	switch {
	case contextSize < 8192:
		return 4
	case contextSize < 32768:
		return 8
	case contextSize < 131072:
		return 12
	default:
		return 16
	}
}

// compressionTarget is the fraction of the budget compression aims for,
// leaving headroom so the next few appends do not immediately re-trigger.
const compressionTarget = 0.8

// truncationMarker is appended to a message whose content was cut.
const truncationMarker = "…"

// Result reports what ManageTokenWindow did.
type Result struct {
	Optimized          bool
	OriginalTokens     int
	FinalTokens        int
	MessagesRemoved    int
	CompressionApplied bool
	TruncationApplied  bool
	Status             UsageStatus
}

// Config configures the budget manager.
type Config struct {
	Engine compress.EngineConfig
	Logger *slog.Logger
}

// Manager enforces token budgets over a conversation.Manager.
type Manager struct {
	conversations *conversation.Manager
	engineCfg     compress.EngineConfig
	logger        *slog.Logger
}

// NewManager creates a budget manager.
func NewManager(conversations *conversation.Manager, cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		conversations: conversations,
		engineCfg:     cfg.Engine,
		logger:        logger,
	}
}

// ManageTokenWindow brings a conversation within budget for the model.
// budget = context window − reserveTokens. Within budget is a no-op. Over
// budget runs the importance engine toward 0.8×budget; if the history is
// still over after compression, whole newest messages are kept while they
// fit and the first overflowing message is truncated to its longest
// fitting prefix, dropping everything older. The result is persisted
// all-or-nothing; a conflicting mutation yields conversation.ErrBusy.
func (m *Manager) ManageTokenWindow(ctx context.Context, conversationID, model string, reserveTokens int) (*Result, error) {
	counter := tokens.ForModel(model)
	maxContext := tokens.ContextWindow(model)
	budget := maxContext - reserveTokens
	if budget <= 0 {
		return nil, fmt.Errorf("budget: reserve %d leaves no room in %d-token context", reserveTokens, maxContext)
	}

	result := &Result{}
	err := m.conversations.Mutate(ctx, conversationID, func(mem *conversation.Memory) error {
		original := counter.CountMessages(mem.Messages)
		result.OriginalTokens = original
		result.FinalTokens = original
		result.Status = StatusFor(float64(original) / float64(budget))

		if original <= budget {
			return nil
		}

		originalCount := len(mem.Messages)

		engineCfg := m.engineCfg
		engineCfg.PreserveRecentCount = PreserveRecentCountFor(maxContext)
		engine := compress.NewEngine(engineCfg, counter)

		target := int(compressionTarget * float64(budget))
		compressed := engine.Compress(mem.Messages, target)
		mem.Messages = compressed.Messages
		result.CompressionApplied = compressed.CompressionRatio > 0

		final := counter.CountMessages(mem.Messages)
		if final > budget {
			mem.Messages = truncate(mem.Messages, budget, counter)
			result.TruncationApplied = true
			final = counter.CountMessages(mem.Messages)
		}

		result.Optimized = true
		result.FinalTokens = final
		result.MessagesRemoved = originalCount - len(mem.Messages)
		result.Status = StatusFor(float64(final) / float64(budget))

		m.logger.Info("token window managed",
			"conversation_id", conversationID,
			"model", model,
			"original_tokens", original,
			"final_tokens", final,
			"messages_removed", result.MessagesRemoved,
			"compression", result.CompressionApplied,
			"truncation", result.TruncationApplied)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// truncate walks messages newest to oldest, keeping whole messages while
// they fit. The first message that does not fit is replaced in place with
// its longest content prefix (plus a marker) that fits the remaining
// budget, keeping the same ID, timestamp, and role; older messages are
// dropped.
func truncate(msgs []*models.Message, budget int, counter tokens.Counter) []*models.Message {
	kept := make([]*models.Message, 0, len(msgs))
	remaining := budget

	for i := len(msgs) - 1; i >= 0; i-- {
		msg := msgs[i]
		cost := counter.CountMessage(msg)
		if cost <= remaining {
			kept = append(kept, msg)
			remaining -= cost
			continue
		}

		if prefix, ok := longestFittingPrefix(msg.Content, remaining, counter); ok {
			clone := models.CloneMessage(msg)
			clone.Content = prefix + truncationMarker
			if clone.Metadata == nil {
				clone.Metadata = make(map[string]any, 1)
			}
			clone.Metadata[models.MetaKeyTruncated] = true
			kept = append(kept, clone)
		}
		break
	}

	// kept is newest-first; restore chronological order.
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}

// longestFittingPrefix binary-searches the longest rune prefix whose
// message cost, marker included, fits the remaining budget.
func longestFittingPrefix(content string, remaining int, counter tokens.Counter) (string, bool) {
	runes := []rune(content)
	fits := func(n int) bool {
		probe := &models.Message{Content: string(runes[:n]) + truncationMarker}
		return counter.CountMessage(probe) <= remaining
	}
	if remaining <= 0 || !fits(0) {
		return "", false
	}

	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if fits(mid) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	if lo == 0 {
		return "", false
	}
	return string(runes[:lo]), true
}
