package models

import (
	"time"
)

// SnapshotVersion is the current MemorySnapshot schema version.
const SnapshotVersion = 1

// CacheStatus describes the state of a cached conversation memory.
type CacheStatus string

const (
	CacheStatusWarm    CacheStatus = "warm"    // Loaded and recently touched
	CacheStatusCold    CacheStatus = "cold"    // Not currently cached
	CacheStatusEvicted CacheStatus = "evicted" // Dropped by the idle TTL sweep
)

// MemorySnapshot is a versioned record of a conversation memory's state,
// persisted for cross-session continuity.
type MemorySnapshot struct {
	ConversationID  string      `json:"conversation_id"`
	MessageCount    int         `json:"message_count"`
	MaxTokens       int         `json:"max_tokens"`
	EstimatedTokens int         `json:"estimated_tokens"`
	CacheStatus     CacheStatus `json:"cache_status"`
	LastUpdated     time.Time   `json:"last_updated"`
	Version         int         `json:"version"`
}
