package cache

import (
	"hash/fnv"
	"sync"
)

// keyLockShards is a power of two so shard selection is a mask.
const keyLockShards = 32

// KeyLocks serializes work per string key without a global lock. Keys are
// hashed onto a fixed set of mutex shards, so two distinct keys can share a
// shard but one key never maps to two.
type KeyLocks struct {
	shards [keyLockShards]sync.Mutex
}

// NewKeyLocks creates a sharded key lock set.
func NewKeyLocks() *KeyLocks {
	return &KeyLocks{}
}

func (l *KeyLocks) shard(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &l.shards[h.Sum32()&(keyLockShards-1)]
}

// Lock acquires the lock for key, blocking until it is available.
func (l *KeyLocks) Lock(key string) {
	l.shard(key).Lock()
}

// TryLock attempts to acquire the lock for key without blocking. Callers
// that receive false should report the conflict rather than queue.
func (l *KeyLocks) TryLock(key string) bool {
	return l.shard(key).TryLock()
}

// Unlock releases the lock for key.
func (l *KeyLocks) Unlock(key string) {
	l.shard(key).Unlock()
}
