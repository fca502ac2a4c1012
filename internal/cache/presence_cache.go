package cache

import (
	"fmt"
	"time"
)

// PresenceCache keeps a per-user online key whose TTL equals the presence
// window, so a missed heartbeat expires the key without any sweep. The DB
// row remains the source of truth for last_seen_at.
type PresenceCache struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewPresenceCache creates a new presence cache with the given online TTL
func NewPresenceCache(redis *RedisCache, ttl time.Duration) *PresenceCache {
	return &PresenceCache{redis: redis, ttl: ttl}
}

func presenceKey(userID uint) string {
	return fmt.Sprintf("presence:%d", userID)
}

// Heartbeat refreshes the user's online key
func (pc *PresenceCache) Heartbeat(userID uint) error {
	if pc == nil || pc.redis == nil {
		return nil
	}
	return pc.redis.Set(presenceKey(userID), []byte("1"), pc.ttl)
}

// IsOnline reports whether the online key is still live. Returns ok=false
// when no cache is configured so callers fall back to the DB.
func (pc *PresenceCache) IsOnline(userID uint) (online bool, ok bool) {
	if pc == nil || pc.redis == nil {
		return false, false
	}
	return pc.redis.Exists(presenceKey(userID)), true
}
