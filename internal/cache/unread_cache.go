package cache

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	// UnreadCountTTL is short on purpose: the badge is recomputed from the
	// status rows on every miss, the cache only absorbs bursts.
	UnreadCountTTL = 1 * time.Minute
)

// UnreadCache caches per-conversation and total unread counts.
type UnreadCache struct {
	redis *RedisCache
}

// NewUnreadCache creates a new unread-count cache
func NewUnreadCache(redis *RedisCache) *UnreadCache {
	return &UnreadCache{redis: redis}
}

func unreadKey(userID, conversationID uint) string {
	return fmt.Sprintf("unread:%d:%d", userID, conversationID)
}

func unreadTotalKey(userID uint) string {
	return fmt.Sprintf("unread_total:%d", userID)
}

// GetCount retrieves a cached per-conversation unread count
func (uc *UnreadCache) GetCount(userID, conversationID uint) (int64, bool) {
	if uc == nil || uc.redis == nil {
		return 0, false
	}
	data, err := uc.redis.Get(unreadKey(userID, conversationID))
	if err != nil || data == nil {
		return 0, false
	}

	var count int64
	if err := msgpack.Unmarshal(data, &count); err != nil {
		return 0, false
	}
	return count, true
}

// SetCount caches a per-conversation unread count
func (uc *UnreadCache) SetCount(userID, conversationID uint, count int64) error {
	if uc == nil || uc.redis == nil {
		return nil
	}
	data, err := msgpack.Marshal(count)
	if err != nil {
		return err
	}
	return uc.redis.Set(unreadKey(userID, conversationID), data, UnreadCountTTL)
}

// GetTotal retrieves a cached total unread count
func (uc *UnreadCache) GetTotal(userID uint) (int64, bool) {
	if uc == nil || uc.redis == nil {
		return 0, false
	}
	data, err := uc.redis.Get(unreadTotalKey(userID))
	if err != nil || data == nil {
		return 0, false
	}

	var count int64
	if err := msgpack.Unmarshal(data, &count); err != nil {
		return 0, false
	}
	return count, true
}

// SetTotal caches a total unread count
func (uc *UnreadCache) SetTotal(userID uint, count int64) error {
	if uc == nil || uc.redis == nil {
		return nil
	}
	data, err := msgpack.Marshal(count)
	if err != nil {
		return err
	}
	return uc.redis.Set(unreadTotalKey(userID), data, UnreadCountTTL)
}

// Invalidate drops a user's counts for one conversation plus their total.
// Called on append and on read-cursor moves.
func (uc *UnreadCache) Invalidate(userID, conversationID uint) error {
	if uc == nil || uc.redis == nil {
		return nil
	}
	if err := uc.redis.Delete(unreadKey(userID, conversationID)); err != nil {
		return err
	}
	return uc.redis.Delete(unreadTotalKey(userID))
}
