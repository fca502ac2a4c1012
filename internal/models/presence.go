package models

import (
	"time"
)

// Presence is a user's heartbeat row. It is overwritten by every heartbeat;
// no history is kept. Online-ness is computed lazily at read time against a
// TTL, never by a background sweep.
type Presence struct {
	UserID     uint      `gorm:"primaryKey" json:"user_id"`
	LastSeenAt time.Time `gorm:"not null" json:"last_seen_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Online reports whether the heartbeat is fresher than ttl at the given
// instant.
func (p *Presence) Online(now time.Time, ttl time.Duration) bool {
	return now.Sub(p.LastSeenAt) < ttl
}

type PresenceResponse struct {
	UserID   uint       `json:"user_id"`
	IsOnline bool       `json:"is_online"`
	LastSeen *time.Time `json:"last_seen"`
}

func (p *Presence) ToResponse(now time.Time, ttl time.Duration) PresenceResponse {
	seen := p.LastSeenAt
	return PresenceResponse{
		UserID:   p.UserID,
		IsOnline: p.Online(now, ttl),
		LastSeen: &seen,
	}
}
