package models

import (
	"time"
)

// PendingEvent is a fanout event queued for a user with no live connection.
// Ephemeral kinds (typing, presence) are never queued; durable ones are
// flushed in batches when the user reconnects.
type PendingEvent struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID uint   `gorm:"not null;index:idx_pending_user" json:"user_id"`
	Kind   string `gorm:"type:varchar(40);not null" json:"kind"`

	// Payload is the serialized event, cached so delivery needs no joins.
	Payload string `gorm:"type:text;not null" json:"payload"`

	Attempts  int        `gorm:"default:0" json:"attempts"`
	NextRetry *time.Time `gorm:"index" json:"next_retry"`
}
