package models

import (
	"time"
)

// Conversation is the single thread between two users. The pair is stored
// sorted (UserLow < UserHigh) so the composite unique index makes
// get-or-create idempotent under concurrent creation.
type Conversation struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserLow  uint `gorm:"not null;uniqueIndex:idx_conversation_pair" json:"user_low"`
	UserHigh uint `gorm:"not null;uniqueIndex:idx_conversation_pair" json:"user_high"`

	Participants []Participant `gorm:"foreignKey:ConversationID" json:"participants,omitempty"`
}

// PeerID returns the other participant of the pair.
func (c *Conversation) PeerID(userID uint) uint {
	if c.UserLow == userID {
		return c.UserHigh
	}
	return c.UserLow
}

// HasParticipant reports whether userID belongs to the pair.
func (c *Conversation) HasParticipant(userID uint) bool {
	return c.UserLow == userID || c.UserHigh == userID
}

// SortPair normalizes an unordered user pair into (low, high).
func SortPair(a, b uint) (uint, uint) {
	if a > b {
		return b, a
	}
	return a, b
}

type ParticipantRole string

const (
	RoleStudent ParticipantRole = "student"
	RoleTeacher ParticipantRole = "teacher"
)

// Participant is one user's membership record in a conversation. It carries
// the read cursor and the typing flag; last_read_message_id only moves
// forward.
type Participant struct {
	ConversationID uint            `gorm:"primaryKey" json:"conversation_id"`
	UserID         uint            `gorm:"primaryKey" json:"user_id"`
	Role           ParticipantRole `gorm:"type:varchar(20);not null" json:"role"`

	LastReadMessageID uint       `gorm:"not null;default:0" json:"last_read_message_id"`
	LastReadAt        *time.Time `json:"last_read_at"`
	IsTyping          bool       `gorm:"default:false" json:"is_typing"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ConversationResponse struct {
	ID           uint             `json:"id"`
	PeerID       uint             `json:"peer_id"`
	CreatedAt    time.Time        `json:"created_at"`
	Participants []Participant    `json:"participants,omitempty"`
	LastMessage  *MessageResponse `json:"last_message,omitempty"`
	UnreadCount  int64            `json:"unread_count"`
}

func (c *Conversation) ToResponse(viewerID uint) ConversationResponse {
	return ConversationResponse{
		ID:           c.ID,
		PeerID:       c.PeerID(viewerID),
		CreatedAt:    c.CreatedAt,
		Participants: c.Participants,
	}
}
