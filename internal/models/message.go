package models

import (
	"time"
)

type MessageType string

const (
	TextMessage     MessageType = "text"
	ImageMessage    MessageType = "image"
	VideoMessage    MessageType = "video"
	DocumentMessage MessageType = "document"
)

// DeliveryState is the derived per-recipient state of a message.
type DeliveryState string

const (
	StateSent      DeliveryState = "sent"
	StateDelivered DeliveryState = "delivered"
	StateRead      DeliveryState = "read"
)

// Message is one immutable unit of content. created_at is assigned
// server-side; ordering within a conversation is (created_at, id) ascending.
type Message struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index:idx_conversation_order,priority:2" json:"created_at"`

	// ClientID is the client-generated correlation id. The unique index on
	// (client_id, sender_id) makes append retries return the original row
	// instead of duplicating the message.
	ClientID string `gorm:"type:varchar(36);uniqueIndex:idx_client_sender;not null" json:"client_id"`

	ConversationID uint `gorm:"not null;index:idx_conversation_order,priority:1" json:"conversation_id"`
	SenderID       uint `gorm:"not null;uniqueIndex:idx_client_sender;index" json:"sender_id"`

	Content     string      `gorm:"type:text;not null" json:"content"`
	MessageType MessageType `gorm:"type:varchar(20);not null;default:'text'" json:"message_type"`

	// Attachment metadata. The blob store hands these to the client
	// out-of-band; the core only stores the URLs.
	FileURL      string `gorm:"type:text" json:"file_url,omitempty"`
	ThumbnailURL string `gorm:"type:text" json:"thumbnail_url,omitempty"`
	FileName     string `gorm:"type:varchar(255)" json:"file_name,omitempty"`
	FileSize     int64  `json:"file_size,omitempty"`

	Statuses []MessageStatus `gorm:"foreignKey:MessageID" json:"statuses,omitempty"`
}

// MessageStatus is the per-recipient delivery/read row, created together
// with the message for every non-sender participant. delivered_at and
// read_at are monotonic: once set they are never cleared or moved.
type MessageStatus struct {
	MessageID   uint       `gorm:"primaryKey" json:"message_id"`
	UserID      uint       `gorm:"primaryKey;index" json:"user_id"`
	DeliveredAt *time.Time `json:"delivered_at"`
	ReadAt      *time.Time `json:"read_at"`
}

// State derives the SENT -> DELIVERED -> READ state. read implies delivered.
func (s *MessageStatus) State() DeliveryState {
	switch {
	case s.ReadAt != nil:
		return StateRead
	case s.DeliveredAt != nil:
		return StateDelivered
	default:
		return StateSent
	}
}

type MessageResponse struct {
	ID             uint            `json:"id"`
	ClientID       string          `json:"client_id"`
	ConversationID uint            `json:"conversation_id"`
	SenderID       uint            `json:"sender_id"`
	Content        string          `json:"content"`
	MessageType    MessageType     `json:"message_type"`
	FileURL        string          `json:"file_url,omitempty"`
	ThumbnailURL   string          `json:"thumbnail_url,omitempty"`
	FileName       string          `json:"file_name,omitempty"`
	FileSize       int64           `json:"file_size,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	Statuses       []MessageStatus `json:"statuses"`
}

func (m *Message) ToResponse() MessageResponse {
	statuses := m.Statuses
	if statuses == nil {
		statuses = []MessageStatus{}
	}
	return MessageResponse{
		ID:             m.ID,
		ClientID:       m.ClientID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		MessageType:    m.MessageType,
		FileURL:        m.FileURL,
		ThumbnailURL:   m.ThumbnailURL,
		FileName:       m.FileName,
		FileSize:       m.FileSize,
		CreatedAt:      m.CreatedAt,
		Statuses:       statuses,
	}
}
