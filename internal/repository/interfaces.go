package repository

import (
	"time"

	"github.com/amjacademy/messaging-backend/internal/models"
)

// ConversationRepositoryInterface defines the contract for conversation and
// participant operations.
type ConversationRepositoryInterface interface {
	// GetOrCreate returns the single conversation for the unordered pair,
	// creating it (with both participant rows) atomically if absent.
	GetOrCreate(userA uint, roleA models.ParticipantRole, userB uint, roleB models.ParticipantRole) (*models.Conversation, bool, error)
	FindByID(id uint) (*models.Conversation, error)
	FindByPair(userA, userB uint) (*models.Conversation, error)
	ListForUser(userID uint) ([]models.Conversation, error)
	GetParticipant(conversationID, userID uint) (*models.Participant, error)
	ListParticipants(conversationID uint) ([]models.Participant, error)
	SetTyping(conversationID, userID uint, isTyping bool) error
	// AdvanceReadCursor moves last_read_message_id forward only.
	AdvanceReadCursor(conversationID, userID, lastReadMessageID uint, readAt time.Time) error
}

// MessageRepositoryInterface defines the contract for the append-only
// message log.
type MessageRepositoryInterface interface {
	// Append writes the message and one status row per recipient in a single
	// transaction; partial fan-out cannot be observed.
	Append(message *models.Message, recipientIDs []uint) error
	FindByID(id uint) (*models.Message, error)
	FindByClientID(clientID string, senderID uint) (*models.Message, error)
	// List returns messages ordered ascending by (created_at, id). A zero
	// cursor starts from the beginning.
	List(conversationID uint, cursorCreatedAt *time.Time, cursorID uint, limit int) ([]models.Message, error)
	LatestInConversation(conversationID uint) (*models.Message, error)
	ListConversationSummaries(userID uint, limit int) ([]ConversationSummaryRow, error)
}

// StatusRepositoryInterface defines the contract for per-recipient
// delivery/read state. All writes are monotonic no-ops when re-applied.
type StatusRepositoryInterface interface {
	Find(messageID, userID uint) (*models.MessageStatus, error)
	ListForMessage(messageID uint) ([]models.MessageStatus, error)
	// MarkDelivered sets delivered_at if still null. Returns true when a
	// status row exists for the pair.
	MarkDelivered(messageID, userID uint, at time.Time) (bool, error)
	// MarkReadUpTo sets read_at (and delivered_at) for every unread status
	// row of user in the conversation at or before the cursor message in
	// (created_at, id) order. Returns the ids of newly-read messages.
	MarkReadUpTo(conversationID, userID, cursorMessageID uint, at time.Time) ([]uint, error)
	CountUnread(conversationID, userID uint) (int64, error)
	CountUnreadByConversation(userID uint) (map[uint]int64, error)
	CountUnreadTotal(userID uint) (int64, error)
}

// PresenceRepositoryInterface defines the contract for heartbeat state.
type PresenceRepositoryInterface interface {
	Heartbeat(userID uint, at time.Time) error
	Find(userID uint) (*models.Presence, error)
}

// PendingEventRepositoryInterface defines the contract for the offline
// fanout queue.
type PendingEventRepositoryInterface interface {
	Enqueue(userID uint, kind string, payload string) error
	GetPendingForUser(userID uint, limit int) ([]models.PendingEvent, error)
	GetRetryable(limit int) ([]models.PendingEvent, error)
	MarkAttempted(id uint, attempts int, nextRetry *time.Time) error
	Delete(id uint) error
	DeleteBatch(ids []uint) error
	CleanupOld(olderThan time.Duration) error
}
