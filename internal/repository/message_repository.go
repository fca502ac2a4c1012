package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/amjacademy/messaging-backend/internal/models"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Append commits the message and its per-recipient status rows as one unit.
// A failure anywhere rolls the whole thing back, so a message without its
// fan-out rows can never be observed. created_at comes from the server
// clock, never the client.
func (r *MessageRepository) Append(message *models.Message, recipientIDs []uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if message.CreatedAt.IsZero() {
			message.CreatedAt = time.Now().UTC()
		}
		if err := tx.Create(message).Error; err != nil {
			return err
		}

		statuses := make([]models.MessageStatus, 0, len(recipientIDs))
		for _, uid := range recipientIDs {
			if uid == message.SenderID {
				continue
			}
			statuses = append(statuses, models.MessageStatus{
				MessageID: message.ID,
				UserID:    uid,
			})
		}
		if len(statuses) > 0 {
			if err := tx.Create(&statuses).Error; err != nil {
				return err
			}
			message.Statuses = statuses
		}

		// Bump the conversation so list ordering follows activity.
		return tx.Model(&models.Conversation{}).
			Where("id = ?", message.ConversationID).
			Update("updated_at", gorm.Expr("NOW()")).Error
	})
}

func (r *MessageRepository) FindByID(id uint) (*models.Message, error) {
	var message models.Message
	err := r.db.Preload("Statuses").First(&message, id).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *MessageRepository) FindByClientID(clientID string, senderID uint) (*models.Message, error) {
	var message models.Message
	err := r.db.Preload("Statuses").
		Where("client_id = ? AND sender_id = ?", clientID, senderID).
		First(&message).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// List pages a conversation strictly ascending by (created_at, id). The
// cursor points at the last message of the previous page.
func (r *MessageRepository) List(conversationID uint, cursorCreatedAt *time.Time, cursorID uint, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	q := r.db.Preload("Statuses").Where("conversation_id = ?", conversationID)
	if cursorCreatedAt != nil && cursorID > 0 {
		q = q.Where("(created_at > ? OR (created_at = ? AND id > ?))",
			*cursorCreatedAt, *cursorCreatedAt, cursorID)
	}

	var messages []models.Message
	err := q.Order("created_at ASC, id ASC").Limit(limit).Find(&messages).Error
	return messages, err
}

func (r *MessageRepository) LatestInConversation(conversationID uint) (*models.Message, error) {
	var message models.Message
	err := r.db.Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		First(&message).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// ConversationSummaryRow is a denormalized conversation-list row: last
// message plus the viewer's unread count, computed in one query.
type ConversationSummaryRow struct {
	ConversationID uint      `gorm:"column:conversation_id"`
	PeerID         uint      `gorm:"column:peer_id"`
	ConvCreatedAt  time.Time `gorm:"column:conv_created_at"`

	UnreadCount int64 `gorm:"column:unread_count"`

	MessageID        uint       `gorm:"column:message_id"`
	MessageClientID  string     `gorm:"column:message_client_id"`
	MessageSenderID  uint       `gorm:"column:message_sender_id"`
	MessageContent   string     `gorm:"column:message_content"`
	MessageType      string     `gorm:"column:message_type"`
	MessageFileURL   string     `gorm:"column:message_file_url"`
	MessageCreatedAt *time.Time `gorm:"column:message_created_at"`

	LastActivity time.Time `gorm:"column:last_activity"`
}

// ListConversationSummaries returns the viewer's conversations with last
// message and unread count. Window function picks the latest message per
// conversation; the unread count is a correlated aggregate over the status
// rows, not a per-message round trip.
func (r *MessageRepository) ListConversationSummaries(userID uint, limit int) ([]ConversationSummaryRow, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	query := `
WITH ranked AS (
	SELECT
		m.conversation_id,
		m.id AS message_id,
		m.client_id AS message_client_id,
		m.sender_id AS message_sender_id,
		m.content AS message_content,
		m.message_type AS message_type,
		m.file_url AS message_file_url,
		m.created_at AS message_created_at,
		ROW_NUMBER() OVER (
			PARTITION BY m.conversation_id
			ORDER BY m.created_at DESC, m.id DESC
		) AS rn
	FROM messages m
)
SELECT
	c.id AS conversation_id,
	CASE WHEN c.user_low = ? THEN c.user_high ELSE c.user_low END AS peer_id,
	c.created_at AS conv_created_at,
	COALESCE((
		SELECT COUNT(*)
		FROM message_statuses ms
		JOIN messages m2 ON m2.id = ms.message_id
		WHERE m2.conversation_id = c.id AND ms.user_id = ? AND ms.read_at IS NULL
	), 0) AS unread_count,
	t.message_id,
	t.message_client_id,
	t.message_sender_id,
	t.message_content,
	t.message_type,
	t.message_file_url,
	t.message_created_at,
	COALESCE(t.message_created_at, c.created_at) AS last_activity
FROM conversations c
LEFT JOIN ranked t ON t.conversation_id = c.id AND t.rn = 1
WHERE c.user_low = ? OR c.user_high = ?
ORDER BY last_activity DESC, c.id DESC
LIMIT ?
`

	var rows []ConversationSummaryRow
	err := r.db.Raw(query, userID, userID, userID, userID, limit).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
