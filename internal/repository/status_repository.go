package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/amjacademy/messaging-backend/internal/models"
)

type StatusRepository struct {
	db *gorm.DB
}

func NewStatusRepository(db *gorm.DB) *StatusRepository {
	return &StatusRepository{db: db}
}

func (r *StatusRepository) Find(messageID, userID uint) (*models.MessageStatus, error) {
	var status models.MessageStatus
	err := r.db.Where("message_id = ? AND user_id = ?", messageID, userID).First(&status).Error
	if err != nil {
		return nil, err
	}
	return &status, nil
}

func (r *StatusRepository) ListForMessage(messageID uint) ([]models.MessageStatus, error) {
	var statuses []models.MessageStatus
	err := r.db.Where("message_id = ?", messageID).Order("user_id").Find(&statuses).Error
	return statuses, err
}

// MarkDelivered sets delivered_at once. COALESCE keeps the original
// timestamp on replays, so the transition is monotonic and idempotent.
func (r *StatusRepository) MarkDelivered(messageID, userID uint, at time.Time) (bool, error) {
	res := r.db.Exec(`
		UPDATE message_statuses
		SET delivered_at = COALESCE(delivered_at, ?)
		WHERE message_id = ? AND user_id = ?
	`, at, messageID, userID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkReadUpTo applies the cursor read policy: every still-unread status row
// of user in the conversation at or before the cursor message (in
// (created_at, id) order) flips to read, delivered_at filling in alongside
// since read implies delivered. Rows already read are untouched, which keeps
// the call idempotent. The cursor message must exist in the conversation.
func (r *StatusRepository) MarkReadUpTo(conversationID, userID, cursorMessageID uint, at time.Time) ([]uint, error) {
	var cursor models.Message
	err := r.db.Select("id", "created_at", "conversation_id").First(&cursor, cursorMessageID).Error
	if err != nil {
		return nil, err
	}
	if cursor.ConversationID != conversationID {
		return nil, gorm.ErrRecordNotFound
	}

	var readIDs []uint
	err = r.db.Raw(`
		UPDATE message_statuses ms
		SET read_at = ?,
			delivered_at = COALESCE(ms.delivered_at, ?)
		FROM messages m
		WHERE m.id = ms.message_id
			AND m.conversation_id = ?
			AND ms.user_id = ?
			AND ms.read_at IS NULL
			AND (m.created_at < ? OR (m.created_at = ? AND m.id <= ?))
		RETURNING ms.message_id
	`, at, at, conversationID, userID, cursor.CreatedAt, cursor.CreatedAt, cursor.ID).
		Scan(&readIDs).Error
	if err != nil {
		return nil, err
	}
	return readIDs, nil
}

// CountUnread is a single aggregate; never loop per message.
func (r *StatusRepository) CountUnread(conversationID, userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.MessageStatus{}).
		Joins("JOIN messages ON messages.id = message_statuses.message_id").
		Where("messages.conversation_id = ? AND message_statuses.user_id = ? AND message_statuses.read_at IS NULL",
			conversationID, userID).
		Count(&count).Error
	return count, err
}

func (r *StatusRepository) CountUnreadByConversation(userID uint) (map[uint]int64, error) {
	type row struct {
		ConversationID uint  `gorm:"column:conversation_id"`
		Count          int64 `gorm:"column:count"`
	}
	var rows []row
	err := r.db.Model(&models.MessageStatus{}).
		Select("messages.conversation_id AS conversation_id, COUNT(*) AS count").
		Joins("JOIN messages ON messages.id = message_statuses.message_id").
		Where("message_statuses.user_id = ? AND message_statuses.read_at IS NULL", userID).
		Group("messages.conversation_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[uint]int64, len(rows))
	for _, r := range rows {
		counts[r.ConversationID] = r.Count
	}
	return counts, nil
}

func (r *StatusRepository) CountUnreadTotal(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.MessageStatus{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Count(&count).Error
	return count, err
}
