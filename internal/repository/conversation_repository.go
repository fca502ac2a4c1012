package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/amjacademy/messaging-backend/internal/models"
)

type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// GetOrCreate resolves the single conversation for the unordered pair. The
// insert races through the unique index on (user_low, user_high): whichever
// transaction wins creates the row and both participants, every other caller
// falls through to the select. No scan, no application-level lock.
func (r *ConversationRepository) GetOrCreate(userA uint, roleA models.ParticipantRole, userB uint, roleB models.ParticipantRole) (*models.Conversation, bool, error) {
	low, high := models.SortPair(userA, userB)

	var created bool
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(`
			INSERT INTO conversations (user_low, user_high, created_at, updated_at)
			VALUES (?, ?, NOW(), NOW())
			ON CONFLICT (user_low, user_high) DO NOTHING
		`, low, high)
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected > 0
		if !created {
			return nil
		}

		var conv models.Conversation
		if err := tx.Where("user_low = ? AND user_high = ?", low, high).First(&conv).Error; err != nil {
			return err
		}
		participants := []models.Participant{
			{ConversationID: conv.ID, UserID: userA, Role: roleA},
			{ConversationID: conv.ID, UserID: userB, Role: roleB},
		}
		return tx.Create(&participants).Error
	})
	if err != nil {
		return nil, false, err
	}

	conv, err := r.FindByPair(userA, userB)
	if err != nil {
		return nil, false, err
	}
	return conv, created, nil
}

func (r *ConversationRepository) FindByID(id uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.Preload("Participants").First(&conv, id).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *ConversationRepository) FindByPair(userA, userB uint) (*models.Conversation, error) {
	low, high := models.SortPair(userA, userB)
	var conv models.Conversation
	err := r.db.Preload("Participants").
		Where("user_low = ? AND user_high = ?", low, high).
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *ConversationRepository) ListForUser(userID uint) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := r.db.Preload("Participants").
		Where("user_low = ? OR user_high = ?", userID, userID).
		Order("updated_at DESC").
		Find(&convs).Error
	return convs, err
}

func (r *ConversationRepository) GetParticipant(conversationID, userID uint) (*models.Participant, error) {
	var p models.Participant
	err := r.db.Where("conversation_id = ? AND user_id = ?", conversationID, userID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ConversationRepository) ListParticipants(conversationID uint) ([]models.Participant, error) {
	var ps []models.Participant
	err := r.db.Where("conversation_id = ?", conversationID).Order("user_id").Find(&ps).Error
	return ps, err
}

// SetTyping overwrites the typing flag with exactly the last client signal.
// There is no server-side expiry; a crashed client leaves the flag stale
// until its next signal.
func (r *ConversationRepository) SetTyping(conversationID, userID uint, isTyping bool) error {
	res := r.db.Model(&models.Participant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Updates(map[string]interface{}{
			"is_typing":  isTyping,
			"updated_at": gorm.Expr("NOW()"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AdvanceReadCursor only ever moves the cursor forward (GREATEST), so
// replays and out-of-order arrivals cannot regress read state.
func (r *ConversationRepository) AdvanceReadCursor(conversationID, userID, lastReadMessageID uint, readAt time.Time) error {
	res := r.db.Exec(`
		UPDATE participants
		SET last_read_message_id = GREATEST(last_read_message_id, ?),
			last_read_at = ?,
			updated_at = NOW()
		WHERE conversation_id = ? AND user_id = ?
	`, lastReadMessageID, readAt, conversationID, userID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// IsNotFound reports whether err is the store's missing-row error.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
