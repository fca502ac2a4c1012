package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/amjacademy/messaging-backend/internal/models"
)

type PendingEventRepository struct {
	db *gorm.DB
}

func NewPendingEventRepository(db *gorm.DB) *PendingEventRepository {
	return &PendingEventRepository{db: db}
}

func (r *PendingEventRepository) Enqueue(userID uint, kind string, payload string) error {
	return r.db.Create(&models.PendingEvent{
		UserID:  userID,
		Kind:    kind,
		Payload: payload,
	}).Error
}

func (r *PendingEventRepository) GetPendingForUser(userID uint, limit int) ([]models.PendingEvent, error) {
	var events []models.PendingEvent
	err := r.db.Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *PendingEventRepository) GetRetryable(limit int) ([]models.PendingEvent, error) {
	var events []models.PendingEvent
	err := r.db.Where("next_retry IS NULL OR next_retry <= ?", time.Now()).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *PendingEventRepository) MarkAttempted(id uint, attempts int, nextRetry *time.Time) error {
	now := time.Now()
	return r.db.Model(&models.PendingEvent{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   attempts,
			"next_retry": nextRetry,
			"updated_at": now,
		}).Error
}

func (r *PendingEventRepository) Delete(id uint) error {
	return r.db.Delete(&models.PendingEvent{}, id).Error
}

func (r *PendingEventRepository) DeleteBatch(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Delete(&models.PendingEvent{}, ids).Error
}

func (r *PendingEventRepository) CleanupOld(olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	return r.db.Where("created_at < ?", cutoff).Delete(&models.PendingEvent{}).Error
}
