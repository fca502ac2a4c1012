package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/amjacademy/messaging-backend/internal/models"
)

type PresenceRepository struct {
	db *gorm.DB
}

func NewPresenceRepository(db *gorm.DB) *PresenceRepository {
	return &PresenceRepository{db: db}
}

// Heartbeat upserts the user's last_seen_at. The row is overwritten every
// beat; there is no history and no sweep.
func (r *PresenceRepository) Heartbeat(userID uint, at time.Time) error {
	return r.db.Exec(`
		INSERT INTO presences (user_id, last_seen_at, updated_at)
		VALUES (?, ?, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET last_seen_at = EXCLUDED.last_seen_at,
			updated_at = NOW()
	`, userID, at).Error
}

func (r *PresenceRepository) Find(userID uint) (*models.Presence, error) {
	var p models.Presence
	err := r.db.Where("user_id = ?", userID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}
