package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/models"
)

type MentionRepository struct {
	db *gorm.DB
}

func NewMentionRepository(db *gorm.DB) *MentionRepository {
	return &MentionRepository{db: db}
}

// CreateBatch stores one row per mention occurrence.
func (r *MentionRepository) CreateBatch(ctx context.Context, mentions []models.Mention) error {
	if len(mentions) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&mentions).Error
}

// ListForUser returns the newest mentions of userID.
func (r *MentionRepository) ListForUser(ctx context.Context, userID string, limit int) ([]models.Mention, error) {
	var out []models.Mention
	err := r.db.WithContext(ctx).
		Where("mentioned_user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
