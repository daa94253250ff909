package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/models"
)

type AttachmentRepository struct {
	db *gorm.DB
}

func NewAttachmentRepository(db *gorm.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

// CreateBatch inserts all rows in a single statement.
func (r *AttachmentRepository) CreateBatch(ctx context.Context, attachments []models.Attachment) error {
	if len(attachments) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&attachments).Error
}

func (r *AttachmentRepository) ListByMessage(ctx context.Context, messageID string) ([]models.Attachment, error) {
	var out []models.Attachment
	err := r.db.WithContext(ctx).Where("message_id = ?", messageID).Order("created_at ASC").Find(&out).Error
	return out, err
}

func (r *AttachmentRepository) ListByDirectMessage(ctx context.Context, dmID string) ([]models.Attachment, error) {
	var out []models.Attachment
	err := r.db.WithContext(ctx).Where("direct_message_id = ?", dmID).Order("created_at ASC").Find(&out).Error
	return out, err
}
