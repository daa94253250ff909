package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/models"
)

type DirectMessageRepository struct {
	db *gorm.DB
}

func NewDirectMessageRepository(db *gorm.DB) *DirectMessageRepository {
	return &DirectMessageRepository{db: db}
}

func (r *DirectMessageRepository) Create(ctx context.Context, dm *models.DirectMessage) error {
	return r.db.WithContext(ctx).Create(dm).Error
}

func (r *DirectMessageRepository) GetByID(ctx context.Context, id string) (*models.DirectMessage, error) {
	var dm models.DirectMessage
	err := r.db.WithContext(ctx).
		Preload("Sender").
		Preload("Attachments").
		First(&dm, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &dm, nil
}

// ListConversation returns the newest limit DMs between a and b in
// chronological order.
func (r *DirectMessageRepository) ListConversation(ctx context.Context, a, b string, limit int) ([]models.DirectMessage, error) {
	var dms []models.DirectMessage
	err := r.db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", a, b, b, a).
		Order("created_at DESC").
		Limit(limit).
		Preload("Sender").
		Preload("Attachments").
		Find(&dms).Error
	if err != nil {
		return nil, err
	}
	reverse(dms)
	return dms, nil
}

func (r *DirectMessageRepository) UpdateContent(ctx context.Context, id, content string, editedAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.DirectMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{"content": content, "edited_at": editedAt})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes a DM and its attachments, returning their storage paths.
func (r *DirectMessageRepository) Delete(ctx context.Context, id string) ([]string, error) {
	var paths []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Attachment{}).Where("direct_message_id = ?", id).Pluck("storage_path", &paths).Error; err != nil {
			return err
		}
		if err := tx.Where("direct_message_id = ?", id).Delete(&models.Attachment{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.DirectMessage{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	return paths, err
}

// MarkRead flips every unread DM from sender to receiver and returns how many
// rows changed.
func (r *DirectMessageRepository) MarkRead(ctx context.Context, receiverID, senderID string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.DirectMessage{}).
		Where("receiver_id = ? AND sender_id = ? AND read = ?", receiverID, senderID, false).
		Update("read", true)
	return res.RowsAffected, res.Error
}
