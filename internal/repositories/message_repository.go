package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/models"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

// GetByID loads a message with its author and attachments.
func (r *MessageRepository) GetByID(ctx context.Context, id string) (*models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).
		Preload("Author").
		Preload("Attachments").
		First(&message, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// ListByChannel returns the newest limit messages of a channel in
// chronological order. Authors and attachments are preloaded in one query each.
func (r *MessageRepository) ListByChannel(ctx context.Context, channelID string, limit int) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Order("created_at DESC").
		Limit(limit).
		Preload("Author").
		Preload("Attachments").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	reverse(messages)
	return messages, nil
}

// UpdateContent rewrites content and stamps edited_at.
func (r *MessageRepository) UpdateContent(ctx context.Context, id, content string, editedAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Message{}).
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

// Delete removes a message with its attachments, mentions and pins, and
// returns the storage paths of the removed attachments.
func (r *MessageRepository) Delete(ctx context.Context, id string) ([]string, error) {
	var paths []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Attachment{}).Where("message_id = ?", id).Pluck("storage_path", &paths).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id = ?", id).Delete(&models.Attachment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id = ?", id).Delete(&models.Mention{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id = ?", id).Delete(&models.PinnedMessage{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Message{}, "id = ?", id)
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

// ReplyCounts maps each parent message id in the channel to its number of
// direct replies.
func (r *MessageRepository) ReplyCounts(ctx context.Context, channelID string) (map[string]int, error) {
	var rows []struct {
		ParentMessageID string
		Count           int
	}
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Select("parent_message_id, COUNT(*) AS count").
		Where("channel_id = ? AND parent_message_id IS NOT NULL", channelID).
		Group("parent_message_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.ParentMessageID] = row.Count
	}
	return counts, nil
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
