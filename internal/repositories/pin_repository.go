package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/models"
)

var (
	ErrAlreadyPinned = errors.New("message is already pinned")
	ErrNotPinned     = errors.New("message is not pinned")
)

type PinRepository struct {
	db *gorm.DB
}

func NewPinRepository(db *gorm.DB) *PinRepository {
	return &PinRepository{db: db}
}

// Pin inserts the presence row. The (message, channel) key rejects a second pin.
func (r *PinRepository) Pin(ctx context.Context, pin *models.PinnedMessage) error {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(pin)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyPinned
	}
	return nil
}

func (r *PinRepository) Unpin(ctx context.Context, channelID, messageID string) error {
	res := r.db.WithContext(ctx).
		Where("channel_id = ? AND message_id = ?", channelID, messageID).
		Delete(&models.PinnedMessage{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotPinned
	}
	return nil
}

// ListMessageIDs returns the pinned set of a channel, most recent pin first.
func (r *PinRepository) ListMessageIDs(ctx context.Context, channelID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.PinnedMessage{}).
		Where("channel_id = ?", channelID).
		Order("pinned_at DESC").
		Pluck("message_id", &ids).Error
	return ids, err
}
