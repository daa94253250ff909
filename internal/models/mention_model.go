package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Mention is written once per @mention occurrence at send time.
type Mention struct {
	ID               string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	MessageID        string    `gorm:"type:varchar(36);not null;index" json:"message_id"`
	MentionedUserID  string    `gorm:"type:varchar(36);not null;index" json:"mentioned_user_id"`
	MentioningUserID string    `gorm:"type:varchar(36);not null" json:"mentioning_user_id"`
	CreatedAt        time.Time `json:"created_at"`
}

func (Mention) TableName() string {
	return "mentions"
}

func (m *Mention) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
