package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Attachment is a stored file linked to exactly one of a message or a DM.
type Attachment struct {
	ID              string  `gorm:"primaryKey;type:varchar(36)" json:"id"`
	MessageID       *string `gorm:"type:varchar(36);index" json:"message_id,omitempty"`
	DirectMessageID *string `gorm:"type:varchar(36);index" json:"direct_message_id,omitempty"`
	StoragePath     string  `gorm:"not null" json:"storage_path"`
	FileName        string  `gorm:"not null" json:"file_name"`
	FileType        string  `json:"file_type"`
	FileSize        int64   `json:"file_size"`

	CreatedAt time.Time `json:"created_at"`
}

func (Attachment) TableName() string {
	return "attachments"
}

func (a *Attachment) BeforeCreate(*gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
