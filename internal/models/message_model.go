package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message is a channel message. ParentMessageID links a one-level reply.
type Message struct {
	ID              string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ChannelID       string     `gorm:"type:varchar(36);not null;index" json:"channel_id"`
	UserID          string     `gorm:"type:varchar(36);not null;index" json:"user_id"`
	Content         string     `gorm:"type:text;not null" json:"content"`
	ParentMessageID *string    `gorm:"type:varchar(36);index" json:"parent_message_id,omitempty"`
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`
	EditedAt        *time.Time `json:"edited_at,omitempty"`

	Author      *User        `gorm:"foreignKey:UserID" json:"author,omitempty"`
	Attachments []Attachment `gorm:"foreignKey:MessageID" json:"attachments,omitempty"`
}

func (Message) TableName() string {
	return "messages"
}

func (m *Message) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// DirectMessage is scoped to a sender/receiver pair. The receiver flips Read.
type DirectMessage struct {
	ID         string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SenderID   string     `gorm:"type:varchar(36);not null;index:idx_dm_pair" json:"sender_id"`
	ReceiverID string     `gorm:"type:varchar(36);not null;index:idx_dm_pair" json:"receiver_id"`
	Content    string     `gorm:"type:text;not null" json:"content"`
	Read       bool       `gorm:"not null;default:false" json:"read"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
	EditedAt   *time.Time `json:"edited_at,omitempty"`

	Sender      *User        `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Attachments []Attachment `gorm:"foreignKey:DirectMessageID" json:"attachments,omitempty"`
}

func (DirectMessage) TableName() string {
	return "direct_messages"
}

func (m *DirectMessage) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
