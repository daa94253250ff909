package models

import "time"

// PinnedMessage marks a message as pinned in a channel. The composite key
// makes pinning a presence set.
type PinnedMessage struct {
	MessageID string    `gorm:"primaryKey;type:varchar(36)" json:"message_id"`
	ChannelID string    `gorm:"primaryKey;type:varchar(36)" json:"channel_id"`
	ServerID  string    `gorm:"type:varchar(36);index" json:"server_id"`
	PinnedBy  string    `gorm:"type:varchar(36);not null" json:"pinned_by"`
	PinnedAt  time.Time `gorm:"autoCreateTime" json:"pinned_at"`
}

func (PinnedMessage) TableName() string {
	return "pinned_messages"
}
