package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Channel belongs to a server. An empty AllowedWriterRoles means anyone with
// read access may post.
type Channel struct {
	ID                 string   `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ServerID           string   `gorm:"type:varchar(36);not null;index" json:"server_id"`
	Name               string   `gorm:"type:varchar(100);not null" json:"name"`
	AllowedWriterRoles []string `gorm:"serializer:json;type:text" json:"allowed_writer_roles,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (Channel) TableName() string {
	return "channels"
}

func (c *Channel) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
