package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Server is a community. Roles and memberships are scoped to it.
type Server struct {
	ID      string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name    string `gorm:"type:varchar(100);not null" json:"name"`
	OwnerID string `gorm:"type:varchar(36);not null" json:"owner_id"`

	Roles    []ServerRole `gorm:"foreignKey:ServerID" json:"roles,omitempty"`
	Channels []Channel    `gorm:"foreignKey:ServerID" json:"channels,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (Server) TableName() string {
	return "servers"
}

func (s *Server) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// ServerRole is a per-server role. Rank is a display position, lower first,
// and is unrelated to global power levels.
type ServerRole struct {
	ID       string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ServerID string `gorm:"type:varchar(36);not null;index" json:"server_id"`
	Name     string `gorm:"type:varchar(64);not null" json:"name"`
	Rank     int    `gorm:"not null;default:0" json:"rank"`
	Color    string `gorm:"type:varchar(16)" json:"color"`
	Icon     string `gorm:"type:varchar(16)" json:"icon"`
	RoleKey  string `gorm:"type:varchar(64)" json:"role_key,omitempty"`
}

func (ServerRole) TableName() string {
	return "server_roles"
}

func (r *ServerRole) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// ServerMember links a user to a server with at most one server role.
type ServerMember struct {
	ServerID  string    `gorm:"primaryKey;type:varchar(36)" json:"server_id"`
	UserID    string    `gorm:"primaryKey;type:varchar(36)" json:"user_id"`
	RoleID    *string   `gorm:"type:varchar(36)" json:"role_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	User *User       `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Role *ServerRole `gorm:"foreignKey:RoleID" json:"role,omitempty"`
}

func (ServerMember) TableName() string {
	return "server_members"
}
