package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is an account. Rank is the global rank key used for every
// authorization comparison.
type User struct {
	ID string `gorm:"primaryKey;type:varchar(36)" json:"id"`

	UserName     string `gorm:"column:username;uniqueIndex;not null" json:"username"`
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	AvatarURL    string `json:"avatar_url"`
	Rank         string `gorm:"type:varchar(64);not null;default:user" json:"rank"`
	Banned       bool   `gorm:"not null;default:false" json:"banned"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
