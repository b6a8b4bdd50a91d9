package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// SystemRole represents a user's system-wide role
type SystemRole string

const (
	SystemRoleAdmin SystemRole = "admin"
	SystemRoleUser  SystemRole = "user"
)

// User is a registered account. Guests never get a User row.
type User struct {
	ID           uint           `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string         `json:"-"`
	SystemRole   SystemRole     `gorm:"type:varchar(20);default:'user'" json:"system_role"`
}

// DisplayName is the local part of the account email.
func (u User) DisplayName() string {
	name, _, _ := strings.Cut(u.Email, "@")
	if name == "" {
		return u.Email
	}
	return name
}
