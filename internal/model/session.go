package model

import "time"

// Session is a persisted dashboard login. The token is the backend access token.
type Session struct {
	ID        string    `gorm:"primaryKey;size:36"`
	UserID    int64     `gorm:"index;not null"`
	Username  string    `gorm:"size:128;not null"`
	Role      string    `gorm:"size:32;not null"`
	Token     string    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time `gorm:"not null"`
}
