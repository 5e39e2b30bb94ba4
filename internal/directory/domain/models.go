package domain

import "time"

// User mirrors the external user directory. This service only ever reads
// it; writes belong to the identity system that owns the table.
type User struct {
	ID            string    `gorm:"primaryKey;type:text"`
	Role          string    `gorm:"type:text;not null;default:member"`
	Email         string    `gorm:"type:text"`
	EmailVerified bool      `gorm:"not null;default:false"`
	Locked        bool      `gorm:"not null;default:false"`
	CreatedAt     time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (User) TableName() string { return "users" }
