package models

import "time"

// User represents an end-user account stored in the database.
//
// The trust core never mutates profile fields directly; they belong to the
// auth/profile surface. Accounts are removed only through the deletion
// queue, which cascades to every dependent row.
type User struct {
	ID string `gorm:"type:varchar(36);primaryKey"` // UUID primary key.

	Username string `gorm:"type:text;not null;uniqueIndex"` // Unique login name.
	Nickname string `gorm:"type:text"`                      // Display name.
	Password string `gorm:"type:text;not null"`             // Hashed password.

	IsAdmin      bool `gorm:"not null;default:false"`                       // Administrative privileges flag.
	Is2FAEnabled bool `gorm:"column:is_2fa_enabled;not null;default:false"` // Whether a TOTP credential is enrolled.

	LastLogin *time.Time // Last successful authentication.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
