package models

import (
	"time"

	"gorm.io/datatypes"
)

// IdentityBinding links a user to an external identity-provider account,
// one binding per user. Re-login overwrites the provider fields in place.
type IdentityBinding struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID        string         `gorm:"type:varchar(36);not null;uniqueIndex"` // Bound user.
	ProviderID    int64          `gorm:"not null;index"`                        // Provider-side numeric account ID.
	ProviderLogin string         `gorm:"type:text;not null"`                    // Provider-side login name.
	Profile       datatypes.JSON `gorm:"type:jsonb"`                            // Raw provider profile snapshot.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // First login timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last login timestamp.
}
