package models

import "time"

// PendingDeletion marks an account for delayed reclamation, at most one row
// per user. A row is created when the score reaches 0, removed when the
// score recovers, and consumed by a sweep worker once the due time elapses.
type PendingDeletion struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID      string    `gorm:"type:varchar(36);not null;uniqueIndex"` // User scheduled for deletion.
	MarkedAt    time.Time `gorm:"not null;autoCreateTime"`               // When the score hit zero.
	DeletionDue time.Time `gorm:"not null;index"`                        // MarkedAt plus the grace period.
	IsProcessed bool      `gorm:"not null;default:false"`                // Set after the user was reclaimed.
}
