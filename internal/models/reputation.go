package models

import "time"

// ChangeType enumerates the recognized reputation change kinds.
type ChangeType string

// Reputation change kinds. The set is extensible; unknown kinds apply their
// amount without flag side effects.
const (
	ChangeInitial             ChangeType = "initial"                // Account creation marker, amount 0.
	ChangeIdentityLogin       ChangeType = "identity_login"         // Identity-provider login, +30.
	ChangeVerifiedContributor ChangeType = "verified_contributor"   // Project contributor, +100.
	ChangeEndorsedByUser      ChangeType = "endorsed_by_user"       // Peer endorsement, +30 or +50.
	ChangeEndorsementRevoked  ChangeType = "endorsement_revoked"    // Endorser was banned, -30.
	ChangePenalty             ChangeType = "penalty"                // Administrative or cascade penalty.
	ChangeUnbannedByAdmin     ChangeType = "unbanned_by_admin"      // Reset to the unban baseline.
	ChangeFirst2FA            ChangeType = "first_2fa_verification" // First successful 2FA, +10, once.
)

// ChangeCause enumerates machine-readable reasons attached to log entries.
// It replaces free-text description matching when deriving "is banned".
type ChangeCause string

// Causes recorded on penalty-type log entries.
const (
	CauseNone           ChangeCause = ""
	CauseAdminBan       ChangeCause = "admin_ban"       // Penalty issued by an administrator.
	CauseEndorserBanned ChangeCause = "endorser_banned" // Endorser-side consequence of a ban.
)

// ReputationRecord holds a user's current trust score, one row per user.
//
// A missing row is equivalent to score 0 with both flags false; the row is
// created lazily on the first score-affecting event. Score is always clamped
// to [0,100] and both boolean flags are sticky once set.
type ReputationRecord struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID string `gorm:"type:varchar(36);not null;uniqueIndex"` // Owning user.
	Score  int    `gorm:"not null;default:0"`                    // Current score in [0,100].

	IsContributor    bool `gorm:"not null;default:false"` // Verified project contributor.
	HasIdentityLogin bool `gorm:"not null;default:false"` // Has completed an identity-provider login.

	LastUpdated time.Time `gorm:"not null;autoUpdateTime"` // Last score change.
	CreatedAt   time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// ReputationLogEntry is the append-only audit trail, one row per score
// change. Entries are never mutated or deleted while the user exists; they
// are also the sole record used to detect one-shot events such as the
// first-2FA bonus.
type ReputationLogEntry struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID        string      `gorm:"type:varchar(36);not null;index"`      // Affected user.
	ChangeType    ChangeType  `gorm:"type:varchar(64);not null;index"`      // Change kind.
	ChangeAmount  int         `gorm:"not null"`                             // Signed requested delta.
	OldScore      int         `gorm:"not null"`                             // Score before the change.
	NewScore      int         `gorm:"not null"`                             // Score after clamping.
	RelatedUserID *string     `gorm:"type:varchar(36)"`                     // Counterpart in endorsement/ban events.
	Cause         ChangeCause `gorm:"type:varchar(32);not null;default:''"` // Machine-readable reason.
	Description   string      `gorm:"type:text"`                            // Human-readable context.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Event timestamp.
}
