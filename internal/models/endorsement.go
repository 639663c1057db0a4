package models

import "time"

// Endorsement is a directed vouching edge from endorser to endorsee.
//
// At most one valid endorsement may exist per endorsee across all endorsers,
// and a given endorser may hold at most one edge (valid or invalidated) per
// endorsee. Edges are invalidated when the endorser is banned, never deleted
// while both users exist.
type Endorsement struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	EndorserID string `gorm:"type:varchar(36);not null;uniqueIndex:idx_endorsement_pair;index"` // Vouching user.
	EndorseeID string `gorm:"type:varchar(36);not null;uniqueIndex:idx_endorsement_pair;index"` // Vouched-for user.

	IsValid       bool       `gorm:"not null;default:true"` // Whether the endorsement is still active.
	InvalidatedAt *time.Time // When the edge was invalidated, nil while valid.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
