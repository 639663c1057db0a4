package deletion

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	dbutil "github.com/teealloy/accountd/internal/db"
	"github.com/teealloy/accountd/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GracePeriod is how long a zero-score account stays reclaimable-but-alive
// before a sweep may delete it.
const GracePeriod = 7 * 24 * time.Hour

// Store maintains the due-queue of zero-score accounts and reclaims them
// once due. Schedule and Cancel join the caller's ledger transaction;
// ReclaimDue runs out-of-band from one or more sweep workers.
type Store struct {
	db *gorm.DB
}

// NewStore constructs a Store.
func NewStore(conn *gorm.DB) *Store {
	return &Store{db: conn}
}

// Schedule inserts a pending deletion due after the grace period. Inserting
// for an already-scheduled user is a no-op that preserves the original due
// date.
func (s *Store) Schedule(tx *gorm.DB, userID string) error {
	now := time.Now().UTC()
	row := models.PendingDeletion{
		UserID:      userID,
		MarkedAt:    now,
		DeletionDue: now.Add(GracePeriod),
	}
	errCreate := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&row).Error
	if errCreate != nil {
		return fmt.Errorf("deletion: schedule %s: %w", userID, errCreate)
	}
	return nil
}

// Cancel removes any pending deletion for the user. A no-op when none is
// scheduled.
func (s *Store) Cancel(tx *gorm.DB, userID string) error {
	errDelete := tx.Where("user_id = ? AND is_processed = ?", userID, false).
		Delete(&models.PendingDeletion{}).Error
	if errDelete != nil {
		return fmt.Errorf("deletion: cancel %s: %w", userID, errDelete)
	}
	return nil
}

// Pending returns the unprocessed pending deletion for the user, if any.
func (s *Store) Pending(ctx context.Context, userID string) (*models.PendingDeletion, error) {
	var rows []models.PendingDeletion
	errFind := s.db.WithContext(ctx).
		Where("user_id = ? AND is_processed = ?", userID, false).
		Limit(1).
		Find(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("deletion: load pending %s: %w", userID, errFind)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// ReclaimDue sweeps every due, unprocessed row and hard-deletes the
// corresponding accounts. Due rows are claimed with a skip-locked read so
// parallel sweep workers partition the due set instead of queuing behind
// each other. Each user is reclaimed in its own savepoint: one failure is
// logged and skipped, leaving that row unprocessed for the next sweep.
// Returns the number of accounts reclaimed.
func (s *Store) ReclaimDue(ctx context.Context) (int, error) {
	reclaimed := 0
	errSweep := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var due []models.PendingDeletion
		errFind := tx.Clauses(dbutil.LockForUpdateSkipLocked(tx)...).
			Where("deletion_due <= ? AND is_processed = ?", time.Now().UTC(), false).
			Order("deletion_due ASC, id ASC").
			Find(&due).Error
		if errFind != nil {
			return fmt.Errorf("deletion: claim due rows: %w", errFind)
		}

		for _, row := range due {
			errUser := tx.Transaction(func(sub *gorm.DB) error {
				if errPurge := purgeUser(sub, row.UserID); errPurge != nil {
					return errPurge
				}
				return sub.Model(&models.PendingDeletion{}).
					Where("id = ?", row.ID).
					Update("is_processed", true).Error
			})
			if errUser != nil {
				log.WithError(errUser).WithField("user_id", row.UserID).
					Warn("reclaim failed, skipping user")
				continue
			}
			reclaimed++
			log.WithField("user_id", row.UserID).Info("reclaimed expired account")
		}
		return nil
	})
	if errSweep != nil {
		return reclaimed, errSweep
	}
	return reclaimed, nil
}

// purgeUser hard-deletes the account and every dependent row, children
// first so the statements hold under foreign-key enforcement. Log entries
// of other users that merely reference this one are kept for their audit
// trail.
func purgeUser(tx *gorm.DB, userID string) error {
	steps := []struct {
		name  string
		apply func() error
	}{
		{"credentials", func() error {
			return tx.Where("user_id = ?", userID).Delete(&models.EncryptedCredential{}).Error
		}},
		{"identity binding", func() error {
			return tx.Where("user_id = ?", userID).Delete(&models.IdentityBinding{}).Error
		}},
		{"endorsements", func() error {
			return tx.Where("endorser_id = ? OR endorsee_id = ?", userID, userID).
				Delete(&models.Endorsement{}).Error
		}},
		{"reputation log", func() error {
			return tx.Where("user_id = ?", userID).Delete(&models.ReputationLogEntry{}).Error
		}},
		{"reputation record", func() error {
			return tx.Where("user_id = ?", userID).Delete(&models.ReputationRecord{}).Error
		}},
		{"user", func() error {
			return tx.Where("id = ?", userID).Delete(&models.User{}).Error
		}},
	}
	for _, step := range steps {
		if err := step.apply(); err != nil {
			return fmt.Errorf("deletion: purge %s for %s: %w", step.name, userID, err)
		}
	}
	return nil
}
