package reputation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	dbutil "github.com/teealloy/accountd/internal/db"
	"github.com/teealloy/accountd/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeletionQueue is the scheduled-reclamation collaborator. Both calls are
// idempotent and run inside the ledger's transaction so score, log, and
// queue state are never observed inconsistent with each other.
type DeletionQueue interface {
	Schedule(tx *gorm.DB, userID string) error
	Cancel(tx *gorm.DB, userID string) error
}

// Ledger owns reputation scores and the append-only change log. All score
// mutation flows through ApplyChange, which serializes concurrent changes
// for one user via an exclusive row lock; there is no in-process lock
// because correctness must hold across processes sharing one database.
type Ledger struct {
	db        *gorm.DB
	deletions DeletionQueue
}

// NewLedger constructs a Ledger.
func NewLedger(conn *gorm.DB, deletions DeletionQueue) *Ledger {
	return &Ledger{db: conn, deletions: deletions}
}

// ApplyChange applies one reputation change and returns the new score.
//
// When tx is non-nil the change joins the caller's transaction; otherwise a
// new transaction is opened. Either way the score update, the log entry,
// and the deletion-queue side effect commit or roll back together.
func (l *Ledger) ApplyChange(ctx context.Context, tx *gorm.DB, ch Change) (int, error) {
	if err := validateUserID(ch.UserID); err != nil {
		return 0, err
	}
	if ch.RelatedUserID != "" {
		if err := validateUserID(ch.RelatedUserID); err != nil {
			return 0, err
		}
	}

	if tx != nil {
		return l.applyChange(tx, ch)
	}

	var newScore int
	errTx := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		score, errApply := l.applyChange(tx, ch)
		if errApply != nil {
			return errApply
		}
		newScore = score
		return nil
	})
	if errTx != nil {
		return 0, errTx
	}
	return newScore, nil
}

// lockRecord returns the user's reputation row under an exclusive lock,
// inserting it first when missing. FOR UPDATE on a missing row locks
// nothing, so the insert must come first: two concurrent first-ever
// changes then serialize on the row instead of racing to create it.
func lockRecord(tx *gorm.DB, userID string) (models.ReputationRecord, error) {
	seed := models.ReputationRecord{UserID: userID}
	errSeed := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&seed).Error
	if errSeed != nil {
		return models.ReputationRecord{}, fmt.Errorf("reputation: ensure record: %w", errSeed)
	}

	var record models.ReputationRecord
	errFind := tx.Clauses(dbutil.LockForUpdate(tx)...).
		Where("user_id = ?", userID).
		First(&record).Error
	if errFind != nil {
		return models.ReputationRecord{}, fmt.Errorf("reputation: load record: %w", errFind)
	}
	return record, nil
}

// applyChange performs the locked read-modify-write inside tx.
func (l *Ledger) applyChange(tx *gorm.DB, ch Change) (int, error) {
	record, errLock := lockRecord(tx, ch.UserID)
	if errLock != nil {
		return 0, errLock
	}

	oldScore := record.Score
	isContributor := record.IsContributor
	hasIdentityLogin := record.HasIdentityLogin

	newScore := clampScore(oldScore + ch.Amount)

	// Flags are sticky: set by their change kind, never cleared here.
	switch ch.Type {
	case models.ChangeIdentityLogin:
		hasIdentityLogin = true
	case models.ChangeVerifiedContributor:
		isContributor = true
	}

	errUpdate := tx.Model(&models.ReputationRecord{}).
		Where("user_id = ?", ch.UserID).
		Updates(map[string]any{
			"score":              newScore,
			"is_contributor":     isContributor,
			"has_identity_login": hasIdentityLogin,
			"last_updated":       time.Now().UTC(),
		}).Error
	if errUpdate != nil {
		return 0, fmt.Errorf("reputation: update record: %w", errUpdate)
	}

	entry := models.ReputationLogEntry{
		UserID:       ch.UserID,
		ChangeType:   ch.Type,
		ChangeAmount: ch.Amount,
		OldScore:     oldScore,
		NewScore:     newScore,
		Cause:        ch.Cause,
		Description:  ch.Description,
	}
	if ch.RelatedUserID != "" {
		related := ch.RelatedUserID
		entry.RelatedUserID = &related
	}
	if errLog := tx.Create(&entry).Error; errLog != nil {
		return 0, fmt.Errorf("reputation: append log: %w", errLog)
	}

	if newScore == 0 {
		if errSchedule := l.deletions.Schedule(tx, ch.UserID); errSchedule != nil {
			return 0, fmt.Errorf("reputation: schedule deletion: %w", errSchedule)
		}
	} else {
		if errCancel := l.deletions.Cancel(tx, ch.UserID); errCancel != nil {
			return 0, fmt.Errorf("reputation: cancel deletion: %w", errCancel)
		}
	}

	return newScore, nil
}

// HasChange reports whether the user's log already contains an entry of the
// given kind. This is the dedup check behind one-shot bonuses; call it
// inside the same transaction as the grant.
func (l *Ledger) HasChange(tx *gorm.DB, userID string, changeType models.ChangeType) (bool, error) {
	var count int64
	errCount := tx.Model(&models.ReputationLogEntry{}).
		Where("user_id = ? AND change_type = ?", userID, changeType).
		Count(&count).Error
	if errCount != nil {
		return false, fmt.Errorf("reputation: count log entries: %w", errCount)
	}
	return count > 0, nil
}

// GrantFirst2FABonus awards the one-time first-2FA bonus. A no-op when the
// bonus was granted before.
func (l *Ledger) GrantFirst2FABonus(ctx context.Context, userID string) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Take the row lock before the dedup check so two concurrent
		// first verifications serialize instead of both granting.
		if _, errLock := lockRecord(tx, userID); errLock != nil {
			return errLock
		}
		granted, errCheck := l.HasChange(tx, userID, models.ChangeFirst2FA)
		if errCheck != nil {
			return errCheck
		}
		if granted {
			return nil
		}
		_, errApply := l.applyChange(tx, Change{
			UserID:      userID,
			Type:        models.ChangeFirst2FA,
			Amount:      AmountFirst2FA,
			Description: "first successful two-factor verification",
		})
		return errApply
	})
}

// Get returns the user's reputation record. A missing record is returned as
// found=false and is equivalent to score 0 with both flags unset.
func (l *Ledger) Get(ctx context.Context, userID string) (models.ReputationRecord, bool, error) {
	if err := validateUserID(userID); err != nil {
		return models.ReputationRecord{}, false, err
	}
	var record models.ReputationRecord
	errFind := l.db.WithContext(ctx).Where("user_id = ?", userID).First(&record).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return models.ReputationRecord{UserID: userID}, false, nil
	}
	if errFind != nil {
		return models.ReputationRecord{}, false, fmt.Errorf("reputation: load record: %w", errFind)
	}
	return record, true, nil
}

// Log returns the user's change log, oldest first.
func (l *Ledger) Log(ctx context.Context, userID string) ([]models.ReputationLogEntry, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	var entries []models.ReputationLogEntry
	errFind := l.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&entries).Error
	if errFind != nil {
		return nil, fmt.Errorf("reputation: load log: %w", errFind)
	}
	return entries, nil
}

// validateUserID rejects malformed user identifiers before any mutation.
func validateUserID(userID string) error {
	if _, err := uuid.Parse(userID); err != nil {
		return ErrInvalidUserID
	}
	return nil
}
