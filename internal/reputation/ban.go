package reputation

import (
	"context"
	"errors"
	"fmt"
	"time"

	dbutil "github.com/teealloy/accountd/internal/db"
	"github.com/teealloy/accountd/internal/models"
	"gorm.io/gorm"
)

// ApplyBan applies an administrative ban to the target and cascades its
// consequences in one transaction:
//
//   - a -100 penalty, which under clamping always drives the score to 0 and
//     thereby schedules deletion;
//   - every still-valid endorsement issued by the target is invalidated and
//     each endorsee loses 30;
//   - the target takes a further -20 endorser-side penalty, logged even
//     though the score is already 0.
func (l *Ledger) ApplyBan(ctx context.Context, actorID, targetID string) error {
	if err := validateUserID(actorID); err != nil {
		return err
	}
	if err := validateUserID(targetID); err != nil {
		return err
	}

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errExists := requireUser(tx, targetID); errExists != nil {
			return errExists
		}

		_, errPenalty := l.applyChange(tx, Change{
			UserID:        targetID,
			Type:          models.ChangePenalty,
			Amount:        AmountBanPenalty,
			RelatedUserID: actorID,
			Cause:         models.CauseAdminBan,
			Description:   fmt.Sprintf("banned by administrator %s", actorID),
		})
		if errPenalty != nil {
			return errPenalty
		}

		if errCascade := l.revokeIssuedEndorsements(tx, targetID); errCascade != nil {
			return errCascade
		}

		_, errOwn := l.applyChange(tx, Change{
			UserID:      targetID,
			Type:        models.ChangePenalty,
			Amount:      AmountEndorserPenalty,
			Cause:       models.CauseEndorserBanned,
			Description: "endorser penalty after ban",
		})
		return errOwn
	})
}

// revokeIssuedEndorsements invalidates every valid endorsement where the
// banned user was the endorser and applies the -30 revocation to each
// endorsee. Edges are processed in creation order for determinism.
func (l *Ledger) revokeIssuedEndorsements(tx *gorm.DB, bannedID string) error {
	var edges []models.Endorsement
	errFind := tx.Where("endorser_id = ? AND is_valid = ?", bannedID, true).
		Order("id ASC").
		Find(&edges).Error
	if errFind != nil {
		return fmt.Errorf("reputation: load issued endorsements: %w", errFind)
	}

	now := time.Now().UTC()
	for _, edge := range edges {
		errInvalidate := tx.Model(&models.Endorsement{}).
			Where("id = ?", edge.ID).
			Updates(map[string]any{
				"is_valid":       false,
				"invalidated_at": now,
			}).Error
		if errInvalidate != nil {
			return fmt.Errorf("reputation: invalidate endorsement %d: %w", edge.ID, errInvalidate)
		}

		_, errApply := l.applyChange(tx, Change{
			UserID:        edge.EndorseeID,
			Type:          models.ChangeEndorsementRevoked,
			Amount:        AmountEndorsementRevoked,
			RelatedUserID: bannedID,
			Cause:         models.CauseEndorserBanned,
			Description:   "endorsement revoked because the endorser was banned",
		})
		if errApply != nil {
			return errApply
		}
	}
	return nil
}

// Unban resets a banned user's score to the fixed baseline and cancels any
// pending deletion. Only valid while the score is exactly 0. Previously
// revoked endorsements are not restored.
func (l *Ledger) Unban(ctx context.Context, actorID, targetID string) error {
	if err := validateUserID(actorID); err != nil {
		return err
	}
	if err := validateUserID(targetID); err != nil {
		return err
	}

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errExists := requireUser(tx, targetID); errExists != nil {
			return errExists
		}

		var record models.ReputationRecord
		errFind := tx.Clauses(dbutil.LockForUpdate(tx)...).
			Where("user_id = ?", targetID).
			First(&record).Error
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return ErrNotBanned
		}
		if errFind != nil {
			return fmt.Errorf("reputation: load record: %w", errFind)
		}
		if record.Score != 0 {
			return ErrNotBanned
		}

		errUpdate := tx.Model(&models.ReputationRecord{}).
			Where("user_id = ?", targetID).
			Updates(map[string]any{
				"score":        UnbanBaseline,
				"last_updated": time.Now().UTC(),
			}).Error
		if errUpdate != nil {
			return fmt.Errorf("reputation: reset score: %w", errUpdate)
		}

		related := actorID
		entry := models.ReputationLogEntry{
			UserID:        targetID,
			ChangeType:    models.ChangeUnbannedByAdmin,
			ChangeAmount:  UnbanBaseline - record.Score,
			OldScore:      record.Score,
			NewScore:      UnbanBaseline,
			RelatedUserID: &related,
			Description:   fmt.Sprintf("unbanned by administrator %s", actorID),
		}
		if errLog := tx.Create(&entry).Error; errLog != nil {
			return fmt.Errorf("reputation: append log: %w", errLog)
		}

		if errCancel := l.deletions.Cancel(tx, targetID); errCancel != nil {
			return fmt.Errorf("reputation: cancel deletion: %w", errCancel)
		}
		return nil
	})
}

// IsBanned reports whether the user is currently banned. Bans are not a
// stored flag: a user counts as banned when the score is 0 and an
// administrative penalty appears in the log.
func (l *Ledger) IsBanned(ctx context.Context, userID string) (bool, error) {
	if err := validateUserID(userID); err != nil {
		return false, err
	}

	var record models.ReputationRecord
	errFind := l.db.WithContext(ctx).Where("user_id = ?", userID).First(&record).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if errFind != nil {
		return false, fmt.Errorf("reputation: load record: %w", errFind)
	}
	if record.Score != 0 {
		return false, nil
	}

	var count int64
	errCount := l.db.WithContext(ctx).Model(&models.ReputationLogEntry{}).
		Where("user_id = ? AND change_type = ? AND cause = ?",
			userID, models.ChangePenalty, models.CauseAdminBan).
		Count(&count).Error
	if errCount != nil {
		return false, fmt.Errorf("reputation: count ban entries: %w", errCount)
	}
	return count > 0, nil
}

// requireUser fails with ErrUserNotFound when the account does not exist.
func requireUser(tx *gorm.DB, userID string) error {
	var count int64
	errCount := tx.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error
	if errCount != nil {
		return fmt.Errorf("reputation: check user: %w", errCount)
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}
