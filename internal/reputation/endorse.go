package reputation

import (
	"context"
	"errors"
	"fmt"

	dbutil "github.com/teealloy/accountd/internal/db"
	"github.com/teealloy/accountd/internal/models"
	"gorm.io/gorm"
)

// Endorse commits a peer-vouching transaction from endorser to endorsee.
//
// Every precondition is checked under row locks on both reputation rows,
// taken in ascending user-ID order, inside the same transaction as the
// mutation. Two concurrent endorsements of the same endorsee therefore
// serialize; the loser observes the winner's edge and fails with
// ErrAlreadyEndorsed.
func (l *Ledger) Endorse(ctx context.Context, endorserID, endorseeID string) error {
	if err := validateUserID(endorserID); err != nil {
		return err
	}
	if err := validateUserID(endorseeID); err != nil {
		return err
	}
	if endorserID == endorseeID {
		return ErrSelfEndorsement
	}

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		endorser, endorsee, errLock := lockEndorsementRows(tx, endorserID, endorseeID)
		if errLock != nil {
			return errLock
		}

		if endorser == nil || endorser.Score < EndorseThreshold {
			return ErrScoreTooLow
		}
		if endorsee == nil {
			return ErrEndorseeUntracked
		}
		if endorser.Score < endorsee.Score {
			return ErrEndorseeOutranks
		}

		var count int64
		errValid := tx.Model(&models.Endorsement{}).
			Where("endorsee_id = ? AND is_valid = ?", endorseeID, true).
			Count(&count).Error
		if errValid != nil {
			return fmt.Errorf("reputation: check valid endorsement: %w", errValid)
		}
		if count > 0 {
			return ErrAlreadyEndorsed
		}

		errPair := tx.Model(&models.Endorsement{}).
			Where("endorser_id = ? AND endorsee_id = ?", endorserID, endorseeID).
			Count(&count).Error
		if errPair != nil {
			return fmt.Errorf("reputation: check endorsement pair: %w", errPair)
		}
		if count > 0 {
			return ErrEndorsementExists
		}

		edge := models.Endorsement{
			EndorserID: endorserID,
			EndorseeID: endorseeID,
			IsValid:    true,
		}
		if errCreate := tx.Create(&edge).Error; errCreate != nil {
			return fmt.Errorf("reputation: create endorsement: %w", errCreate)
		}

		amount := AmountEndorsed
		if endorser.Score > SeniorEndorserThreshold {
			amount = AmountEndorsedBySenior
		}

		_, errApply := l.applyChange(tx, Change{
			UserID:        endorseeID,
			Type:          models.ChangeEndorsedByUser,
			Amount:        amount,
			RelatedUserID: endorserID,
			Description:   fmt.Sprintf("endorsed by user %s", endorserID),
		})
		return errApply
	})
}

// lockEndorsementRows locks both reputation rows in ascending user-ID order
// so concurrent endorse calls cannot deadlock. Missing rows come back nil.
func lockEndorsementRows(tx *gorm.DB, endorserID, endorseeID string) (endorser, endorsee *models.ReputationRecord, err error) {
	first, second := endorserID, endorseeID
	if second < first {
		first, second = second, first
	}

	records := make(map[string]*models.ReputationRecord, 2)
	for _, id := range []string{first, second} {
		var record models.ReputationRecord
		errFind := tx.Clauses(dbutil.LockForUpdate(tx)...).
			Where("user_id = ?", id).
			First(&record).Error
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			continue
		}
		if errFind != nil {
			return nil, nil, fmt.Errorf("reputation: lock record %s: %w", id, errFind)
		}
		records[id] = &record
	}
	return records[endorserID], records[endorseeID], nil
}

// Endorsements returns all endorsement edges touching the user, newest
// first, both as endorser and as endorsee.
func (l *Ledger) Endorsements(ctx context.Context, userID string) ([]models.Endorsement, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	var edges []models.Endorsement
	errFind := l.db.WithContext(ctx).
		Where("endorser_id = ? OR endorsee_id = ?", userID, userID).
		Order("id DESC").
		Find(&edges).Error
	if errFind != nil {
		return nil, fmt.Errorf("reputation: load endorsements: %w", errFind)
	}
	return edges, nil
}
