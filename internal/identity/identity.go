// Package identity handles the reputation consequences of identity-provider
// logins. The OAuth exchange itself is a collaborator concern; this package
// receives the already-verified provider profile.
package identity

import (
	"context"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/teealloy/accountd/internal/models"
	"github.com/teealloy/accountd/internal/reputation"
)

// Profile is the provider-side account snapshot delivered after a
// successful identity-provider login.
type Profile struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// Service binds provider identities to accounts and applies the login and
// contributor reputation changes.
type Service struct {
	db     *gorm.DB
	ledger *reputation.Ledger
	roster ContributorRoster
}

// NewService constructs an identity Service.
func NewService(conn *gorm.DB, ledger *reputation.Ledger, roster ContributorRoster) *Service {
	return &Service{db: conn, ledger: ledger, roster: roster}
}

// OnLogin records a successful identity-provider login: the binding is
// upserted and the identity-login reputation change applied in one
// transaction. When the roster confirms the login as a project contributor
// the verified-contributor change is applied as well; a roster failure is
// logged and skipped, because the roster is an external rate-limited
// service and contributor status can be granted on a later login.
func (s *Service) OnLogin(ctx context.Context, userID string, profile Profile) error {
	raw, errMarshal := json.Marshal(profile)
	if errMarshal != nil {
		return fmt.Errorf("identity: marshal profile: %w", errMarshal)
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		binding := models.IdentityBinding{
			UserID:        userID,
			ProviderID:    profile.ID,
			ProviderLogin: profile.Login,
			Profile:       datatypes.JSON(raw),
		}
		errUpsert := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"provider_id", "provider_login", "profile", "updated_at"}),
		}).Create(&binding).Error
		if errUpsert != nil {
			return fmt.Errorf("identity: upsert binding: %w", errUpsert)
		}

		_, errApply := s.ledger.ApplyChange(ctx, tx, reputation.Change{
			UserID:      userID,
			Type:        models.ChangeIdentityLogin,
			Amount:      reputation.AmountIdentityLogin,
			Description: fmt.Sprintf("identity-provider login: %s", profile.Login),
		})
		return errApply
	})
	if errTx != nil {
		return errTx
	}

	isContributor, errRoster := s.roster.IsContributor(ctx, profile.Login)
	if errRoster != nil {
		log.WithError(errRoster).WithField("login", profile.Login).
			Warn("contributor roster check failed")
		return nil
	}
	if !isContributor {
		return nil
	}

	_, errApply := s.ledger.ApplyChange(ctx, nil, reputation.Change{
		UserID:      userID,
		Type:        models.ChangeVerifiedContributor,
		Amount:      reputation.AmountVerifiedContributor,
		Description: fmt.Sprintf("verified project contributor: %s", profile.Login),
	})
	return errApply
}

// Binding returns the user's identity binding, nil when absent.
func (s *Service) Binding(ctx context.Context, userID string) (*models.IdentityBinding, error) {
	var rows []models.IdentityBinding
	errFind := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Limit(1).
		Find(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("identity: load binding: %w", errFind)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
