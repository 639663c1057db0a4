package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/teealloy/accountd/internal/models"
	"github.com/teealloy/accountd/internal/reputation"
	"github.com/teealloy/accountd/internal/security"
)

// TokenWindow is the validity window for game-session tokens: records older
// than this are not considered during authentication.
const TokenWindow = 90 * 24 * time.Hour

// minPresentedTokenLength rejects obviously malformed bearer tokens before
// scanning any ciphertext.
const minPresentedTokenLength = 32

// Backup code set shape.
const (
	backupCodeCount     = 10
	backupCodeLength    = 10
	backupCodeDelimiter = ","
)

// Service implements the credential flows on top of the verifier: game
// bearer tokens, TOTP seeds, and backup-code sets. All three store their
// secret through the same encrypt-with-per-record-salt scheme and
// authenticate through Match.
type Service struct {
	db     *gorm.DB
	cipher *security.Cipher
	ledger *reputation.Ledger
	issuer string
}

// NewService constructs a credential Service. The issuer names this system
// in TOTP provisioning URIs.
func NewService(conn *gorm.DB, cipher *security.Cipher, ledger *reputation.Ledger, issuer string) *Service {
	return &Service{db: conn, cipher: cipher, ledger: ledger, issuer: issuer}
}

// TOTPEnrollment is the result of enrolling a TOTP credential. The secret
// and backup codes appear here once and are never recoverable in plaintext
// afterwards except by decrypt-and-compare.
type TOTPEnrollment struct {
	Secret      string   // Base32 TOTP seed.
	URL         string   // otpauth:// provisioning URI.
	BackupCodes []string // One-time recovery codes.
}

// IssueGameToken generates a fresh bearer token for the user, stores it
// encrypted under a fresh salt, and returns the plaintext. Reissuing
// replaces any previous token.
func (s *Service) IssueGameToken(ctx context.Context, userID string) (string, error) {
	token, err := security.GenerateToken(security.GameTokenLength)
	if err != nil {
		return "", err
	}
	if errStore := s.storeCredential(ctx, userID, models.CredentialGameToken, token); errStore != nil {
		return "", errStore
	}
	log.WithField("user_id", userID).Info("game token issued")
	return token, nil
}

// RevokeGameToken deletes the user's game token. A no-op when none exists.
func (s *Service) RevokeGameToken(ctx context.Context, userID string) error {
	errDelete := s.db.WithContext(ctx).
		Where("user_id = ? AND kind = ?", userID, models.CredentialGameToken).
		Delete(&models.EncryptedCredential{}).Error
	if errDelete != nil {
		return fmt.Errorf("credential: revoke game token: %w", errDelete)
	}
	return nil
}

// AuthenticateGameToken resolves a presented bearer token to its owning
// user by scanning all live tokens with decrypt-and-compare. Candidates are
// limited to records created within TokenWindow and scanned oldest first
// for determinism. A nil user with a nil error means no match.
func (s *Service) AuthenticateGameToken(ctx context.Context, token string) (*models.User, error) {
	if len(strings.TrimSpace(token)) < minPresentedTokenLength {
		return nil, nil
	}

	var candidates []models.EncryptedCredential
	errFind := s.db.WithContext(ctx).
		Where("kind = ? AND salt <> ? AND created_at > ?",
			models.CredentialGameToken, "", time.Now().UTC().Add(-TokenWindow)).
		Order("created_at ASC, id ASC").
		Find(&candidates).Error
	if errFind != nil {
		return nil, fmt.Errorf("credential: load token candidates: %w", errFind)
	}

	matched := Match(s.cipher, candidates, token)
	if matched == nil {
		return nil, nil
	}

	var user models.User
	errUser := s.db.WithContext(ctx).Where("id = ?", matched.UserID).First(&user).Error
	if errors.Is(errUser, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if errUser != nil {
		return nil, fmt.Errorf("credential: load token owner: %w", errUser)
	}

	if errTouch := s.touch(ctx, matched.ID, matched.UserID); errTouch != nil {
		log.WithError(errTouch).WithField("user_id", matched.UserID).
			Warn("failed to update token usage timestamps")
	}
	return &user, nil
}

// EnrollTOTP creates a TOTP credential and a backup-code set for the user,
// replacing any previous enrollment, and flags the account as 2FA-enabled.
func (s *Service) EnrollTOTP(ctx context.Context, userID, username string) (*TOTPEnrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: username,
	})
	if err != nil {
		return nil, fmt.Errorf("credential: generate totp key: %w", err)
	}

	codes, errCodes := security.GenerateBackupCodes(backupCodeCount, backupCodeLength)
	if errCodes != nil {
		return nil, errCodes
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errSecret := s.upsertCredential(tx, userID, models.CredentialTOTPSecret, key.Secret()); errSecret != nil {
			return errSecret
		}
		if errBackup := s.upsertCredential(tx, userID, models.CredentialBackupCodes,
			strings.Join(codes, backupCodeDelimiter)); errBackup != nil {
			return errBackup
		}
		return tx.Model(&models.User{}).
			Where("id = ?", userID).
			Update("is_2fa_enabled", true).Error
	})
	if errTx != nil {
		return nil, errTx
	}

	log.WithField("user_id", userID).Info("totp credential enrolled")
	return &TOTPEnrollment{Secret: key.Secret(), URL: key.URL(), BackupCodes: codes}, nil
}

// DisableTOTP removes the TOTP and backup-code credentials and clears the
// 2FA flag.
func (s *Service) DisableTOTP(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		errDelete := tx.Where("user_id = ? AND kind IN ?", userID,
			[]models.CredentialKind{models.CredentialTOTPSecret, models.CredentialBackupCodes}).
			Delete(&models.EncryptedCredential{}).Error
		if errDelete != nil {
			return fmt.Errorf("credential: delete totp credentials: %w", errDelete)
		}
		return tx.Model(&models.User{}).
			Where("id = ?", userID).
			Update("is_2fa_enabled", false).Error
	})
}

// VerifyTOTP checks a time-step code against the user's stored seed. The
// seed is recovered by decrypting the credential with its own salt; the
// standard TOTP check runs on the recovered secret. A successful first
// verification grants the one-time reputation bonus.
func (s *Service) VerifyTOTP(ctx context.Context, userID, code string) (bool, error) {
	stored, err := s.loadCredential(ctx, userID, models.CredentialTOTPSecret)
	if err != nil {
		return false, err
	}
	if stored == nil {
		return false, nil
	}

	secret, errDecrypt := s.cipher.Decrypt(stored.Ciphertext, stored.Salt)
	if errDecrypt != nil {
		log.WithError(errDecrypt).WithField("user_id", userID).
			Warn("stored totp secret failed to decrypt")
		return false, nil
	}

	if !totp.Validate(strings.TrimSpace(code), secret) {
		return false, nil
	}

	s.afterSecondFactor(ctx, stored.ID, userID)
	return true, nil
}

// VerifyBackupCode checks a presented code against the user's backup-code
// set. A hit consumes that single code: the remainder is re-encrypted under
// the record's existing salt and written back.
func (s *Service) VerifyBackupCode(ctx context.Context, userID, code string) (bool, error) {
	// An exhausted set decrypts to an empty string, which splits into one
	// empty entry; an unguarded empty input would match it.
	presented := strings.TrimSpace(code)
	if presented == "" {
		return false, nil
	}

	stored, err := s.loadCredential(ctx, userID, models.CredentialBackupCodes)
	if err != nil {
		return false, err
	}
	if stored == nil {
		return false, nil
	}

	plaintext, errDecrypt := s.cipher.Decrypt(stored.Ciphertext, stored.Salt)
	if errDecrypt != nil {
		log.WithError(errDecrypt).WithField("user_id", userID).
			Warn("stored backup codes failed to decrypt")
		return false, nil
	}

	codes := strings.Split(plaintext, backupCodeDelimiter)
	hit := -1
	for i, candidate := range codes {
		trimmed := strings.TrimSpace(candidate)
		if trimmed == "" {
			continue
		}
		if equalConstantTime(trimmed, presented) {
			hit = i
			break
		}
	}
	if hit < 0 {
		return false, nil
	}

	remaining := append(append([]string{}, codes[:hit]...), codes[hit+1:]...)
	sealed, _, errEncrypt := s.cipher.Encrypt(strings.Join(remaining, backupCodeDelimiter), stored.Salt)
	if errEncrypt != nil {
		return false, errEncrypt
	}
	errUpdate := s.db.WithContext(ctx).Model(&models.EncryptedCredential{}).
		Where("id = ?", stored.ID).
		Update("ciphertext", sealed).Error
	if errUpdate != nil {
		return false, fmt.Errorf("credential: consume backup code: %w", errUpdate)
	}

	s.afterSecondFactor(ctx, stored.ID, userID)
	return true, nil
}

// afterSecondFactor records usage timestamps and grants the one-time
// first-2FA bonus. Failures here do not fail the verification itself.
func (s *Service) afterSecondFactor(ctx context.Context, credentialID uint64, userID string) {
	if errTouch := s.touch(ctx, credentialID, userID); errTouch != nil {
		log.WithError(errTouch).WithField("user_id", userID).
			Warn("failed to update 2fa usage timestamps")
	}
	if errBonus := s.ledger.GrantFirst2FABonus(ctx, userID); errBonus != nil {
		log.WithError(errBonus).WithField("user_id", userID).
			Error("failed to grant first-2fa bonus")
	}
}

// storeCredential encrypts and upserts a secret in its own transaction.
func (s *Service) storeCredential(ctx context.Context, userID string, kind models.CredentialKind, plaintext string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.upsertCredential(tx, userID, kind, plaintext)
	})
}

// upsertCredential encrypts plaintext under a fresh salt and writes the
// (user, kind) row, replacing any previous ciphertext.
func (s *Service) upsertCredential(tx *gorm.DB, userID string, kind models.CredentialKind, plaintext string) error {
	sealed, salt, err := s.cipher.Encrypt(plaintext, "")
	if err != nil {
		return err
	}
	row := models.EncryptedCredential{
		UserID:     userID,
		Kind:       kind,
		Ciphertext: sealed,
		Salt:       salt,
	}
	errUpsert := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "kind"}},
		DoUpdates: clause.AssignmentColumns([]string{"ciphertext", "salt", "updated_at"}),
	}).Create(&row).Error
	if errUpsert != nil {
		return fmt.Errorf("credential: upsert %s: %w", kind, errUpsert)
	}
	return nil
}

// loadCredential returns the user's credential of the given kind, nil when
// absent.
func (s *Service) loadCredential(ctx context.Context, userID string, kind models.CredentialKind) (*models.EncryptedCredential, error) {
	var rows []models.EncryptedCredential
	errFind := s.db.WithContext(ctx).
		Where("user_id = ? AND kind = ?", userID, kind).
		Limit(1).
		Find(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("credential: load %s: %w", kind, errFind)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// touch records last-used on the credential and last-login on the user.
func (s *Service) touch(ctx context.Context, credentialID uint64, userID string) error {
	now := time.Now().UTC()
	errCredential := s.db.WithContext(ctx).Model(&models.EncryptedCredential{}).
		Where("id = ?", credentialID).
		Update("last_used_at", now).Error
	if errCredential != nil {
		return fmt.Errorf("credential: touch credential: %w", errCredential)
	}
	errUser := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_login", now).Error
	if errUser != nil {
		return fmt.Errorf("credential: touch user: %w", errUser)
	}
	return nil
}
