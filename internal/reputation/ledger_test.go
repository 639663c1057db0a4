package reputation

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/teealloy/accountd/internal/db"
	"github.com/teealloy/accountd/internal/deletion"
	"github.com/teealloy/accountd/internal/models"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "accountd-test.db")
	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func newTestLedger(t *testing.T) (*Ledger, *deletion.Store, *gorm.DB) {
	t.Helper()
	conn := openTestDB(t)
	store := deletion.NewStore(conn)
	return NewLedger(conn, store), store, conn
}

func createTestUser(t *testing.T, conn *gorm.DB, username string) string {
	t.Helper()
	user := models.User{ID: uuid.NewString(), Username: username, Password: "hashed"}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user %s: %v", username, errCreate)
	}
	return user.ID
}

func seedScore(t *testing.T, conn *gorm.DB, userID string, score int) {
	t.Helper()
	record := models.ReputationRecord{UserID: userID, Score: score}
	if errCreate := conn.Create(&record).Error; errCreate != nil {
		t.Fatalf("seed reputation record: %v", errCreate)
	}
}

func TestApplyChangeCreatesRecordAndLog(t *testing.T) {
	ledger, _, conn := newTestLedger(t)
	ctx := context.Background()
	userID := uuid.NewString()

	score, err := ledger.ApplyChange(ctx, nil, Change{
		UserID: userID,
		Type:   models.ChangeIdentityLogin,
		Amount: AmountIdentityLogin,
	})
	if err != nil {
		t.Fatalf("ApplyChange: %v", err)
	}
	if score != 30 {
		t.Fatalf("expected score=30, got %d", score)
	}

	var record models.ReputationRecord
	if errFind := conn.Where("user_id = ?", userID).First(&record).Error; errFind != nil {
		t.Fatalf("load record: %v", errFind)
	}
	if record.Score != 30 {
		t.Fatalf("expected stored score=30, got %d", record.Score)
	}
	if !record.HasIdentityLogin {
		t.Fatalf("expected has_identity_login=true")
	}

	entries, errLog := ledger.Log(ctx, userID)
	if errLog != nil {
		t.Fatalf("Log: %v", errLog)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if entries[0].OldScore != 0 || entries[0].NewScore != 30 {
		t.Fatalf("expected old=0 new=30, got old=%d new=%d", entries[0].OldScore, entries[0].NewScore)
	}
	if entries[0].ChangeType != models.ChangeIdentityLogin {
		t.Fatalf("expected change_type=%s, got %s", models.ChangeIdentityLogin, entries[0].ChangeType)
	}
}

func TestApplyChangeClampsScore(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	ctx := context.Background()

	// Any penalty that would undershoot 0 lands at exactly 0, so -100 and
	// -1000 are indistinguishable from the same starting score.
	for _, amount := range []int{-100, -1000} {
		userID := uuid.NewString()
		if _, err := ledger.ApplyChange(ctx, nil, Change{
			UserID: userID, Type: models.ChangeIdentityLogin, Amount: AmountIdentityLogin,
		}); err != nil {
			t.Fatalf("seed: %v", err)
		}
		score, err := ledger.ApplyChange(ctx, nil, Change{
			UserID: userID, Type: models.ChangePenalty, Amount: amount,
		})
		if err != nil {
			t.Fatalf("penalty %d: %v", amount, err)
		}
		if score != 0 {
			t.Fatalf("expected score=0 after %d, got %d", amount, score)
		}
	}

	userID := uuid.NewString()
	score, err := ledger.ApplyChange(ctx, nil, Change{
		UserID: userID, Type: models.ChangeEndorsedByUser, Amount: 1000,
	})
	if err != nil {
		t.Fatalf("ApplyChange: %v", err)
	}
	if score != MaxScore {
		t.Fatalf("expected score clamped to %d, got %d", MaxScore, score)
	}
}

func TestApplyChangeFlagsAreSticky(t *testing.T) {
	ledger, _, conn := newTestLedger(t)
	ctx := context.Background()
	userID := uuid.NewString()

	if _, err := ledger.ApplyChange(ctx, nil, Change{
		UserID: userID, Type: models.ChangeIdentityLogin, Amount: AmountIdentityLogin,
	}); err != nil {
		t.Fatalf("identity login: %v", err)
	}
	if _, err := ledger.ApplyChange(ctx, nil, Change{
		UserID: userID, Type: models.ChangeVerifiedContributor, Amount: AmountVerifiedContributor,
	}); err != nil {
		t.Fatalf("verified contributor: %v", err)
	}
	if _, err := ledger.ApplyChange(ctx, nil, Change{
		UserID: userID, Type: models.ChangePenalty, Amount: AmountBanPenalty,
	}); err != nil {
		t.Fatalf("penalty: %v", err)
	}

	var record models.ReputationRecord
	if errFind := conn.Where("user_id = ?", userID).First(&record).Error; errFind != nil {
		t.Fatalf("load record: %v", errFind)
	}
	if !record.HasIdentityLogin || !record.IsContributor {
		t.Fatalf("expected both flags to survive the penalty, got identity=%v contributor=%v",
			record.HasIdentityLogin, record.IsContributor)
	}
	if record.Score != 0 {
		t.Fatalf("expected score=0, got %d", record.Score)
	}
}

func TestZeroScoreDrivesDeletionQueue(t *testing.T) {
	ledger, store, conn := newTestLedger(t)
	ctx := context.Background()
	userID := uuid.NewString()

	if _, err := ledger.ApplyChange(ctx, nil, Change{
		UserID: userID, Type: models.ChangeIdentityLogin, Amount: AmountIdentityLogin,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := ledger.ApplyChange(ctx, nil, Change{
		UserID: userID, Type: models.ChangePenalty, Amount: AmountBanPenalty,
	}); err != nil {
		t.Fatalf("penalty: %v", err)
	}

	pending, errPending := store.Pending(ctx, userID)
	if errPending != nil {
		t.Fatalf("Pending: %v", errPending)
	}
	if pending == nil {
		t.Fatalf("expected a pending deletion at score 0")
	}

	// Another change at 0 must not queue a second row.
	if _, err := ledger.ApplyChange(ctx, nil, Change{
		UserID: userID, Type: models.ChangePenalty, Amount: -10,
	}); err != nil {
		t.Fatalf("second penalty: %v", err)
	}
	var count int64
	if errCount := conn.Model(&models.PendingDeletion{}).Where("user_id = ?", userID).Count(&count).Error; errCount != nil {
		t.Fatalf("count pending: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected 1 pending deletion row, got %d", count)
	}

	// Recovery cancels the queue entry.
	if _, err := ledger.ApplyChange(ctx, nil, Change{
		UserID: userID, Type: models.ChangeEndorsedByUser, Amount: AmountEndorsed,
	}); err != nil {
		t.Fatalf("recovery: %v", err)
	}
	pending, errPending = store.Pending(ctx, userID)
	if errPending != nil {
		t.Fatalf("Pending after recovery: %v", errPending)
	}
	if pending != nil {
		t.Fatalf("expected pending deletion to be cancelled after recovery")
	}

	// A second drop to 0 schedules again.
	if _, err := ledger.ApplyChange(ctx, nil, Change{
		UserID: userID, Type: models.ChangePenalty, Amount: AmountBanPenalty,
	}); err != nil {
		t.Fatalf("second drop: %v", err)
	}
	pending, errPending = store.Pending(ctx, userID)
	if errPending != nil {
		t.Fatalf("Pending after second drop: %v", errPending)
	}
	if pending == nil {
		t.Fatalf("expected pending deletion after the second drop to 0")
	}
}

func TestApplyChangeRecordsCauseAndRelatedUser(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	ctx := context.Background()
	userID := uuid.NewString()
	adminID := uuid.NewString()

	if _, err := ledger.ApplyChange(ctx, nil, Change{
		UserID:        userID,
		Type:          models.ChangePenalty,
		Amount:        AmountBanPenalty,
		RelatedUserID: adminID,
		Cause:         models.CauseAdminBan,
		Description:   "banned by administrator",
	}); err != nil {
		t.Fatalf("ApplyChange: %v", err)
	}

	entries, errLog := ledger.Log(ctx, userID)
	if errLog != nil {
		t.Fatalf("Log: %v", errLog)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Cause != models.CauseAdminBan {
		t.Fatalf("expected cause=%s, got %s", models.CauseAdminBan, entry.Cause)
	}
	if entry.RelatedUserID == nil || *entry.RelatedUserID != adminID {
		t.Fatalf("expected related_user_id=%s, got %v", adminID, entry.RelatedUserID)
	}
	if entry.ChangeAmount != AmountBanPenalty {
		t.Fatalf("expected change_amount=%d, got %d", AmountBanPenalty, entry.ChangeAmount)
	}
}

func TestApplyChangeRejectsMalformedUserID(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.ApplyChange(ctx, nil, Change{
		UserID: "not-a-uuid", Type: models.ChangePenalty, Amount: -10,
	})
	if !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
	if !IsValidation(err) {
		t.Fatalf("expected IsValidation=true for %v", err)
	}

	_, err = ledger.ApplyChange(ctx, nil, Change{
		UserID: uuid.NewString(), Type: models.ChangePenalty, Amount: -10,
		RelatedUserID: "also-not-a-uuid",
	})
	if !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("expected ErrInvalidUserID for related user, got %v", err)
	}
}

func TestGrantFirst2FABonusIsOneShot(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	ctx := context.Background()
	userID := uuid.NewString()

	if err := ledger.GrantFirst2FABonus(ctx, userID); err != nil {
		t.Fatalf("first grant: %v", err)
	}
	if err := ledger.GrantFirst2FABonus(ctx, userID); err != nil {
		t.Fatalf("second grant: %v", err)
	}

	record, found, errGet := ledger.Get(ctx, userID)
	if errGet != nil {
		t.Fatalf("Get: %v", errGet)
	}
	if !found {
		t.Fatalf("expected a record after the bonus")
	}
	if record.Score != AmountFirst2FA {
		t.Fatalf("expected score=%d after both grants, got %d", AmountFirst2FA, record.Score)
	}

	entries, errLog := ledger.Log(ctx, userID)
	if errLog != nil {
		t.Fatalf("Log: %v", errLog)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry after both grants, got %d", len(entries))
	}
	if entries[0].ChangeType != models.ChangeFirst2FA {
		t.Fatalf("expected change_type=%s, got %s", models.ChangeFirst2FA, entries[0].ChangeType)
	}
}

func TestLockRecordSeedsMissingRow(t *testing.T) {
	_, _, conn := newTestLedger(t)
	userID := uuid.NewString()

	// The first lock inserts the row so there is something to lock.
	errTx := conn.Transaction(func(tx *gorm.DB) error {
		record, errLock := lockRecord(tx, userID)
		if errLock != nil {
			return errLock
		}
		if record.Score != 0 || record.IsContributor || record.HasIdentityLogin {
			t.Fatalf("expected a zero-value seed row, got %+v", record)
		}
		return nil
	})
	if errTx != nil {
		t.Fatalf("lock record: %v", errTx)
	}

	// A second lock finds the same row instead of inserting another.
	errTx = conn.Transaction(func(tx *gorm.DB) error {
		_, errLock := lockRecord(tx, userID)
		return errLock
	})
	if errTx != nil {
		t.Fatalf("second lock: %v", errTx)
	}

	var count int64
	if errCount := conn.Model(&models.ReputationRecord{}).Where("user_id = ?", userID).Count(&count).Error; errCount != nil {
		t.Fatalf("count records: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected a single record row, got %d", count)
	}
}

func TestGetMissingRecord(t *testing.T) {
	ledger, _, _ := newTestLedger(t)

	record, found, err := ledger.Get(context.Background(), uuid.NewString())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Fatalf("expected found=false for an untracked user")
	}
	if record.Score != 0 || record.IsContributor || record.HasIdentityLogin {
		t.Fatalf("expected zero-value record, got %+v", record)
	}
}
