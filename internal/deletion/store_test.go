package deletion

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/teealloy/accountd/internal/db"
	"github.com/teealloy/accountd/internal/models"
	"gorm.io/datatypes"
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

func TestScheduleIsIdempotent(t *testing.T) {
	conn := openTestDB(t)
	store := NewStore(conn)
	userID := uuid.NewString()

	if err := store.Schedule(conn, userID); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	var first models.PendingDeletion
	if errFind := conn.Where("user_id = ?", userID).First(&first).Error; errFind != nil {
		t.Fatalf("load pending: %v", errFind)
	}
	if got := first.DeletionDue.Sub(first.MarkedAt); got != GracePeriod {
		t.Fatalf("expected due = marked + %s, got %s", GracePeriod, got)
	}

	if err := store.Schedule(conn, userID); err != nil {
		t.Fatalf("second Schedule: %v", err)
	}

	var count int64
	if errCount := conn.Model(&models.PendingDeletion{}).Where("user_id = ?", userID).Count(&count).Error; errCount != nil {
		t.Fatalf("count pending: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected 1 pending row, got %d", count)
	}

	var second models.PendingDeletion
	if errFind := conn.Where("user_id = ?", userID).First(&second).Error; errFind != nil {
		t.Fatalf("reload pending: %v", errFind)
	}
	if !second.DeletionDue.Equal(first.DeletionDue) {
		t.Fatalf("expected the original due date to survive, got %s vs %s",
			second.DeletionDue, first.DeletionDue)
	}
}

func TestCancelRemovesPending(t *testing.T) {
	conn := openTestDB(t)
	store := NewStore(conn)
	ctx := context.Background()
	userID := uuid.NewString()

	if err := store.Schedule(conn, userID); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := store.Cancel(conn, userID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	pending, errPending := store.Pending(ctx, userID)
	if errPending != nil {
		t.Fatalf("Pending: %v", errPending)
	}
	if pending != nil {
		t.Fatalf("expected no pending deletion after cancel")
	}

	// Cancelling again is a no-op.
	if err := store.Cancel(conn, userID); err != nil {
		t.Fatalf("second Cancel: %v", err)
	}
}

func TestReclaimDuePurgesAccount(t *testing.T) {
	conn := openTestDB(t)
	store := NewStore(conn)
	ctx := context.Background()

	userID := uuid.NewString()
	otherID := uuid.NewString()
	user := models.User{ID: userID, Username: "doomed", Password: "hashed"}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	seed := []any{
		&models.ReputationRecord{UserID: userID, Score: 0},
		&models.ReputationLogEntry{UserID: userID, ChangeType: models.ChangePenalty, ChangeAmount: -100},
		&models.Endorsement{EndorserID: userID, EndorseeID: otherID, IsValid: true},
		&models.EncryptedCredential{UserID: userID, Kind: models.CredentialGameToken, Ciphertext: []byte{1, 2, 3}, Salt: "00112233445566778899aabbccddeeff"},
		&models.IdentityBinding{UserID: userID, ProviderID: 42, ProviderLogin: "doomed", Profile: datatypes.JSON("{}")},
	}
	for _, row := range seed {
		if errCreate := conn.Create(row).Error; errCreate != nil {
			t.Fatalf("seed %T: %v", row, errCreate)
		}
	}

	now := time.Now().UTC()
	row := models.PendingDeletion{
		UserID:      userID,
		MarkedAt:    now.Add(-GracePeriod - time.Hour),
		DeletionDue: now.Add(-time.Hour),
	}
	if errCreate := conn.Create(&row).Error; errCreate != nil {
		t.Fatalf("create pending: %v", errCreate)
	}

	reclaimed, errSweep := store.ReclaimDue(ctx)
	if errSweep != nil {
		t.Fatalf("ReclaimDue: %v", errSweep)
	}
	if reclaimed != 1 {
		t.Fatalf("expected 1 reclaimed account, got %d", reclaimed)
	}

	for _, check := range []struct {
		name  string
		model any
		where string
	}{
		{"user", &models.User{}, "id = ?"},
		{"reputation record", &models.ReputationRecord{}, "user_id = ?"},
		{"reputation log", &models.ReputationLogEntry{}, "user_id = ?"},
		{"endorsement", &models.Endorsement{}, "endorser_id = ?"},
		{"credential", &models.EncryptedCredential{}, "user_id = ?"},
		{"identity binding", &models.IdentityBinding{}, "user_id = ?"},
	} {
		var count int64
		if errCount := conn.Model(check.model).Where(check.where, userID).Count(&count).Error; errCount != nil {
			t.Fatalf("count %s: %v", check.name, errCount)
		}
		if count != 0 {
			t.Fatalf("expected %s rows to be purged, found %d", check.name, count)
		}
	}

	var processed models.PendingDeletion
	if errFind := conn.Where("user_id = ?", userID).First(&processed).Error; errFind != nil {
		t.Fatalf("load processed row: %v", errFind)
	}
	if !processed.IsProcessed {
		t.Fatalf("expected the pending row to be marked processed")
	}

	// A second sweep finds nothing due.
	reclaimed, errSweep = store.ReclaimDue(ctx)
	if errSweep != nil {
		t.Fatalf("second ReclaimDue: %v", errSweep)
	}
	if reclaimed != 0 {
		t.Fatalf("expected 0 reclaimed on rerun, got %d", reclaimed)
	}
}

func TestReclaimDueSkipsFutureRows(t *testing.T) {
	conn := openTestDB(t)
	store := NewStore(conn)
	ctx := context.Background()

	userID := uuid.NewString()
	user := models.User{ID: userID, Username: "grace", Password: "hashed"}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	if err := store.Schedule(conn, userID); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	reclaimed, errSweep := store.ReclaimDue(ctx)
	if errSweep != nil {
		t.Fatalf("ReclaimDue: %v", errSweep)
	}
	if reclaimed != 0 {
		t.Fatalf("expected 0 reclaimed within the grace period, got %d", reclaimed)
	}

	var count int64
	if errCount := conn.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; errCount != nil {
		t.Fatalf("count users: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected the user to survive the sweep")
	}
}
