package account

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/teealloy/accountd/internal/db"
	"github.com/teealloy/accountd/internal/models"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "accountd-test.db")
	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return NewService(conn), conn
}

func TestCreateAndAuthenticate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	userID, err := svc.Create(ctx, "newplayer1", "Player", "secret123")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, errParse := uuid.Parse(userID); errParse != nil {
		t.Fatalf("expected a UUID account ID, got %q", userID)
	}

	user, errAuth := svc.Authenticate(ctx, "newplayer1", "secret123")
	if errAuth != nil {
		t.Fatalf("Authenticate: %v", errAuth)
	}
	if user == nil || user.ID != userID {
		t.Fatalf("expected the created account back, got %+v", user)
	}
	if user.Password == "secret123" {
		t.Fatalf("password stored unhashed")
	}

	// Wrong password and unknown username are quiet non-matches.
	user, errAuth = svc.Authenticate(ctx, "newplayer1", "wrong-password")
	if errAuth != nil {
		t.Fatalf("Authenticate: %v", errAuth)
	}
	if user != nil {
		t.Fatalf("expected no match for a wrong password")
	}
	user, errAuth = svc.Authenticate(ctx, "nosuchuser1", "secret123")
	if errAuth != nil {
		t.Fatalf("Authenticate: %v", errAuth)
	}
	if user != nil {
		t.Fatalf("expected no match for an unknown username")
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		username string
		nickname string
		password string
		want     error
	}{
		{"short username", "abc", "Player", "secret123", ErrInvalidUsername},
		{"bad characters", "bad name!!", "Player", "secret123", ErrInvalidUsername},
		{"leading underscore", "_username", "Player", "secret123", ErrInvalidUsername},
		{"empty nickname", "validname1", "", "secret123", ErrInvalidNickname},
		{"long nickname", "validname1", "abcdefghijklmnopq", "secret123", ErrInvalidNickname},
		{"short password", "validname1", "Player", "12345", ErrPasswordTooShort},
	}
	for _, tc := range cases {
		if _, err := svc.Create(ctx, tc.username, tc.nickname, tc.password); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestCreateDuplicateUsername(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "takenname1", "First", "secret123"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Create(ctx, "takenname1", "Second", "secret123"); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestGetAndTouchLastLogin(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	userID, err := svc.Create(ctx, "loginname1", "Player", "secret123")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	user, errGet := svc.Get(ctx, userID)
	if errGet != nil {
		t.Fatalf("Get: %v", errGet)
	}
	if user == nil || user.LastLogin != nil {
		t.Fatalf("expected a fresh account with no last_login, got %+v", user)
	}

	missing, errGet := svc.Get(ctx, uuid.NewString())
	if errGet != nil {
		t.Fatalf("Get missing: %v", errGet)
	}
	if missing != nil {
		t.Fatalf("expected nil for an unknown account")
	}

	if errTouch := svc.TouchLastLogin(ctx, userID); errTouch != nil {
		t.Fatalf("TouchLastLogin: %v", errTouch)
	}
	var reloaded models.User
	if errFind := conn.Where("id = ?", userID).First(&reloaded).Error; errFind != nil {
		t.Fatalf("reload user: %v", errFind)
	}
	if reloaded.LastLogin == nil {
		t.Fatalf("expected last_login set after touch")
	}
}
