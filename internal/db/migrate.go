package db

import (
	"fmt"

	"github.com/teealloy/accountd/internal/models"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.ReputationRecord{},
		&models.ReputationLogEntry{},
		&models.Endorsement{},
		&models.PendingDeletion{},
		&models.EncryptedCredential{},
		&models.IdentityBinding{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: auto migrate: %w", errAutoMigrate)
	}
	return migrateIndexes(conn)
}

// migrateIndexes applies indexes AutoMigrate cannot express. The partial
// unique index backs the "at most one valid endorsement per endorsee"
// invariant; the code path enforces it under row locks, the index catches
// anything that slips past.
func migrateIndexes(conn *gorm.DB) error {
	stmt := `
		CREATE UNIQUE INDEX IF NOT EXISTS idx_endorsements_active_endorsee
		ON endorsements (endorsee_id) WHERE is_valid
	`
	if IsSQLite(conn) {
		stmt = `
			CREATE UNIQUE INDEX IF NOT EXISTS idx_endorsements_active_endorsee
			ON endorsements (endorsee_id) WHERE is_valid = 1
		`
	}
	if errExec := conn.Exec(stmt).Error; errExec != nil {
		return fmt.Errorf("db: create active endorsement index: %w", errExec)
	}
	return nil
}
