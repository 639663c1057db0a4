package db

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Dialect identifiers supported by the database layer.
const (
	// DialectPostgres is the PostgreSQL dialect name.
	DialectPostgres = "postgres"
	// DialectSQLite is the SQLite dialect name.
	DialectSQLite = "sqlite"
)

// DialectName returns the active database dialect name.
func DialectName(conn *gorm.DB) string {
	if conn == nil || conn.Dialector == nil {
		return ""
	}
	return conn.Dialector.Name()
}

// IsSQLite reports whether the connection uses SQLite.
func IsSQLite(conn *gorm.DB) bool {
	return DialectName(conn) == DialectSQLite
}

// LockForUpdate returns the exclusive row-lock clause for the current
// dialect. SQLite serializes writers on its own and rejects FOR UPDATE, so
// the clause is omitted there; correctness in tests relies on SQLite's
// single-writer transactions.
func LockForUpdate(conn *gorm.DB) []clause.Expression {
	if IsSQLite(conn) {
		return nil
	}
	return []clause.Expression{clause.Locking{Strength: clause.LockingStrengthUpdate}}
}

// LockForUpdateSkipLocked returns the non-blocking claim clause used by
// concurrent sweep workers: rows already locked by another worker are
// skipped instead of waited on. Plain reads on SQLite.
func LockForUpdateSkipLocked(conn *gorm.DB) []clause.Expression {
	if IsSQLite(conn) {
		return nil
	}
	return []clause.Expression{clause.Locking{
		Strength: clause.LockingStrengthUpdate,
		Options:  clause.LockingOptionsSkipLocked,
	}}
}
