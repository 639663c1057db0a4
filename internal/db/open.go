package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	_ "github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connection pool settings for PostgreSQL. Connections are recycled so the
// pool sheds broken sessions instead of handing them back to transactions.
const (
	maxOpenConns    = 20
	maxIdleConns    = 5
	connMaxLifetime = 30 * time.Minute
	connMaxIdleTime = 5 * time.Minute
)

// Open connects to the database described by the DSN. SQLite DSNs (a
// "file:" URI or a *.db path) use the embedded driver; anything else is
// treated as PostgreSQL and opened through the pgx stdlib driver so pool
// limits apply.
func Open(dsn string) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("db: empty dsn")
	}

	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	if isSQLiteDSN(trimmed) {
		conn, err := gorm.Open(sqlite.Open(trimmed), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("db: open sqlite: %w", err)
		}
		return conn, nil
	}

	sqlDB, err := sql.Open("pgx", trimmed)
	if err != nil {
		return nil, fmt.Errorf("db: open postgres: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)
	if errPing := sqlDB.Ping(); errPing != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("db: ping postgres: %w", errPing)
	}

	conn, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gormCfg)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("db: open gorm: %w", err)
	}
	return conn, nil
}

// isSQLiteDSN reports whether the DSN points at a SQLite database.
func isSQLiteDSN(dsn string) bool {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return false
	}
	return strings.HasPrefix(lower, "file:") ||
		strings.HasSuffix(lower, ".db") ||
		strings.Contains(lower, ".db?") ||
		lower == ":memory:"
}
