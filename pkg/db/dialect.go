package db

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/metra/internal/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func Dialect(cfg config.Config) (gorm.Dialector, error) {
	switch cfg.DBType {
	case "postgres":
		return postgres.Open(fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			cfg.DBHost,
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBName,
			cfg.DBPort,
			cfg.DBSSLMode,
		)), nil
	case "sqlite":
		return sqlite.Open(cfg.DBName + ".db"), nil
	default:
		return nil, fmt.Errorf("unsupported %s type", cfg.DBType)
	}
}

// IsPostgres reports whether the connection speaks the postgres dialect.
// Row-locking clauses are only emitted on postgres; sqlite serializes writes
// on its own.
func IsPostgres(conn *gorm.DB) bool {
	return conn != nil && strings.EqualFold(conn.Dialector.Name(), "postgres")
}

// LockingClause returns the suffix used to lock selected rows in a
// transaction, or an empty string on dialects without FOR UPDATE.
func LockingClause(conn *gorm.DB) string {
	if IsPostgres(conn) {
		return " FOR UPDATE"
	}
	return ""
}
