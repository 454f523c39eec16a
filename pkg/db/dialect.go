package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/tugas/internal/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// DialectPostgres is the only backend the payment schema targets. The claim
// and finalize statements rely on ON CONFLICT and the migrations are
// postgres DDL.
const DialectPostgres = "postgres"

var ErrUnsupportedDialect = errors.New("unsupported_database_type")

// NormalizeDialect maps DATABASE_TYPE to a supported backend. Empty means
// postgres; anything else is rejected before a connection is attempted.
func NormalizeDialect(dbType string) (string, error) {
	switch name := strings.ToLower(strings.TrimSpace(dbType)); name {
	case "", DialectPostgres, "postgresql", "pgx":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDialect, dbType)
	}
}

func Dialect(cfg config.Config) (gorm.Dialector, error) {
	if _, err := NormalizeDialect(cfg.DBType); err != nil {
		return nil, err
	}
	return postgres.Open(postgresDSN(cfg)), nil
}

func postgresDSN(cfg config.Config) string {
	sslMode := strings.TrimSpace(cfg.DBSSLMode)
	if sslMode == "" {
		sslMode = "disable"
	}
	parts := []string{
		"host=" + cfg.DBHost,
		"port=" + cfg.DBPort,
		"user=" + cfg.DBUser,
		"dbname=" + cfg.DBName,
		"sslmode=" + sslMode,
		"TimeZone=UTC",
	}
	if cfg.DBPassword != "" {
		parts = append(parts, "password="+cfg.DBPassword)
	}
	return strings.Join(parts, " ")
}
