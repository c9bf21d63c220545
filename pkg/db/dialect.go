package db

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	TypePostgres = "postgres"
	TypeSQLite   = "sqlite"
)

// ErrUnsupportedDialect is returned for database types the storefront
// schema and queries are not written for. Repositories rely on
// ON CONFLICT and RETURNING.
var ErrUnsupportedDialect = errors.New("unsupported_database_type")

func Dialect(cfg Config) (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case TypePostgres:
		return postgres.Open(fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			cfg.Host,
			cfg.User,
			cfg.Password,
			cfg.Name,
			cfg.Port,
			cfg.SSLMode,
		)), nil
	case TypeSQLite:
		path := strings.TrimSpace(cfg.Path)
		if path == "" {
			path = "storefront.db"
		}
		return sqlite.Open(path), nil
	default:
		return nil, fmt.Errorf("%w: %q (use %s or %s)", ErrUnsupportedDialect, cfg.Type, TypePostgres, TypeSQLite)
	}
}
