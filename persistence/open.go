package persistence

import (
	"fmt"

	"github.com/wfunc/lobbyserver/config"
)

// Open builds the configured Database backend.
func Open(cfg config.DatabaseConfig) (Database, error) {
	switch cfg.Driver {
	case config.DriverGorm:
		return NewGormPostgreSQL(cfg.Postgres.DSN())
	case config.DriverPostgres:
		return NewPostgreSQL(cfg.Postgres.DSN())
	case config.DriverSQLite:
		return NewSQLite(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
