package store

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // register the "pgx" driver

	"fundingarb/internal/core"
)

// OpenPostgres opens a Postgres database via pgx's database/sql driver
// and bootstraps the schema. dsn is a standard postgres:// URL or
// libpq-style connection string.
func OpenPostgres(dsn string) (core.Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}

	s, err := newSQLStore(db, postgresDialect{})
	if err != nil {
		return nil, err
	}
	return s, nil
}
