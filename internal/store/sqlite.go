package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"fundingarb/internal/core"
)

// OpenSQLite opens (creating if absent) a sqlite3 database at dbPath in
// WAL mode and bootstraps the schema. dbPath may be ":memory:" for tests.
func OpenSQLite(dbPath string) (core.Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("store: ping sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("store: enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("store: set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("store: enable foreign_keys: %w", err)
	}

	s, err := newSQLStore(db, sqliteDialect{})
	if err != nil {
		return nil, err
	}
	return s, nil
}
