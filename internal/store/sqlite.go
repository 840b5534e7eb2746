// Package store provides the persistent agents table, backed by SQLite
// locally or Postgres when hosted.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/soyeahso/voicesquad/internal/logging"
)

// memoryPath opens a private in-memory database.
const memoryPath = ":memory:"

// DB is a migrated SQLite database holding the agents table.
type DB struct {
	sql  *sql.DB
	path string
	log  *logging.Logger
}

// sqliteDSN sets the pragmas on every pooled connection, not only the
// first one.
func sqliteDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	if path == memoryPath {
		return path + "?" + q.Encode()
	}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	return "file:" + path + "?" + q.Encode()
}

// Open opens or creates the database at path and brings its schema up to
// date. ":memory:" gives a throwaway database for tests.
func Open(ctx context.Context, path string, log *logging.Logger) (*DB, error) {
	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	if path == memoryPath {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	db := &DB{sql: sqlDB, path: path, log: log.Sub("store")}
	if err := migrateUp(ctx, goose.DialectSQLite3, sqlDB, "sqlite", db.log); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	db.log.Info().Str("path", path).Msg("database opened")
	return db, nil
}

// Version reports the applied schema version.
func (db *DB) Version(ctx context.Context) (int64, error) {
	return schemaVersion(ctx, goose.DialectSQLite3, db.sql, "sqlite")
}

func (db *DB) Close() error {
	db.log.Debug().Str("path", db.path).Msg("closing database")
	return db.sql.Close()
}
