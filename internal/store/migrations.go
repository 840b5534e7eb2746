package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/soyeahso/voicesquad/internal/logging"
)

// Each dialect keeps its own numbered schema; both create the same agents
// table.
//
//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFiles embed.FS

// migrateUp applies every pending migration under migrations/<dir>.
func migrateUp(ctx context.Context, dialect goose.Dialect, db *sql.DB, dir string, log *logging.Logger) error {
	fsys, err := fs.Sub(migrationFiles, "migrations/"+dir)
	if err != nil {
		return err
	}

	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return err
	}
	for _, r := range results {
		log.Info().
			Int64("version", r.Source.Version).
			Str("dialect", string(dialect)).
			Dur("duration", r.Duration).
			Msg("applied migration")
	}
	return nil
}

// schemaVersion reports the newest applied migration.
func schemaVersion(ctx context.Context, dialect goose.Dialect, db *sql.DB, dir string) (int64, error) {
	fsys, err := fs.Sub(migrationFiles, "migrations/"+dir)
	if err != nil {
		return 0, err
	}
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return 0, err
	}
	return provider.GetDBVersion(ctx)
}
