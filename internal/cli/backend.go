package cli

import (
	"context"
	"fmt"

	"github.com/soyeahso/voicesquad/internal/agents"
	"github.com/soyeahso/voicesquad/internal/config"
	"github.com/soyeahso/voicesquad/internal/logging"
	"github.com/soyeahso/voicesquad/internal/store"
)

// loadConfig reads and validates the config file. A missing file yields
// the defaults.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	if issues := config.Validate(&cfg); len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return cfg, fmt.Errorf("config validation failed with %d issue(s)", len(issues))
	}
	return cfg, nil
}

// openTable opens the agents table selected by cfg.Database. The returned
// close func is never nil.
func openTable(ctx context.Context, cfg config.Config, log *logging.Logger) (agents.Table, func(), error) {
	switch cfg.Database.Driver {
	case "memory":
		log.Warn().Msg("using in-memory agents table; changes are lost on exit")
		return agents.NewMemoryTable(), func() {}, nil

	case "postgres":
		t, err := store.OpenPostgres(ctx, cfg.Database.DSN, cfg.Database.MaxConns, log)
		if err != nil {
			return nil, nil, err
		}
		return t, func() { t.Close() }, nil

	default:
		path := paths.DatabasePath(cfg.Database)
		db, err := store.Open(ctx, path, log)
		if err != nil {
			return nil, nil, fmt.Errorf("opening database: %w", err)
		}
		return store.NewSQLiteTable(db), func() { db.Close() }, nil
	}
}

// openRepository is openTable wrapped in the validating repository.
func openRepository(ctx context.Context) (*agents.Repository, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	table, closeFn, err := openTable(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return agents.NewRepository(table, log), closeFn, nil
}
