package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/soyeahso/voicesquad/internal/agents"
	"github.com/soyeahso/voicesquad/internal/domain"
	"github.com/soyeahso/voicesquad/internal/logging"
)

// PostgresTable implements agents.Table and agents.Reorderer on a hosted
// Postgres database.
type PostgresTable struct {
	pool *pgxpool.Pool
	log  *logging.Logger
}

// OpenPostgres connects to dsn, applies pending migrations and returns the
// agents table. maxConns <= 0 keeps the pool default.
func OpenPostgres(ctx context.Context, dsn string, maxConns int, log *logging.Logger) (*PostgresTable, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	t := &PostgresTable{pool: pool, log: log.Sub("store")}
	if err := t.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	t.log.Info().Str("host", cfg.ConnConfig.Host).Str("database", cfg.ConnConfig.Database).Msg("postgres connected")
	return t, nil
}

func (t *PostgresTable) migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(t.pool)
	defer db.Close()
	return migrateUp(ctx, goose.DialectPostgres, db, "postgres", t.log)
}

// Close releases the connection pool.
func (t *PostgresTable) Close() error {
	t.log.Info().Msg("closing postgres pool")
	t.pool.Close()
	return nil
}

const pgAgentColumns = `id, name, agent_id, bio, llm, display_order, created_at`

// Select returns all agents in display order.
func (t *PostgresTable) Select(ctx context.Context) ([]domain.Agent, error) {
	rows, err := t.pool.Query(ctx,
		`SELECT `+pgAgentColumns+` FROM agents ORDER BY display_order ASC NULLS LAST, created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("selecting agents: %w", err)
	}
	defer rows.Close()

	var out []domain.Agent
	for rows.Next() {
		a, err := scanPgAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Insert adds an agent at the end of the display order.
func (t *PostgresTable) Insert(ctx context.Context, in domain.NewAgent) (domain.Agent, error) {
	row := t.pool.QueryRow(ctx,
		`INSERT INTO agents (id, name, agent_id, bio, llm, display_order)
		 VALUES ($1, $2, $3, $4, $5, (SELECT COALESCE(MAX(display_order), -1) + 1 FROM agents))
		 RETURNING `+pgAgentColumns,
		uuid.New().String(), in.Name, in.AgentID, in.Bio, in.LLM,
	)
	a, err := scanPgAgent(row)
	if err != nil {
		return domain.Agent{}, fmt.Errorf("inserting agent: %w", err)
	}
	return a, nil
}

// Update applies a partial update.
func (t *PostgresTable) Update(ctx context.Context, id string, patch domain.AgentPatch) (domain.Agent, error) {
	cols, args := patchColumns(patch)

	var row pgx.Row
	if len(cols) == 0 {
		row = t.pool.QueryRow(ctx, `SELECT `+pgAgentColumns+` FROM agents WHERE id = $1`, id)
	} else {
		sets := make([]string, len(cols))
		for i, c := range cols {
			sets[i] = c + " = $" + strconv.Itoa(i+1)
		}
		args = append(args, id)
		row = t.pool.QueryRow(ctx,
			`UPDATE agents SET `+strings.Join(sets, ", ")+
				` WHERE id = $`+strconv.Itoa(len(args))+` RETURNING `+pgAgentColumns,
			args...)
	}

	a, err := scanPgAgent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Agent{}, agents.ErrNotFound
	}
	if err != nil {
		return domain.Agent{}, fmt.Errorf("updating agent %s: %w", id, err)
	}
	return a, nil
}

// Delete removes an agent. Unknown ids are ignored.
func (t *PostgresTable) Delete(ctx context.Context, id string) error {
	if _, err := t.pool.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting agent %s: %w", id, err)
	}
	return nil
}

// Reorder writes display_order = index for every id in one transaction.
// An id with no row rolls the whole order back with agents.ErrNotFound.
func (t *PostgresTable) Reorder(ctx context.Context, ids []string) error {
	return pgx.BeginFunc(ctx, t.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for i, id := range ids {
			batch.Queue(`UPDATE agents SET display_order = $1 WHERE id = $2`, i, id)
		}
		br := tx.SendBatch(ctx, batch)
		defer br.Close()
		for _, id := range ids {
			tag, err := br.Exec()
			if err != nil {
				return fmt.Errorf("reordering %s: %w", id, err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("reordering %s: %w", id, agents.ErrNotFound)
			}
		}
		return br.Close()
	})
}

func scanPgAgent(row pgx.Row) (domain.Agent, error) {
	var (
		a     domain.Agent
		order pgtype.Int4
	)
	if err := row.Scan(&a.ID, &a.Name, &a.AgentID, &a.Bio, &a.LLM, &order, &a.CreatedAt); err != nil {
		return domain.Agent{}, err
	}
	if order.Valid {
		a.DisplayOrder = domain.Ptr(int(order.Int32))
	}
	return a, nil
}
