package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/voicesquad/internal/agents"
	"github.com/soyeahso/voicesquad/internal/domain"
)

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const selectAgents = `
	SELECT id, name, agent_id, bio, llm, display_order, created_at
	FROM agents
	ORDER BY display_order IS NULL, display_order, created_at, rowid`

// SQLiteTable implements agents.Table and agents.Reorderer on SQLite.
type SQLiteTable struct {
	db  *DB
	now func() time.Time
}

// NewSQLiteTable creates an agents table over db.
func NewSQLiteTable(db *DB) *SQLiteTable {
	return &SQLiteTable{db: db, now: time.Now}
}

// Select returns all agents in display order.
func (t *SQLiteTable) Select(ctx context.Context) ([]domain.Agent, error) {
	rows, err := t.db.sql.QueryContext(ctx, selectAgents)
	if err != nil {
		return nil, fmt.Errorf("selecting agents: %w", err)
	}
	defer rows.Close()

	var out []domain.Agent
	for rows.Next() {
		a, err := scanSQLiteAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Insert adds an agent at the end of the display order.
func (t *SQLiteTable) Insert(ctx context.Context, in domain.NewAgent) (domain.Agent, error) {
	id := uuid.New().String()
	createdAt := t.now().UTC().Format(timeLayout)

	_, err := t.db.sql.ExecContext(ctx,
		`INSERT INTO agents (id, name, agent_id, bio, llm, display_order, created_at)
		 VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(display_order), -1) + 1 FROM agents), ?)`,
		id, in.Name, in.AgentID, in.Bio, in.LLM, createdAt,
	)
	if err != nil {
		return domain.Agent{}, fmt.Errorf("inserting agent: %w", err)
	}
	return t.get(ctx, id)
}

// Update applies a partial update.
func (t *SQLiteTable) Update(ctx context.Context, id string, patch domain.AgentPatch) (domain.Agent, error) {
	cols, args := patchColumns(patch)
	if len(cols) == 0 {
		return t.get(ctx, id)
	}

	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = ?"
	}
	args = append(args, id)

	res, err := t.db.sql.ExecContext(ctx,
		"UPDATE agents SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return domain.Agent{}, fmt.Errorf("updating agent %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.Agent{}, agents.ErrNotFound
	}
	return t.get(ctx, id)
}

// Delete removes an agent. Unknown ids are ignored.
func (t *SQLiteTable) Delete(ctx context.Context, id string) error {
	if _, err := t.db.sql.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting agent %s: %w", id, err)
	}
	return nil
}

// Reorder writes display_order = index for every id in one transaction.
// An id with no row rolls the whole order back with agents.ErrNotFound.
func (t *SQLiteTable) Reorder(ctx context.Context, ids []string) error {
	tx, err := t.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE agents SET display_order = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("preparing reorder: %w", err)
	}
	defer stmt.Close()

	for i, id := range ids {
		res, err := stmt.ExecContext(ctx, i, id)
		if err != nil {
			return fmt.Errorf("reordering %s: %w", id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("reordering %s: %w", id, agents.ErrNotFound)
		}
	}
	return tx.Commit()
}

func (t *SQLiteTable) get(ctx context.Context, id string) (domain.Agent, error) {
	row := t.db.sql.QueryRowContext(ctx,
		`SELECT id, name, agent_id, bio, llm, display_order, created_at FROM agents WHERE id = ?`, id)
	a, err := scanSQLiteAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Agent{}, agents.ErrNotFound
	}
	return a, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteAgent(s scanner) (domain.Agent, error) {
	var (
		a         domain.Agent
		order     sql.NullInt64
		createdAt string
	)
	if err := s.Scan(&a.ID, &a.Name, &a.AgentID, &a.Bio, &a.LLM, &order, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Agent{}, err
		}
		return domain.Agent{}, fmt.Errorf("scanning agent: %w", err)
	}
	if order.Valid {
		a.DisplayOrder = domain.Ptr(int(order.Int64))
	}
	a.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return a, nil
}

// patchColumns lists the columns a patch touches and their values.
func patchColumns(p domain.AgentPatch) ([]string, []any) {
	var (
		cols []string
		args []any
	)
	if p.Name != nil {
		cols, args = append(cols, "name"), append(args, *p.Name)
	}
	if p.AgentID != nil {
		cols, args = append(cols, "agent_id"), append(args, *p.AgentID)
	}
	if p.Bio != nil {
		cols, args = append(cols, "bio"), append(args, *p.Bio)
	}
	if p.LLM != nil {
		cols, args = append(cols, "llm"), append(args, *p.LLM)
	}
	if p.DisplayOrder != nil {
		cols, args = append(cols, "display_order"), append(args, *p.DisplayOrder)
	}
	return cols, args
}
