package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/soyeahso/voicesquad/internal/agents"
	"github.com/soyeahso/voicesquad/internal/domain"
	"github.com/soyeahso/voicesquad/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), memoryPath, logging.New(nil, "silent"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testTable(t *testing.T) *SQLiteTable {
	t.Helper()
	table := NewSQLiteTable(testDB(t))
	clock := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	table.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return table
}

// --- DB/Migration tests ---

func TestSQLiteDSN(t *testing.T) {
	mem := sqliteDSN(memoryPath)
	assert.True(t, strings.HasPrefix(mem, ":memory:?"))
	assert.Contains(t, mem, "busy_timeout")
	assert.NotContains(t, mem, "journal_mode")

	file := sqliteDSN("/var/lib/voicesquad/agents.db")
	assert.True(t, strings.HasPrefix(file, "file:/var/lib/voicesquad/agents.db?"))
	assert.Contains(t, file, "journal_mode%28WAL%29")
}

func TestOpen_MigratesSchema(t *testing.T) {
	db := testDB(t)

	v, err := db.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	var name string
	err = db.sql.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='agents'",
	).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "agents", name)
}

func TestSchema_RejectsBlankName(t *testing.T) {
	db := testDB(t)

	_, err := db.sql.Exec(`INSERT INTO agents (id, name, agent_id, created_at) VALUES ('x', '  ', 'a', 'now')`)
	assert.Error(t, err)
}

func TestOpen_FileReopens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "agents.db")

	db, err := Open(ctx, path, logging.New(nil, "silent"))
	require.NoError(t, err)
	_, err = NewSQLiteTable(db).Insert(ctx, domain.NewAgent{Name: "Ada", AgentID: "el-ada"})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopening keeps rows and applies nothing twice
	db, err = Open(ctx, path, logging.New(nil, "silent"))
	require.NoError(t, err)
	defer db.Close()

	v, err := db.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	var mode string
	require.NoError(t, db.sql.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	list, err := NewSQLiteTable(db).Select(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Ada", list[0].Name)
}

// --- SQLiteTable tests ---

func TestSQLiteTable_InsertAssignsFields(t *testing.T) {
	table := testTable(t)
	ctx := context.Background()

	a, err := table.Insert(ctx, domain.NewAgent{Name: "Support", AgentID: "agent_1", Bio: "bio", LLM: "gpt-4o"})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "Support", a.Name)
	assert.Equal(t, "agent_1", a.AgentID)
	assert.Equal(t, "bio", a.Bio)
	assert.Equal(t, "gpt-4o", a.LLM)
	require.NotNil(t, a.DisplayOrder)
	assert.Equal(t, 0, *a.DisplayOrder)
	assert.False(t, a.CreatedAt.IsZero())

	b, err := table.Insert(ctx, domain.NewAgent{Name: "Sales", AgentID: "agent_2"})
	require.NoError(t, err)
	assert.Equal(t, 1, *b.DisplayOrder)
	assert.True(t, b.CreatedAt.After(a.CreatedAt))
}

func TestSQLiteTable_SelectOrdersNullsLast(t *testing.T) {
	table := testTable(t)
	ctx := context.Background()

	a, err := table.Insert(ctx, domain.NewAgent{Name: "A", AgentID: "x"})
	require.NoError(t, err)
	b, err := table.Insert(ctx, domain.NewAgent{Name: "B", AgentID: "x"})
	require.NoError(t, err)
	c, err := table.Insert(ctx, domain.NewAgent{Name: "C", AgentID: "x"})
	require.NoError(t, err)

	_, err = table.db.sql.Exec(`UPDATE agents SET display_order = NULL WHERE id = ?`, a.ID)
	require.NoError(t, err)
	_, err = table.db.sql.Exec(`UPDATE agents SET display_order = 5 WHERE id = ?`, b.ID)
	require.NoError(t, err)

	list, err := table.Select(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID, b.ID, a.ID}, domain.IDs(list))
	assert.Nil(t, list[2].DisplayOrder)
}

func TestSQLiteTable_UpdatePartial(t *testing.T) {
	table := testTable(t)
	ctx := context.Background()

	a, err := table.Insert(ctx, domain.NewAgent{Name: "A", AgentID: "x", Bio: "old"})
	require.NoError(t, err)

	updated, err := table.Update(ctx, a.ID, domain.AgentPatch{Bio: domain.Ptr("new"), DisplayOrder: domain.Ptr(7)})
	require.NoError(t, err)
	assert.Equal(t, "A", updated.Name)
	assert.Equal(t, "new", updated.Bio)
	assert.Equal(t, 7, *updated.DisplayOrder)
	assert.Equal(t, a.CreatedAt, updated.CreatedAt)
}

func TestSQLiteTable_UpdateEmptyPatchReturnsRow(t *testing.T) {
	table := testTable(t)
	ctx := context.Background()

	a, err := table.Insert(ctx, domain.NewAgent{Name: "A", AgentID: "x"})
	require.NoError(t, err)

	got, err := table.Update(ctx, a.ID, domain.AgentPatch{})
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestSQLiteTable_UpdateUnknown(t *testing.T) {
	table := testTable(t)

	_, err := table.Update(context.Background(), "missing", domain.AgentPatch{Name: domain.Ptr("A")})
	assert.ErrorIs(t, err, agents.ErrNotFound)

	_, err = table.Update(context.Background(), "missing", domain.AgentPatch{})
	assert.ErrorIs(t, err, agents.ErrNotFound)
}

func TestSQLiteTable_Delete(t *testing.T) {
	table := testTable(t)
	ctx := context.Background()

	a, err := table.Insert(ctx, domain.NewAgent{Name: "A", AgentID: "x"})
	require.NoError(t, err)

	require.NoError(t, table.Delete(ctx, a.ID))
	require.NoError(t, table.Delete(ctx, a.ID))
	require.NoError(t, table.Delete(ctx, "missing"))

	list, err := table.Select(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSQLiteTable_Reorder(t *testing.T) {
	table := testTable(t)
	ctx := context.Background()

	var ids []string
	for _, name := range []string{"A", "B", "C"} {
		a, err := table.Insert(ctx, domain.NewAgent{Name: name, AgentID: "x"})
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}

	order := []string{ids[2], ids[0], ids[1]}
	require.NoError(t, table.Reorder(ctx, order))

	list, err := table.Select(ctx)
	require.NoError(t, err)
	assert.Equal(t, order, domain.IDs(list))
	for i, a := range list {
		assert.Equal(t, i, *a.DisplayOrder)
	}
}

func TestSQLiteTable_ReorderCanceledContextLeavesOrder(t *testing.T) {
	table := testTable(t)
	ctx := context.Background()

	a, err := table.Insert(ctx, domain.NewAgent{Name: "A", AgentID: "x"})
	require.NoError(t, err)
	b, err := table.Insert(ctx, domain.NewAgent{Name: "B", AgentID: "x"})
	require.NoError(t, err)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, table.Reorder(canceled, []string{b.ID, a.ID}))

	list, err := table.Select(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, b.ID}, domain.IDs(list))
}

func TestSQLiteTable_ReorderMissingIDRollsBack(t *testing.T) {
	table := testTable(t)
	ctx := context.Background()

	a, err := table.Insert(ctx, domain.NewAgent{Name: "A", AgentID: "x"})
	require.NoError(t, err)
	b, err := table.Insert(ctx, domain.NewAgent{Name: "B", AgentID: "x"})
	require.NoError(t, err)
	gone, err := table.Insert(ctx, domain.NewAgent{Name: "C", AgentID: "x"})
	require.NoError(t, err)
	require.NoError(t, table.Delete(ctx, gone.ID))

	err = table.Reorder(ctx, []string{b.ID, gone.ID, a.ID})
	assert.ErrorIs(t, err, agents.ErrNotFound)

	list, err := table.Select(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, b.ID}, domain.IDs(list))
}

// The transactional and row-by-row reorders fail the same way when another
// session has deleted one of the agents.
func TestReorderMissingIDMatchesRowByRow(t *testing.T) {
	ctx := context.Background()
	log := logging.New(nil, "silent")

	for name, table := range map[string]agents.Table{
		"sqlite": testTable(t),
		"memory": agents.NewMemoryTable(),
	} {
		repo := agents.NewRepository(table, log)
		a, err := repo.CreateAgent(ctx, domain.NewAgent{Name: "A", AgentID: "x"})
		require.NoError(t, err, name)

		err = repo.ReorderAgents(ctx, []string{"missing", a.ID})
		assert.ErrorIs(t, err, agents.ErrPersistence, name)
		assert.ErrorContains(t, err, "missing", name)
	}
}

func TestSQLiteTable_WithRepository(t *testing.T) {
	repo := agents.NewRepository(testTable(t), logging.New(nil, "silent"))
	ctx := context.Background()

	var ids []string
	for _, name := range []string{"A", "B", "C"} {
		a, err := repo.CreateAgent(ctx, domain.NewAgent{Name: name, AgentID: "x"})
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}

	require.NoError(t, repo.ReorderAgents(ctx, []string{ids[2], ids[0], ids[1]}))

	list, err := repo.ListAgents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A", "B"}, []string{list[0].Name, list[1].Name, list[2].Name})
}

func TestPatchColumns(t *testing.T) {
	cols, args := patchColumns(domain.AgentPatch{Name: domain.Ptr("n"), LLM: domain.Ptr("l"), DisplayOrder: domain.Ptr(2)})
	assert.Equal(t, []string{"name", "llm", "display_order"}, cols)
	assert.Equal(t, []any{"n", "l", 2}, args)

	cols, args = patchColumns(domain.AgentPatch{})
	assert.Empty(t, cols)
	assert.Empty(t, args)
}
