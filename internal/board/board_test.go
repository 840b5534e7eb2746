package board

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/voicesquad/internal/agents"
	"github.com/soyeahso/voicesquad/internal/domain"
	"github.com/soyeahso/voicesquad/internal/logging"
	"github.com/soyeahso/voicesquad/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	board *Board
	mem   *agents.MemoryTable
	table *agents.RecordingTable
	repo  *agents.Repository
	notes *notify.Recorder
}

// newFixture seeds agents 1 (A), 2 (B) and 3 (C) with orders 0..2.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := agents.NewMemoryTable()
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	for i, name := range []string{"A", "B", "C"} {
		mem.Put(domain.Agent{
			ID:           string(rune('1' + i)),
			Name:         name,
			AgentID:      "agent_" + name,
			DisplayOrder: domain.Ptr(i),
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		})
	}
	table := agents.NewRecordingTable(mem)
	log := logging.New(nil, "silent")
	repo := agents.NewRepository(table, log)
	notes := &notify.Recorder{}
	return &fixture{board: New(repo, notes, log), mem: mem, table: table, repo: repo, notes: notes}
}

func orders(t *testing.T, mem *agents.MemoryTable) map[string]int {
	t.Helper()
	list, err := mem.Select(context.Background())
	require.NoError(t, err)
	out := map[string]int{}
	for _, a := range list {
		out[a.ID] = *a.DisplayOrder
	}
	return out
}

func TestBoardStartsEmpty(t *testing.T) {
	f := newFixture(t)
	assert.Empty(t, f.board.Agents())
	assert.Zero(t, f.table.TotalCalls())
}

func TestLoad(t *testing.T) {
	f := newFixture(t)
	var seen [][]string
	f.board.OnChange(func(v []domain.Agent) { seen = append(seen, domain.IDs(v)) })

	require.NoError(t, f.board.Load(context.Background()))
	assert.Equal(t, []string{"1", "2", "3"}, domain.IDs(f.board.Agents()))
	assert.Equal(t, [][]string{{"1", "2", "3"}}, seen)
}

func TestLoadFailureKeepsListAndNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.board.Load(ctx))

	f.table.FailOn("select", errors.New("timeout"))
	err := f.board.Load(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, agents.ErrPersistence)
	assert.Equal(t, []string{"1", "2", "3"}, domain.IDs(f.board.Agents()))

	last, ok := f.notes.Last()
	require.True(t, ok)
	assert.Equal(t, "Failed to load agents", last.Title)
	assert.Equal(t, notify.VariantDestructive, last.Variant)
}

func TestMoveLastToFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.board.Load(ctx))

	// The optimistic order is visible while rows are being written.
	var duringPersist []string
	f.table.BeforeUpdate = func(string) {
		if duringPersist == nil {
			duringPersist = domain.IDs(f.board.Visible())
		}
	}

	require.NoError(t, f.board.Move(ctx, 2, 0))
	assert.Equal(t, []string{"3", "1", "2"}, duringPersist)
	assert.Equal(t, []string{"3", "1", "2"}, domain.IDs(f.board.Agents()))
	assert.Equal(t, map[string]int{"3": 0, "1": 1, "2": 2}, orders(t, f.mem))

	// A fresh board reading the persisted order sees the same list.
	fresh := New(f.repo, nil, logging.New(nil, "silent"))
	require.NoError(t, fresh.Load(ctx))
	assert.Equal(t, []string{"3", "1", "2"}, domain.IDs(fresh.Agents()))
	assert.Empty(t, f.notes.All())
}

func TestMoveSplicesLikeArrayMove(t *testing.T) {
	tests := []struct {
		from, to int
		want     []string
	}{
		{0, 2, []string{"2", "3", "1"}},
		{0, 1, []string{"2", "1", "3"}},
		{1, 0, []string{"2", "1", "3"}},
		{2, 1, []string{"1", "3", "2"}},
	}
	for _, tt := range tests {
		f := newFixture(t)
		ctx := context.Background()
		require.NoError(t, f.board.Load(ctx))

		require.NoError(t, f.board.Move(ctx, tt.from, tt.to))
		assert.Equal(t, tt.want, domain.IDs(f.board.Agents()), "move %d -> %d", tt.from, tt.to)

		require.NoError(t, f.board.Refresh(ctx))
		assert.Equal(t, tt.want, domain.IDs(f.board.Agents()), "reload after %d -> %d", tt.from, tt.to)
	}
}

func TestMoveSamePositionIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.board.Load(ctx))
	before := f.table.TotalCalls()

	require.NoError(t, f.board.Move(ctx, 1, 1))
	assert.Equal(t, before, f.table.TotalCalls())
}

func TestMoveOutOfRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.board.Load(ctx))

	assert.ErrorIs(t, f.board.Move(ctx, 0, 3), ErrOutOfRange)
	assert.ErrorIs(t, f.board.Move(ctx, -1, 0), ErrOutOfRange)
	assert.Zero(t, f.table.Calls("update"))
}

func TestMoveFailureReloadsAuthoritativeList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.board.Load(ctx))

	f.table.FailUpdateAfter = 1
	f.table.FailUpdateErr = errors.New("network down")

	err := f.board.Move(ctx, 2, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, agents.ErrPersistence)

	reloaded, err := f.repo.ListAgents(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.IDs(reloaded), domain.IDs(f.board.Agents()))
	assert.NotEqual(t, []string{"3", "1", "2"}, domain.IDs(f.board.Agents()))

	titles := f.notes.Titles()
	require.NotEmpty(t, titles)
	assert.Equal(t, "Failed to save order", titles[0])
	assert.Equal(t, notify.VariantDestructive, f.notes.All()[0].Variant)
}

// cancelingRepo cancels the caller's context when asked to reorder, the
// way a dropped socket or an expired request deadline would.
type cancelingRepo struct {
	*agents.Repository
	cancel context.CancelFunc
}

func (r cancelingRepo) ReorderAgents(ctx context.Context, _ []string) error {
	r.cancel()
	return ctx.Err()
}

func (r cancelingRepo) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.Repository.ListAgents(ctx)
}

func TestMoveReloadsWhenCallerContextEnds(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := New(cancelingRepo{Repository: f.repo, cancel: cancel}, f.notes, logging.New(nil, "silent"))
	require.NoError(t, b.Load(ctx))

	err := b.Move(ctx, 2, 0)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []string{"1", "2", "3"}, domain.IDs(b.Agents()))
	assert.Equal(t, []string{"1", "2", "3"}, domain.IDs(b.Visible()))
	assert.Equal(t, []string{"Failed to save order"}, f.notes.Titles())
}

func TestMoveByID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.board.Load(ctx))

	require.NoError(t, f.board.MoveByID(ctx, "3", "1"))
	assert.Equal(t, []string{"3", "1", "2"}, domain.IDs(f.board.Agents()))

	require.NoError(t, f.board.MoveByID(ctx, "2", "2"))
	assert.ErrorIs(t, f.board.MoveByID(ctx, "9", "1"), ErrUnknownAgent)
	assert.ErrorIs(t, f.board.MoveByID(ctx, "1", "9"), ErrUnknownAgent)
}

func TestHideIsPresentationOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.board.Load(ctx))
	before := f.table.TotalCalls()

	var last []string
	f.board.OnChange(func(v []domain.Agent) { last = domain.IDs(v) })

	assert.True(t, f.board.Hide("2"))
	assert.False(t, f.board.Hide("missing"))
	assert.Equal(t, []string{"1", "3"}, domain.IDs(f.board.Visible()))
	assert.Equal(t, []string{"1", "2", "3"}, domain.IDs(f.board.Agents()))
	assert.Equal(t, []string{"1", "3"}, last)
	assert.Equal(t, before, f.table.TotalCalls())
	assert.Equal(t, 3, f.mem.Len())

	// Hidden agents stay hidden across refreshes, not across sign-out.
	require.NoError(t, f.board.Refresh(ctx))
	assert.Equal(t, []string{"1", "3"}, domain.IDs(f.board.Visible()))

	f.board.Clear()
	assert.Empty(t, f.board.Agents())
	require.NoError(t, f.board.Load(ctx))
	assert.Equal(t, []string{"1", "2", "3"}, domain.IDs(f.board.Visible()))
}

func TestGet(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.board.Load(context.Background()))

	a, ok := f.board.Get("2")
	require.True(t, ok)
	assert.Equal(t, "B", a.Name)

	_, ok = f.board.Get("missing")
	assert.False(t, ok)
}

func TestConcurrentMovesDoNotRace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.board.Load(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = f.board.Move(ctx, i%3, (i+1)%3)
			_ = f.board.Visible()
		}(i)
	}
	wg.Wait()

	assert.ElementsMatch(t, []string{"1", "2", "3"}, domain.IDs(f.board.Agents()))
}

func TestMoveAgentDoesNotAliasInput(t *testing.T) {
	in := []domain.Agent{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	out := moveAgent(in, 0, 2)
	assert.Equal(t, []string{"b", "c", "a"}, domain.IDs(out))
	assert.Equal(t, []string{"a", "b", "c"}, domain.IDs(in))
}
