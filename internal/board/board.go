// Package board keeps the ordered agent list shown on a console and writes
// reorders back to the repository.
package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/soyeahso/voicesquad/internal/domain"
	"github.com/soyeahso/voicesquad/internal/logging"
	"github.com/soyeahso/voicesquad/internal/notify"
)

// reloadTimeout bounds the reload after a failed reorder. It runs on its
// own deadline so a cancelled caller still gets the authoritative order.
const reloadTimeout = 10 * time.Second

// ErrOutOfRange is returned by Move for an index outside the list.
var ErrOutOfRange = errors.New("position out of range")

// ErrUnknownAgent is returned by MoveByID for an id not on the board.
var ErrUnknownAgent = errors.New("agent not on board")

// Repository is the part of agents.Repository the board needs.
type Repository interface {
	ListAgents(ctx context.Context) ([]domain.Agent, error)
	ReorderAgents(ctx context.Context, ids []string) error
}

// Board holds the in-memory agent order for one console.
type Board struct {
	repo     Repository
	notifier notify.Notifier
	log      *logging.Logger

	mu       sync.Mutex
	agents   []domain.Agent
	hidden   map[string]bool
	onChange func(visible []domain.Agent)
}

// New creates an empty board.
func New(repo Repository, notifier notify.Notifier, log *logging.Logger) *Board {
	if notifier == nil {
		notifier = notify.Discard
	}
	return &Board{
		repo:     repo,
		notifier: notifier,
		log:      log.Sub("board"),
		hidden:   make(map[string]bool),
	}
}

// OnChange registers fn to receive the visible list after every change.
// fn is called without the board lock held.
func (b *Board) OnChange(fn func(visible []domain.Agent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
}

// Load replaces the list with the repository's. On failure the list is
// left unchanged and a destructive notification is raised.
func (b *Board) Load(ctx context.Context) error {
	list, err := b.repo.ListAgents(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("loading agents")
		b.notifier.Notify(notify.Destructive("Failed to load agents", err.Error()))
		return err
	}

	b.mu.Lock()
	b.agents = list
	b.mu.Unlock()

	b.log.Debug().Int("count", len(list)).Msg("agents loaded")
	b.changed()
	return nil
}

// Refresh re-fetches the list. It is called after panel mutations.
func (b *Board) Refresh(ctx context.Context) error {
	return b.Load(ctx)
}

// Clear empties the board and forgets hidden agents.
func (b *Board) Clear() {
	b.mu.Lock()
	b.agents = nil
	b.hidden = make(map[string]bool)
	b.mu.Unlock()
	b.changed()
}

// Agents returns a copy of the full list, hidden agents included.
func (b *Board) Agents() []domain.Agent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Agent, len(b.agents))
	copy(out, b.agents)
	return out
}

// Visible returns the list without hidden agents.
func (b *Board) Visible() []domain.Agent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.visibleLocked()
}

func (b *Board) visibleLocked() []domain.Agent {
	out := make([]domain.Agent, 0, len(b.agents))
	for _, a := range b.agents {
		if !b.hidden[a.ID] {
			out = append(out, a)
		}
	}
	return out
}

// Get returns the agent with the given id.
func (b *Board) Get(id string) (domain.Agent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range b.agents {
		if a.ID == id {
			return a, true
		}
	}
	return domain.Agent{}, false
}

// Hide removes an agent from the visible list without persisting anything.
// It reports whether the agent was on the board.
func (b *Board) Hide(id string) bool {
	b.mu.Lock()
	found := false
	for _, a := range b.agents {
		if a.ID == id {
			found = true
			break
		}
	}
	if found {
		b.hidden[id] = true
	}
	b.mu.Unlock()

	if found {
		b.changed()
	}
	return found
}

// Move moves the agent at index from to index to and persists the new
// order. The moved list is published before the repository is called. If
// persisting fails the board reloads from the repository.
func (b *Board) Move(ctx context.Context, from, to int) error {
	if from == to {
		return nil
	}

	b.mu.Lock()
	n := len(b.agents)
	if from < 0 || from >= n || to < 0 || to >= n {
		b.mu.Unlock()
		return fmt.Errorf("move %d -> %d of %d: %w", from, to, n, ErrOutOfRange)
	}
	b.agents = moveAgent(b.agents, from, to)
	ids := domain.IDs(b.agents)
	b.mu.Unlock()

	b.changed()

	if err := b.repo.ReorderAgents(ctx, ids); err != nil {
		b.log.Warn().Err(err).Int("from", from).Int("to", to).Msg("reorder failed, reloading")
		b.notifier.Notify(notify.Destructive("Failed to save order", err.Error()))
		b.rollback(ctx)
		return err
	}

	b.log.Debug().Int("from", from).Int("to", to).Msg("order saved")
	return nil
}

// rollback replaces the optimistic order with the repository's. The save
// failure was already reported, so a failed reload is only logged.
func (b *Board) rollback(ctx context.Context) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reloadTimeout)
	defer cancel()

	list, err := b.repo.ListAgents(rctx)
	if err != nil {
		b.log.Error().Err(err).Msg("reloading agents after failed reorder")
		return
	}
	b.mu.Lock()
	b.agents = list
	b.mu.Unlock()
	b.changed()
}

// MoveByID moves activeID to the position currently held by overID. This
// is the shape of a drag-end event.
func (b *Board) MoveByID(ctx context.Context, activeID, overID string) error {
	if activeID == "" || overID == "" || activeID == overID {
		return nil
	}

	b.mu.Lock()
	from, to := -1, -1
	for i, a := range b.agents {
		switch a.ID {
		case activeID:
			from = i
		case overID:
			to = i
		}
	}
	b.mu.Unlock()

	if from < 0 {
		return fmt.Errorf("%s: %w", activeID, ErrUnknownAgent)
	}
	if to < 0 {
		return fmt.Errorf("%s: %w", overID, ErrUnknownAgent)
	}
	return b.Move(ctx, from, to)
}

func (b *Board) changed() {
	b.mu.Lock()
	fn := b.onChange
	visible := b.visibleLocked()
	b.mu.Unlock()

	if fn != nil {
		fn(visible)
	}
}

// moveAgent returns a new slice with the element at from moved to to.
func moveAgent(list []domain.Agent, from, to int) []domain.Agent {
	out := make([]domain.Agent, 0, len(list))
	moved := list[from]
	for i, a := range list {
		if i == from {
			continue
		}
		out = append(out, a)
	}
	out = append(out, domain.Agent{})
	copy(out[to+1:], out[to:])
	out[to] = moved
	return out
}
