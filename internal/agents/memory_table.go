package agents

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/voicesquad/internal/domain"
)

// MemoryTable is an in-process Table. It backs the "memory" database
// driver and tests.
type MemoryTable struct {
	mu   sync.Mutex
	rows map[string]domain.Agent
	now  func() time.Time
}

// NewMemoryTable creates an empty table.
func NewMemoryTable() *MemoryTable {
	return &MemoryTable{
		rows: make(map[string]domain.Agent),
		now:  time.Now,
	}
}

// Select returns all rows in display order.
func (t *MemoryTable) Select(_ context.Context) ([]domain.Agent, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]domain.Agent, 0, len(t.rows))
	for _, a := range t.rows {
		out = append(out, copyAgent(a))
	}
	SortByDisplayOrder(out)
	return out, nil
}

// Insert appends a row after the current maximum display order.
func (t *MemoryTable) Insert(_ context.Context, in domain.NewAgent) (domain.Agent, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := 0
	for _, a := range t.rows {
		if a.DisplayOrder != nil && *a.DisplayOrder >= next {
			next = *a.DisplayOrder + 1
		}
	}

	a := domain.Agent{
		ID:           uuid.New().String(),
		Name:         in.Name,
		AgentID:      in.AgentID,
		Bio:          in.Bio,
		LLM:          in.LLM,
		DisplayOrder: domain.Ptr(next),
		CreatedAt:    t.now(),
	}
	t.rows[a.ID] = a
	return copyAgent(a), nil
}

// Put stores a row as given, replacing any row with the same id.
func (t *MemoryTable) Put(a domain.Agent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = t.now()
	}
	t.rows[a.ID] = copyAgent(a)
}

// Update applies patch to the row with the given id.
func (t *MemoryTable) Update(_ context.Context, id string, patch domain.AgentPatch) (domain.Agent, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	a, ok := t.rows[id]
	if !ok {
		return domain.Agent{}, ErrNotFound
	}
	a = patch.Apply(a)
	t.rows[id] = a
	return copyAgent(a), nil
}

// Delete removes the row with the given id, if present.
func (t *MemoryTable) Delete(_ context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rows, id)
	return nil
}

// Len returns the number of rows.
func (t *MemoryTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rows)
}

func copyAgent(a domain.Agent) domain.Agent {
	if a.DisplayOrder != nil {
		a.DisplayOrder = domain.Ptr(*a.DisplayOrder)
	}
	return a
}
