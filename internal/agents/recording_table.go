package agents

import (
	"context"
	"sync"

	"github.com/soyeahso/voicesquad/internal/domain"
)

// RecordingTable wraps a Table, counting calls and optionally failing them.
// It is used by tests across the module.
type RecordingTable struct {
	Table

	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
	// FailUpdateAfter, when positive, makes every Update after that many
	// successful ones return FailUpdateErr.
	FailUpdateAfter int
	FailUpdateErr   error
	// BeforeUpdate, when set, runs before each delegated Update.
	BeforeUpdate func(id string)
}

// NewRecordingTable wraps inner.
func NewRecordingTable(inner Table) *RecordingTable {
	return &RecordingTable{
		Table: inner,
		calls: make(map[string]int),
		fail:  make(map[string]error),
	}
}

// FailOn makes every call of op ("select", "insert", "update", "delete")
// return err. A nil err clears the failure.
func (t *RecordingTable) FailOn(op string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err == nil {
		delete(t.fail, op)
		return
	}
	t.fail[op] = err
}

// Calls returns how often op was invoked.
func (t *RecordingTable) Calls(op string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls[op]
}

// TotalCalls returns the number of calls of any kind.
func (t *RecordingTable) TotalCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.calls {
		n += c
	}
	return n
}

func (t *RecordingTable) record(op string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls[op]++
	return t.fail[op]
}

func (t *RecordingTable) Select(ctx context.Context) ([]domain.Agent, error) {
	if err := t.record("select"); err != nil {
		return nil, err
	}
	return t.Table.Select(ctx)
}

func (t *RecordingTable) Insert(ctx context.Context, in domain.NewAgent) (domain.Agent, error) {
	if err := t.record("insert"); err != nil {
		return domain.Agent{}, err
	}
	return t.Table.Insert(ctx, in)
}

func (t *RecordingTable) Update(ctx context.Context, id string, patch domain.AgentPatch) (domain.Agent, error) {
	if err := t.record("update"); err != nil {
		return domain.Agent{}, err
	}
	t.mu.Lock()
	n := t.calls["update"]
	failAfter, failErr, before := t.FailUpdateAfter, t.FailUpdateErr, t.BeforeUpdate
	t.mu.Unlock()

	if failAfter > 0 && n > failAfter {
		return domain.Agent{}, failErr
	}
	if before != nil {
		before(id)
	}
	return t.Table.Update(ctx, id, patch)
}

func (t *RecordingTable) Delete(ctx context.Context, id string) error {
	if err := t.record("delete"); err != nil {
		return err
	}
	return t.Table.Delete(ctx, id)
}
