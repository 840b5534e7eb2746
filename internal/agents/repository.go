// Package agents implements the agent repository: validation, ordering and
// CRUD over the remote "agents" table.
package agents

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/soyeahso/voicesquad/internal/domain"
	"github.com/soyeahso/voicesquad/internal/logging"
)

var (
	// ErrValidation marks input rejected before any table call.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when an update targets an unknown id.
	ErrNotFound = errors.New("agent not found")
	// ErrPersistence wraps failures reported by the table.
	ErrPersistence = errors.New("persistence failed")
)

// Table is the remote "agents" table.
//
// Select returns rows ordered by display_order ascending with nulls last,
// then created_at ascending. Insert assigns id, created_at and a
// display_order one past the current maximum. Update returns ErrNotFound
// for unknown ids. Delete of an unknown id is not an error.
type Table interface {
	Select(ctx context.Context) ([]domain.Agent, error)
	Insert(ctx context.Context, in domain.NewAgent) (domain.Agent, error)
	Update(ctx context.Context, id string, patch domain.AgentPatch) (domain.Agent, error)
	Delete(ctx context.Context, id string) error
}

// Reorderer is implemented by tables that can write a whole order at once.
type Reorderer interface {
	Reorder(ctx context.Context, ids []string) error
}

// Repository is the agent store used by the rest of the application.
type Repository struct {
	table Table
	log   *logging.Logger
}

// NewRepository creates a repository over table.
func NewRepository(table Table, log *logging.Logger) *Repository {
	return &Repository{table: table, log: log.Sub("agents")}
}

// ListAgents returns every agent in display order.
func (r *Repository) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	list, err := r.table.Select(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: listing agents: %v", ErrPersistence, err)
	}
	// Tables are required to order rows, but sorting again keeps the
	// contract even for a table that ignores it.
	SortByDisplayOrder(list)
	return list, nil
}

// CreateAgent validates and inserts a new agent.
func (r *Repository) CreateAgent(ctx context.Context, in domain.NewAgent) (domain.Agent, error) {
	in = in.Trimmed()
	if err := ValidateRequired(in.Name, in.AgentID); err != nil {
		return domain.Agent{}, err
	}

	a, err := r.table.Insert(ctx, in)
	if err != nil {
		return domain.Agent{}, fmt.Errorf("%w: creating agent: %v", ErrPersistence, err)
	}
	r.log.Info().Str("id", a.ID).Str("name", a.Name).Msg("agent created")
	return a, nil
}

// UpdateAgent applies a partial update.
func (r *Repository) UpdateAgent(ctx context.Context, id string, patch domain.AgentPatch) (domain.Agent, error) {
	if id == "" {
		return domain.Agent{}, &ValidationError{Field: "id"}
	}
	patch = patch.Trimmed()
	if patch.Name != nil && *patch.Name == "" {
		return domain.Agent{}, &ValidationError{Field: "name"}
	}
	if patch.AgentID != nil && *patch.AgentID == "" {
		return domain.Agent{}, &ValidationError{Field: "agentId"}
	}

	a, err := r.table.Update(ctx, id, patch)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return domain.Agent{}, fmt.Errorf("updating %s: %w", id, ErrNotFound)
		}
		return domain.Agent{}, fmt.Errorf("%w: updating %s: %v", ErrPersistence, id, err)
	}
	r.log.Info().Str("id", id).Msg("agent updated")
	return a, nil
}

// DeleteAgent removes an agent. Removing an unknown id succeeds.
func (r *Repository) DeleteAgent(ctx context.Context, id string) error {
	if err := r.table.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%w: deleting %s: %v", ErrPersistence, id, err)
	}
	r.log.Info().Str("id", id).Msg("agent deleted")
	return nil
}

// ReorderAgents persists displayOrder = index for each id.
//
// Tables implementing Reorderer write the order in one transaction. Other
// tables get one update per row, stopping at the first failure; rows
// already written keep their new order.
func (r *Repository) ReorderAgents(ctx context.Context, ids []string) error {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return &ValidationError{Field: "ids", Reason: "duplicate id " + id}
		}
		seen[id] = struct{}{}
	}

	if ro, ok := r.table.(Reorderer); ok {
		if err := ro.Reorder(ctx, ids); err != nil {
			return fmt.Errorf("%w: reordering agents: %v", ErrPersistence, err)
		}
		r.log.Debug().Int("count", len(ids)).Msg("agents reordered")
		return nil
	}

	for i, id := range ids {
		if _, err := r.table.Update(ctx, id, domain.AgentPatch{DisplayOrder: domain.Ptr(i)}); err != nil {
			return fmt.Errorf("%w: reordering agents at %d (%s): %v", ErrPersistence, i, id, err)
		}
	}
	r.log.Debug().Int("count", len(ids)).Msg("agents reordered row by row")
	return nil
}

// ValidationError names the field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "is required"
	}
	return fmt.Sprintf("%s %s", e.Field, reason)
}

// Unwrap makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// ValidateRequired checks the two fields every persisted agent must carry.
// Inputs are expected to be trimmed already.
func ValidateRequired(name, agentID string) error {
	if name == "" {
		return &ValidationError{Field: "name"}
	}
	if agentID == "" {
		return &ValidationError{Field: "agentId"}
	}
	return nil
}

// SortByDisplayOrder orders agents by display order ascending with nil
// orders last, then by creation time.
func SortByDisplayOrder(list []domain.Agent) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		switch {
		case a.DisplayOrder == nil && b.DisplayOrder != nil:
			return false
		case a.DisplayOrder != nil && b.DisplayOrder == nil:
			return true
		case a.DisplayOrder != nil && b.DisplayOrder != nil && *a.DisplayOrder != *b.DisplayOrder:
			return *a.DisplayOrder < *b.DisplayOrder
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}
