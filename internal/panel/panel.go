// Package panel implements the add/edit/remove form over the agent
// repository.
package panel

import (
	"context"
	"fmt"
	"sync"

	"github.com/soyeahso/voicesquad/internal/agents"
	"github.com/soyeahso/voicesquad/internal/domain"
	"github.com/soyeahso/voicesquad/internal/logging"
	"github.com/soyeahso/voicesquad/internal/notify"
)

// Repository is the part of agents.Repository the panel needs.
type Repository interface {
	CreateAgent(ctx context.Context, in domain.NewAgent) (domain.Agent, error)
	UpdateAgent(ctx context.Context, id string, patch domain.AgentPatch) (domain.Agent, error)
	DeleteAgent(ctx context.Context, id string) error
}

// Draft is the form being edited.
type Draft struct {
	Name    string `json:"name"`
	AgentID string `json:"agentId"`
	Bio     string `json:"bio,omitempty"`
	LLM     string `json:"llm,omitempty"`
}

// State is a snapshot of the panel.
type State struct {
	Draft   Draft  `json:"draft"`
	Editing string `json:"editing,omitempty"`
}

// Panel holds one console's form state.
type Panel struct {
	repo     Repository
	notifier notify.Notifier
	log      *logging.Logger

	mu       sync.Mutex
	draft    Draft
	editing  string
	onChange func(ctx context.Context)
}

// New creates a panel with an empty draft.
func New(repo Repository, notifier notify.Notifier, log *logging.Logger) *Panel {
	if notifier == nil {
		notifier = notify.Discard
	}
	return &Panel{repo: repo, notifier: notifier, log: log.Sub("panel")}
}

// OnChange registers fn to run after every successful mutation. The board
// refresh hangs off this hook.
func (p *Panel) OnChange(fn func(ctx context.Context)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = fn
}

// SetDraft replaces the draft.
func (p *Panel) SetDraft(d Draft) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.draft = d
}

// State returns the current draft and editing marker.
func (p *Panel) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return State{Draft: p.draft, Editing: p.editing}
}

// Edit loads a into the draft and marks it as being edited. Nothing is
// stored until Submit.
func (p *Panel) Edit(a domain.Agent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.draft = Draft{Name: a.Name, AgentID: a.AgentID, Bio: a.Bio, LLM: a.LLM}
	p.editing = a.ID
}

// Cancel clears the draft and the editing marker.
func (p *Panel) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.draft = Draft{}
	p.editing = ""
}

// Submit creates or updates an agent from the draft.
//
// An incomplete draft raises a "Missing Information" notification and
// returns an agents.ErrValidation error without touching the repository.
// A repository failure keeps the draft so the user can retry.
func (p *Panel) Submit(ctx context.Context) (domain.Agent, error) {
	p.mu.Lock()
	in := domain.NewAgent(p.draft).Trimmed()
	editing := p.editing
	p.mu.Unlock()

	if err := agents.ValidateRequired(in.Name, in.AgentID); err != nil {
		p.notifier.Notify(notify.Info("Missing Information", "Please provide agent name and ID"))
		return domain.Agent{}, err
	}

	var (
		saved domain.Agent
		err   error
	)
	if editing == "" {
		saved, err = p.repo.CreateAgent(ctx, in)
	} else {
		saved, err = p.repo.UpdateAgent(ctx, editing, domain.AgentPatch{
			Name:    &in.Name,
			AgentID: &in.AgentID,
			Bio:     &in.Bio,
			LLM:     &in.LLM,
		})
	}
	if err != nil {
		p.log.Error().Err(err).Str("editing", editing).Msg("saving agent")
		p.notifier.Notify(notify.Destructive("Failed to Save", err.Error()))
		return domain.Agent{}, fmt.Errorf("saving agent: %w", err)
	}

	p.mu.Lock()
	p.draft = Draft{}
	p.editing = ""
	p.mu.Unlock()

	if editing == "" {
		p.notifier.Notify(notify.Info("Agent Added", saved.Name+" has been added successfully"))
	} else {
		p.notifier.Notify(notify.Info("Agent Updated", saved.Name+" has been updated successfully"))
	}
	p.changed(ctx)
	return saved, nil
}

// Remove deletes an agent. If it was being edited the marker is cleared.
func (p *Panel) Remove(ctx context.Context, id string) error {
	if err := p.repo.DeleteAgent(ctx, id); err != nil {
		p.log.Error().Err(err).Str("id", id).Msg("removing agent")
		p.notifier.Notify(notify.Destructive("Failed to Save", err.Error()))
		return fmt.Errorf("removing agent: %w", err)
	}

	p.mu.Lock()
	if p.editing == id {
		p.draft = Draft{}
		p.editing = ""
	}
	p.mu.Unlock()

	p.notifier.Notify(notify.Info("Agent Removed", "Agent has been removed from the list"))
	p.changed(ctx)
	return nil
}

func (p *Panel) changed(ctx context.Context) {
	p.mu.Lock()
	fn := p.onChange
	p.mu.Unlock()
	if fn != nil {
		fn(ctx)
	}
}
