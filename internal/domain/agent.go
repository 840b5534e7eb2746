// Package domain holds the types shared between the repository, the
// orchestrator, the configuration panel and the transports.
package domain

import (
	"strings"
	"time"
)

// Agent is a configured conversational persona.
type Agent struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	AgentID      string    `json:"agentId"` // external session identifier
	Bio          string    `json:"bio,omitempty"`
	LLM          string    `json:"llm,omitempty"`
	DisplayOrder *int      `json:"displayOrder,omitempty"` // nil sorts last
	CreatedAt    time.Time `json:"createdAt"`
}

// NewAgent carries the fields supplied when creating an agent.
type NewAgent struct {
	Name    string `json:"name"`
	AgentID string `json:"agentId"`
	Bio     string `json:"bio,omitempty"`
	LLM     string `json:"llm,omitempty"`
}

// Trimmed returns a copy with surrounding whitespace removed from every field.
func (n NewAgent) Trimmed() NewAgent {
	return NewAgent{
		Name:    strings.TrimSpace(n.Name),
		AgentID: strings.TrimSpace(n.AgentID),
		Bio:     strings.TrimSpace(n.Bio),
		LLM:     strings.TrimSpace(n.LLM),
	}
}

// AgentPatch is a partial update. Nil fields are left untouched.
type AgentPatch struct {
	Name         *string `json:"name,omitempty"`
	AgentID      *string `json:"agentId,omitempty"`
	Bio          *string `json:"bio,omitempty"`
	LLM          *string `json:"llm,omitempty"`
	DisplayOrder *int    `json:"displayOrder,omitempty"`
}

// Trimmed returns a copy with surrounding whitespace removed from every
// supplied string field.
func (p AgentPatch) Trimmed() AgentPatch {
	out := p
	out.Name = trimPtr(p.Name)
	out.AgentID = trimPtr(p.AgentID)
	out.Bio = trimPtr(p.Bio)
	out.LLM = trimPtr(p.LLM)
	return out
}

// IsEmpty reports whether the patch changes nothing.
func (p AgentPatch) IsEmpty() bool {
	return p.Name == nil && p.AgentID == nil && p.Bio == nil && p.LLM == nil && p.DisplayOrder == nil
}

// Apply returns a copy of a with the patch applied.
func (p AgentPatch) Apply(a Agent) Agent {
	if p.Name != nil {
		a.Name = *p.Name
	}
	if p.AgentID != nil {
		a.AgentID = *p.AgentID
	}
	if p.Bio != nil {
		a.Bio = *p.Bio
	}
	if p.LLM != nil {
		a.LLM = *p.LLM
	}
	if p.DisplayOrder != nil {
		order := *p.DisplayOrder
		a.DisplayOrder = &order
	}
	return a
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}

// IDs returns the ids of agents in order.
func IDs(agents []Agent) []string {
	ids := make([]string, len(agents))
	for i, a := range agents {
		ids[i] = a.ID
	}
	return ids
}
