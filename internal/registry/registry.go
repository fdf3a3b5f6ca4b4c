// Package registry tracks the operational agents that submit actions
// for governance: identity, card URL, last-seen time, and per-decision
// counters. Agents self-register, and any agent that submits an action
// is registered automatically on its first verdict.
package registry

import (
	"context"
	"time"

	"sentinel/internal/model"
)

// Agent is one registered operational agent.
type Agent struct {
	Name         string    `json:"name"`
	CardURL      string    `json:"card_url,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
	LastSeen     time.Time `json:"last_seen"`
	Stats        Stats     `json:"stats"`
}

// Stats counts the verdicts issued against one agent's actions.
// Total always equals Approved + Escalated + Denied.
type Stats struct {
	Total     int `json:"total"`
	Approved  int `json:"approved"`
	Escalated int `json:"escalated"`
	Denied    int `json:"denied"`
}

func (s *Stats) add(d model.Decision) {
	s.Total++
	switch d {
	case model.DecisionApproved:
		s.Approved++
	case model.DecisionEscalated:
		s.Escalated++
	case model.DecisionDenied:
		s.Denied++
	}
}

// Registry is the agent persistence surface.
type Registry interface {
	// Register creates or refreshes an agent record. Re-registering
	// updates the card URL and last-seen time, never the counters.
	Register(ctx context.Context, name, cardURL string) error
	// RecordDecision bumps the agent's counters for one verdict,
	// auto-registering unknown agents.
	RecordDecision(ctx context.Context, name string, d model.Decision, at time.Time) error
	// Get returns one agent or model.ErrNotFound.
	Get(ctx context.Context, name string) (*Agent, error)
	// List returns all agents, most recently seen first.
	List(ctx context.Context) ([]Agent, error)
	Close() error
}
