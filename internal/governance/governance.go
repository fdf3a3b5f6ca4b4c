// Package governance is the service façade shared by every invocation
// surface (A2A, dashboard API, MCP): one evaluation entry point plus
// the read-side queries over the audit log, the registry, the incident
// corpus, and the topology.
package governance

import (
	"context"
	"fmt"
	"time"

	"sentinel/internal/audit"
	"sentinel/internal/engine"
	"sentinel/internal/incident"
	"sentinel/internal/model"
	"sentinel/internal/registry"
	"sentinel/internal/topology"
)

// Service wires the pipeline and the stores behind one API.
type Service struct {
	pipeline  *engine.Pipeline
	auditLog  audit.Log
	agents    registry.Registry
	incidents *incident.Store
	topo      *topology.Store
}

// NewService builds the façade.
func NewService(pipeline *engine.Pipeline, auditLog audit.Log, agents registry.Registry,
	incidents *incident.Store, topo *topology.Store) *Service {
	return &Service{
		pipeline:  pipeline,
		auditLog:  auditLog,
		agents:    agents,
		incidents: incidents,
		topo:      topo,
	}
}

// EvaluateAction runs one proposed action through the pipeline.
func (s *Service) EvaluateAction(ctx context.Context, action *model.ProposedAction) (*model.GovernanceVerdict, error) {
	return s.pipeline.Evaluate(ctx, action)
}

// RecentDecisions returns the newest verdicts, optionally filtered to
// one resource.
func (s *Service) RecentDecisions(ctx context.Context, limit int, resourceFilter string) ([]model.GovernanceVerdict, error) {
	return s.auditLog.GetRecent(ctx, limit, resourceFilter)
}

// DecisionByID returns one verdict or model.ErrNotFound.
func (s *Service) DecisionByID(ctx context.Context, actionID string) (*model.GovernanceVerdict, error) {
	return s.auditLog.GetByID(ctx, actionID)
}

// Metrics summarizes the audit log.
func (s *Service) Metrics(ctx context.Context) (audit.Summary, error) {
	return s.auditLog.Aggregate(ctx)
}

// Agents lists the registered agents, most recently seen first.
func (s *Service) Agents(ctx context.Context) ([]registry.Agent, error) {
	return s.agents.List(ctx)
}

// AgentHistory returns one agent's record and its newest verdicts.
func (s *Service) AgentHistory(ctx context.Context, name string, limit int) (*registry.Agent, []model.GovernanceVerdict, error) {
	agent, err := s.agents.Get(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	verdicts, err := s.auditLog.GetByAgent(ctx, name, limit)
	if err != nil {
		return nil, nil, err
	}
	return agent, verdicts, nil
}

// RegisterAgent creates or refreshes an agent record.
func (s *Service) RegisterAgent(ctx context.Context, name, cardURL string) error {
	if name == "" {
		return fmt.Errorf("%w: agent name is required", model.ErrInvalidInput)
	}
	return s.agents.Register(ctx, name, cardURL)
}

// SearchIncidents ranks the incident corpus against a free-text query.
func (s *Service) SearchIncidents(query string, top int) []incident.SearchHit {
	return s.incidents.Search(query, top)
}

// RiskProfile is the aggregate risk view of one resource: its topology
// standing plus its governance decision history.
type RiskProfile struct {
	ResourceID     string   `json:"resource_id"`
	Known          bool     `json:"known"`
	ResourceType   string   `json:"resource_type,omitempty"`
	Criticality    string   `json:"criticality,omitempty"`
	Dependents     []string `json:"dependents,omitempty"`
	ServicesHosted []string `json:"services_hosted,omitempty"`
	MonthlyCost    *float64 `json:"monthly_cost,omitempty"`

	Decisions     audit.Summary             `json:"decisions"`
	Recent        []model.GovernanceVerdict `json:"recent"`
	AvgComposite  float64                   `json:"avg_composite"`
	MaxComposite  float64                   `json:"max_composite"`
	TopViolations []string                  `json:"top_violations,omitempty"`
	LastEvaluated *time.Time                `json:"last_evaluated,omitempty"`
}

// ResourceRiskProfile aggregates the topology view and the decision
// history of one resource. Unknown resources still get their history:
// verdicts may predate topology changes.
func (s *Service) ResourceRiskProfile(ctx context.Context, resourceID string, limit int) (*RiskProfile, error) {
	if resourceID == "" {
		return nil, fmt.Errorf("%w: resource_id is required", model.ErrInvalidInput)
	}

	p := &RiskProfile{ResourceID: resourceID}
	if res := s.topo.Snapshot().Find(resourceID); res != nil {
		p.Known = true
		p.ResourceID = res.Name
		p.ResourceType = res.Type
		p.Criticality = res.Criticality()
		p.Dependents = res.Dependents
		p.ServicesHosted = res.ServicesHosted
		p.MonthlyCost = res.MonthlyCost
	}

	verdicts, err := s.auditLog.GetRecent(ctx, limit, p.ResourceID)
	if err != nil {
		return nil, err
	}
	p.Recent = verdicts
	p.Decisions = audit.Summarize(verdicts)
	p.AvgComposite = p.Decisions.AvgComposite
	p.MaxComposite = p.Decisions.MaxComposite
	for i := range verdicts {
		if p.LastEvaluated == nil || verdicts[i].Timestamp.After(*p.LastEvaluated) {
			ts := verdicts[i].Timestamp
			p.LastEvaluated = &ts
		}
	}
	for _, tv := range p.Decisions.TopViolations {
		if len(p.TopViolations) == 3 {
			break
		}
		p.TopViolations = append(p.TopViolations, tv.Name)
	}
	return p, nil
}
